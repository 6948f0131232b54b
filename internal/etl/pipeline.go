package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jmorin/go-spotify-history/internal/db"
	"github.com/jmorin/go-spotify-history/internal/spotify"
)

// State identifies where a pipeline run is in its lifecycle.
type State int

// Pipeline states. The AwaitingCredential -> Extracting transition happens
// when the caller hands Run an extractor; the credential-retry loop lives in
// the caller, never here.
const (
	StateAwaitingCredential State = iota
	StateExtracting
	StateTransforming
	StateLoading
	StateDone
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateAwaitingCredential:
		return "awaiting-credential"
	case StateExtracting:
		return "extracting"
	case StateTransforming:
		return "transforming"
	case StateLoading:
		return "loading"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Extractor fetches today's raw plays. *spotify.Client satisfies it.
type Extractor interface {
	RecentlyPlayedToday(ctx context.Context) (*spotify.RawPayload, error)
}

// Pipeline runs one extract-transform-load pass against the history store.
// It is not safe for concurrent use; each run is sequential by design.
type Pipeline struct {
	transformer *Transformer
	history     *db.HistoryRepository
	state       State
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTransformer overrides the default (host-local timezone) transformer.
func WithTransformer(t *Transformer) Option {
	return func(p *Pipeline) { p.transformer = t }
}

// NewPipeline creates a pipeline writing to the given history repository.
func NewPipeline(history *db.HistoryRepository, opts ...Option) *Pipeline {
	p := &Pipeline{
		transformer: NewTransformer(),
		history:     history,
		state:       StateAwaitingCredential,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State reports the pipeline's current state.
func (p *Pipeline) State() State {
	return p.state
}

// Result describes one completed ETL run.
type Result struct {
	RunID      uuid.UUID
	Extracted  int   // records transformed from the payload
	Merged     int64 // novel rows added to complete history
	StartedAt  time.Time
	FinishedAt time.Time
}

// Run executes one full ETL pass: extract today's plays with the provided
// (credential-bearing) extractor, transform them, and merge them into
// complete history. Errors keep their type so the caller can decide what to
// do: spotify.ErrUpstream aborts, ErrMalformedPayload means re-prompt for a
// credential, the other validation errors and persistence errors are fatal to
// the run. A failed run never leaves partial rows in complete history.
func (p *Pipeline) Run(ctx context.Context, ex Extractor) (*Result, error) {
	started := time.Now()

	p.state = StateExtracting
	payload, err := ex.RecentlyPlayedToday(ctx)
	if err != nil {
		p.state = StateFailed
		return nil, fmt.Errorf("extracting: %w", err)
	}

	p.state = StateTransforming
	plays, err := p.transformer.Transform(payload)
	if err != nil {
		p.state = StateFailed
		return nil, fmt.Errorf("transforming: %w", err)
	}

	p.state = StateLoading
	merged, err := p.history.MergeBatch(ctx, plays)
	if err != nil {
		p.state = StateFailed
		return nil, fmt.Errorf("loading: %w", err)
	}

	p.state = StateDone
	return &Result{
		RunID:      uuid.New(),
		Extracted:  len(plays),
		Merged:     merged,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}, nil
}
