// Package etl implements the extract-transform-load pipeline that merges a
// day's plays into the listening history.
package etl

import (
	"errors"
	"fmt"
	"time"

	"github.com/jmorin/go-spotify-history/internal/db"
	"github.com/jmorin/go-spotify-history/internal/spotify"
	"github.com/jmorin/go-spotify-history/internal/timefmt"
)

// Validation errors. A malformed payload usually means the access token was
// invalid or expired: the upstream API answers with an error body instead of
// a track list, and that is only detectable here.
var (
	ErrMalformedPayload = errors.New("malformed recently-played payload")
	ErrEmptyBatch       = errors.New("no plays found for today")
	ErrDuplicateInBatch = errors.New("duplicate play timestamp within batch")
)

// Transformer maps raw payloads into Play records localized to one timezone.
type Transformer struct {
	loc *time.Location
}

// NewTransformer creates a Transformer targeting the host's local timezone.
func NewTransformer() *Transformer {
	return NewTransformerIn(time.Local)
}

// NewTransformerIn creates a Transformer targeting an explicit timezone.
func NewTransformerIn(loc *time.Location) *Transformer {
	return &Transformer{loc: loc}
}

// Transform converts a raw payload into an ordered batch of plays, preserving
// upstream order (most recent first). It returns:
//
//   - ErrMalformedPayload if the payload is error-shaped or any item is
//     missing expected structure. The partially built batch is still returned
//     so the caller can inspect it, but it must never be loaded.
//   - ErrEmptyBatch if the payload is well-formed but holds no plays.
//   - ErrDuplicateInBatch if two items resolve to the same local timestamp.
//     That means the same event was extracted twice in one call, a logic
//     error, and is fatal to the run.
func (t *Transformer) Transform(payload *spotify.RawPayload) ([]db.Play, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: no payload", ErrMalformedPayload)
	}
	if payload.Error != nil {
		return nil, fmt.Errorf("%w: upstream error body (status %d)", ErrMalformedPayload, payload.Error.Status)
	}
	if payload.Items == nil {
		return nil, fmt.Errorf("%w: missing items list", ErrMalformedPayload)
	}

	plays := make([]db.Play, 0, len(payload.Items))
	for i, item := range payload.Items {
		play, err := t.transformItem(item)
		if err != nil {
			return plays, fmt.Errorf("%w: item %d: %v", ErrMalformedPayload, i, err)
		}
		plays = append(plays, play)
	}

	if len(plays) == 0 {
		return plays, ErrEmptyBatch
	}

	seen := make(map[string]struct{}, len(plays))
	for _, p := range plays {
		if _, dup := seen[p.TimePlayed]; dup {
			return plays, fmt.Errorf("%w: %s", ErrDuplicateInBatch, p.TimePlayed)
		}
		seen[p.TimePlayed] = struct{}{}
	}

	return plays, nil
}

func (t *Transformer) transformItem(item spotify.PlayedItem) (db.Play, error) {
	track := item.Track
	if track == nil {
		return db.Play{}, errors.New("missing track")
	}
	album := track.Album
	if album == nil {
		return db.Play{}, errors.New("missing album")
	}
	if len(album.Artists) == 0 {
		return db.Play{}, errors.New("missing album artists")
	}
	if item.PlayedAt == "" {
		return db.Play{}, errors.New("missing played_at")
	}

	dateTime, date, timeOfDay, err := timefmt.LocalizeIn(item.PlayedAt, t.loc)
	if err != nil {
		return db.Play{}, err
	}

	artist := album.Artists[0]
	return db.Play{
		TrackName:      track.Name,
		ArtistName:     artist.Name,
		AlbumName:      album.Name,
		TrackID:        track.ID,
		ArtistID:       artist.ID,
		AlbumID:        album.ID,
		ReleaseDate:    album.ReleaseDate,
		DateTimePlayed: dateTime,
		DatePlayed:     date,
		TimePlayed:     timeOfDay,
		DurationMs:     track.DurationMs,
		Duration:       timefmt.FormatDuration(track.DurationMs),
	}, nil
}
