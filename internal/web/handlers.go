package web

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jmorin/go-spotify-history/internal/db"
	"github.com/jmorin/go-spotify-history/internal/patterns"
	"github.com/jmorin/go-spotify-history/internal/stats"
)

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// dimensions maps URL path segments to ranking dimensions.
var dimensions = map[string]db.Dimension{
	"tracks":  db.DimensionTrack,
	"artists": db.DimensionArtist,
	"albums":  db.DimensionAlbum,
}

// Handlers holds the HTTP handlers for the read-only API.
type Handlers struct {
	history    *db.HistoryRepository
	comparator *stats.Comparator
	patterns   *patterns.Service
}

// NewHandlers creates handlers reading from the given database.
func NewHandlers(database *db.DB) *Handlers {
	history := database.History()
	return &Handlers{
		history:    history,
		comparator: stats.NewComparator(history),
		patterns:   patterns.NewService(history),
	}
}

// playView is the JSON shape of one play.
type playView struct {
	TrackName   string `json:"track_name"`
	ArtistName  string `json:"artist_name"`
	AlbumName   string `json:"album_name"`
	ReleaseDate string `json:"release_date"`
	DatePlayed  string `json:"date_played"`
	TimePlayed  string `json:"time_played"`
	Duration    string `json:"duration"`
	DurationMs  int    `json:"duration_in_ms"`
}

// DayHistory responds with all plays for one date, ordered by time of day.
func (h *Handlers) DayHistory(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if !dateRe.MatchString(date) {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	plays, err := h.history.DayHistory(r.Context(), date)
	if err != nil {
		respondInternal(w, err)
		return
	}

	views := make([]playView, 0, len(plays))
	for _, p := range plays {
		views = append(views, playView{
			TrackName:   p.TrackName,
			ArtistName:  p.ArtistName,
			AlbumName:   p.AlbumName,
			ReleaseDate: p.ReleaseDate,
			DatePlayed:  p.DatePlayed,
			TimePlayed:  p.TimePlayed,
			Duration:    p.Duration,
			DurationMs:  p.DurationMs,
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"date":  date,
		"plays": views,
	})
}

// TopEntities responds with the all-time most played tracks, artists or
// albums. The limit query parameter accepts 1, 5 or 10 (default 10).
func (h *Handlers) TopEntities(w http.ResponseWriter, r *http.Request) {
	dim, ok := dimensions[chi.URLParam(r, "dimension")]
	if !ok {
		respondError(w, http.StatusBadRequest, "dimension must be tracks, artists or albums")
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "limit must be a number")
			return
		}
		limit = parsed
	}

	ranked, err := h.history.TopEntities(r.Context(), dim, limit)
	if errors.Is(err, db.ErrInvalidLimit) {
		respondError(w, http.StatusBadRequest, "limit must be 1, 5 or 10")
		return
	}
	if err != nil {
		respondInternal(w, err)
		return
	}

	type entityView struct {
		Name  string `json:"name"`
		Plays int    `json:"plays"`
	}
	views := make([]entityView, 0, len(ranked))
	for _, ec := range ranked {
		views = append(views, entityView{Name: ec.Name, Plays: ec.Plays})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"dimension": string(dim),
		"limit":     limit,
		"ranking":   views,
	})
}

// TotalDuration responds with the summed listening milliseconds for a date.
func (h *Handlers) TotalDuration(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if !dateRe.MatchString(date) {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	total, err := h.history.TotalDuration(r.Context(), date)
	if err != nil {
		respondInternal(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"date":              date,
		"total_duration_ms": total,
	})
}

// SongsByHour responds with the all-time play count for one hour of day.
func (h *Handlers) SongsByHour(w http.ResponseWriter, r *http.Request) {
	hour := chi.URLParam(r, "hour")

	count, err := h.history.SongsByHour(r.Context(), hour)
	if errors.Is(err, db.ErrInvalidHour) {
		respondError(w, http.StatusBadRequest, "hour must be 00..23")
		return
	}
	if err != nil {
		respondInternal(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"hour":  hour,
		"count": count,
	})
}

// CompareWeeks responds with a week-over-week comparison. Query parameters
// week_a and week_b are dates anywhere inside the two weeks.
func (h *Handlers) CompareWeeks(w http.ResponseWriter, r *http.Request) {
	refA, err := time.Parse("2006-01-02", r.URL.Query().Get("week_a"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "week_a must be YYYY-MM-DD")
		return
	}
	refB, err := time.Parse("2006-01-02", r.URL.Query().Get("week_b"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "week_b must be YYYY-MM-DD")
		return
	}

	cmp, err := h.comparator.CompareWeeks(r.Context(), refA, refB)
	if err != nil {
		respondInternal(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"week_a":      cmp.WeekA,
		"week_b":      cmp.WeekB,
		"totals_a":    cmp.TotalsA,
		"totals_b":    cmp.TotalsB,
		"day_deltas":  cmp.DayDeltas,
		"total_delta": cmp.TotalDelta,
		"t_statistic": cmp.TStatistic,
		"t_critical":  cmp.TCritical,
		"significant": cmp.Significant,
	})
}

// Patterns responds with the detected listening patterns.
func (h *Handlers) Patterns(w http.ResponseWriter, r *http.Request) {
	found, outliers, err := h.patterns.Detect(r.Context(), patterns.DefaultConfig())
	if err != nil {
		respondInternal(w, err)
		return
	}

	type patternView struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
		Days      int    `json:"days"`
	}
	views := make([]patternView, 0, len(found))
	for _, p := range found {
		views = append(views, patternView{
			ID:        p.ID.String(),
			Name:      p.Name,
			StartDate: p.StartDate,
			EndDate:   p.EndDate,
			Days:      len(p.Days),
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"patterns": views,
		"outliers": len(outliers),
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encoding response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func respondInternal(w http.ResponseWriter, err error) {
	log.Printf("handler error: %v", err)
	respondError(w, http.StatusInternalServerError, "internal error")
}
