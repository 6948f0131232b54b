package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Dimension identifies a column plays can be ranked by.
type Dimension string

// Rankable dimensions.
const (
	DimensionTrack  Dimension = "track_name"
	DimensionArtist Dimension = "artist_name"
	DimensionAlbum  Dimension = "album_name"
)

// playColumns is the shared column list of both tables. time_played is the
// primary key: merging is insert-if-absent on that column.
const playColumns = `
	track_name TEXT,
	artist_name TEXT,
	album_name TEXT,
	track_id TEXT,
	artist_id TEXT,
	album_id TEXT,
	release_date TEXT,
	date_time_played TEXT,
	date_played TEXT,
	time_played TEXT PRIMARY KEY,
	duration_in_ms INTEGER,
	duration TEXT
`

// HistoryRepository handles listening-history persistence and queries.
type HistoryRepository struct {
	conn *sql.DB
}

// EnsureSchema creates the complete-history table if absent. MergeBatch also
// does this inside its transaction; EnsureSchema exists so read-only callers
// (the aggregation queries, the web server) work against a fresh database.
func (r *HistoryRepository) EnsureSchema(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS complete_listening_history(` + playColumns + `)`
	if _, err := r.conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("creating history table: %w", err)
	}
	return nil
}

// MergeBatch loads plays into a rebuilt staging table and merges them into
// complete history, all in one transaction. Rows whose time_played already
// exists in complete history are silently discarded, never overwritten, so
// re-running the same batch is a no-op. Returns the number of novel rows
// merged. On any failure the transaction is rolled back and complete history
// is untouched.
func (r *HistoryRepository) MergeBatch(ctx context.Context, plays []Play) (int64, error) {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning merge transaction: %w", err)
	}
	defer tx.Rollback()

	createHistory := `CREATE TABLE IF NOT EXISTS complete_listening_history(` + playColumns + `)`
	if _, err := tx.ExecContext(ctx, createHistory); err != nil {
		return 0, fmt.Errorf("creating history table: %w", err)
	}

	// The staging table never outlives one run: drop and rebuild.
	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS todays_tracks`); err != nil {
		return 0, fmt.Errorf("dropping staging table: %w", err)
	}
	createStaging := `CREATE TABLE todays_tracks(` + playColumns + `)`
	if _, err := tx.ExecContext(ctx, createStaging); err != nil {
		return 0, fmt.Errorf("creating staging table: %w", err)
	}

	insert := `
		INSERT INTO todays_tracks (
			track_name, artist_name, album_name, track_id, artist_id, album_id,
			release_date, date_time_played, date_played, time_played,
			duration_in_ms, duration
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return 0, fmt.Errorf("preparing staging insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range plays {
		_, err := stmt.ExecContext(ctx,
			p.TrackName,
			p.ArtistName,
			p.AlbumName,
			p.TrackID,
			p.ArtistID,
			p.AlbumID,
			p.ReleaseDate,
			p.DateTimePlayed,
			p.DatePlayed,
			p.TimePlayed,
			p.DurationMs,
			p.Duration,
		)
		if err != nil {
			return 0, fmt.Errorf("staging play at %s: %w", p.TimePlayed, err)
		}
	}

	merge := `
		INSERT OR IGNORE INTO complete_listening_history
		SELECT * FROM todays_tracks
	`
	res, err := tx.ExecContext(ctx, merge)
	if err != nil {
		return 0, fmt.Errorf("merging batch into history: %w", err)
	}
	merged, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting merged rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing merge: %w", err)
	}
	return merged, nil
}

// DayHistory returns all plays recorded on a date ("2006-01-02"), ordered by
// time of day ascending. A day with no plays yields an empty slice.
func (r *HistoryRepository) DayHistory(ctx context.Context, date string) ([]Play, error) {
	query := `
		SELECT track_name, artist_name, album_name, track_id, artist_id, album_id,
		       release_date, date_time_played, date_played, time_played,
		       duration_in_ms, duration
		FROM complete_listening_history
		WHERE date_played = ?
		ORDER BY time_played
	`
	rows, err := r.conn.QueryContext(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("querying day history: %w", err)
	}
	defer rows.Close()

	var plays []Play
	for rows.Next() {
		var p Play
		if err := rows.Scan(
			&p.TrackName,
			&p.ArtistName,
			&p.AlbumName,
			&p.TrackID,
			&p.ArtistID,
			&p.AlbumID,
			&p.ReleaseDate,
			&p.DateTimePlayed,
			&p.DatePlayed,
			&p.TimePlayed,
			&p.DurationMs,
			&p.Duration,
		); err != nil {
			return nil, fmt.Errorf("scanning play: %w", err)
		}
		plays = append(plays, p)
	}
	return plays, rows.Err()
}

// TopEntities ranks tracks, artists or albums by all-time play count,
// descending, ties broken by ascending name so the ordering is deterministic.
// Limit must be 1, 5 or 10.
func (r *HistoryRepository) TopEntities(ctx context.Context, dim Dimension, limit int) ([]EntityCount, error) {
	switch dim {
	case DimensionTrack, DimensionArtist, DimensionAlbum:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidDimension, dim)
	}
	switch limit {
	case 1, 5, 10:
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}

	// dim is restricted to the three known columns above, safe to splice.
	query := fmt.Sprintf(`
		SELECT %s, COUNT(*) AS num_of_listens
		FROM complete_listening_history
		GROUP BY %s
		ORDER BY COUNT(*) DESC, %s ASC
		LIMIT ?
	`, dim, dim, dim)

	rows, err := r.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying top %s: %w", dim, err)
	}
	defer rows.Close()

	var ranked []EntityCount
	for rows.Next() {
		var ec EntityCount
		if err := rows.Scan(&ec.Name, &ec.Plays); err != nil {
			return nil, fmt.Errorf("scanning ranking row: %w", err)
		}
		ranked = append(ranked, ec)
	}
	return ranked, rows.Err()
}

// TotalDuration returns the summed playback milliseconds for a date.
// A date with no plays returns 0, not an error.
func (r *HistoryRepository) TotalDuration(ctx context.Context, date string) (int64, error) {
	query := `
		SELECT COALESCE(SUM(duration_in_ms), 0)
		FROM complete_listening_history
		WHERE date_played = ?
	`
	var total int64
	if err := r.conn.QueryRowContext(ctx, query, date).Scan(&total); err != nil {
		return 0, fmt.Errorf("querying total duration: %w", err)
	}
	return total, nil
}

// SongsByHour counts all-time plays whose local time of day falls in the
// given hour ("00".."23"). Matching is on the leading two characters of
// time_played.
func (r *HistoryRepository) SongsByHour(ctx context.Context, hour string) (int, error) {
	if len(hour) != 2 || hour < "00" || hour > "23" || hour[0] < '0' || hour[0] > '9' || hour[1] < '0' || hour[1] > '9' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidHour, hour)
	}

	query := `
		SELECT COUNT(*)
		FROM complete_listening_history
		WHERE substr(time_played, 1, 2) = ?
	`
	var count int
	if err := r.conn.QueryRowContext(ctx, query, hour).Scan(&count); err != nil {
		return 0, fmt.Errorf("querying songs by hour: %w", err)
	}
	return count, nil
}

// HourlyProfiles returns per-day, per-hour play counts across the whole
// history, ordered by date then hour. Hours with no plays are omitted.
func (r *HistoryRepository) HourlyProfiles(ctx context.Context) ([]HourCount, error) {
	query := `
		SELECT date_played, CAST(substr(time_played, 1, 2) AS INTEGER) AS hour, COUNT(*)
		FROM complete_listening_history
		GROUP BY date_played, hour
		ORDER BY date_played, hour
	`
	rows, err := r.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying hourly profiles: %w", err)
	}
	defer rows.Close()

	var counts []HourCount
	for rows.Next() {
		var hc HourCount
		if err := rows.Scan(&hc.Date, &hc.Hour, &hc.Count); err != nil {
			return nil, fmt.Errorf("scanning hourly count: %w", err)
		}
		counts = append(counts, hc)
	}
	return counts, rows.Err()
}
