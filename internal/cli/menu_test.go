package cli

import (
	"context"
	"strings"
	"testing"

	"github.com/jmorin/go-spotify-history/internal/db"
	"github.com/jmorin/go-spotify-history/internal/etl"
	"github.com/jmorin/go-spotify-history/internal/spotify"
	"github.com/jmorin/go-spotify-history/internal/timefmt"
)

type fakeCreds struct {
	logouts int
}

func (f *fakeCreds) AccessToken(ctx context.Context) (string, error) { return "token", nil }
func (f *fakeCreds) Logout() error                                   { f.logouts++; return nil }

// scriptedExtractor returns its payloads in order, repeating the last one.
type scriptedExtractor struct {
	payloads []*spotify.RawPayload
	calls    int
}

func (s *scriptedExtractor) RecentlyPlayedToday(ctx context.Context) (*spotify.RawPayload, error) {
	i := s.calls
	if i >= len(s.payloads) {
		i = len(s.payloads) - 1
	}
	s.calls++
	return s.payloads[i], nil
}

func validPayload() *spotify.RawPayload {
	return &spotify.RawPayload{Items: []spotify.PlayedItem{{
		PlayedAt: "2024-03-10T14:04:05.123Z",
		Track: &spotify.Track{
			ID:         "t1",
			Name:       "Song A",
			DurationMs: 65000,
			Album: &spotify.Album{
				ID:          "al1",
				Name:        "Album A",
				ReleaseDate: "2020-01-01",
				Artists:     []spotify.Artist{{ID: "ar1", Name: "Artist A"}},
			},
		},
	}}}
}

func newTestMenu(t *testing.T, input string, ex etl.Extractor) (*Menu, *strings.Builder, *fakeCreds, *db.DB) {
	t.Helper()

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	creds := &fakeCreds{}
	out := &strings.Builder{}
	menu := New(Config{
		In:           strings.NewReader(input),
		Out:          out,
		Database:     database,
		Credentials:  creds,
		ExtractorFor: func(string) etl.Extractor { return ex },
	})
	return menu, out, creds, database
}

func seedPlays(t *testing.T, database *db.DB) {
	t.Helper()
	plays := []db.Play{
		{
			TrackName: "Song A", ArtistName: "Artist A", AlbumName: "Album A",
			TrackID: "t1", ArtistID: "ar1", AlbumID: "al1", ReleaseDate: "2020-01-01",
			DateTimePlayed: "2024-03-10 09:00:00:000", DatePlayed: "2024-03-10",
			TimePlayed: "09:00:00:000", DurationMs: 65000, Duration: "1:05",
		},
		{
			TrackName: "Song B", ArtistName: "Artist B", AlbumName: "Album B",
			TrackID: "t2", ArtistID: "ar2", AlbumID: "al2", ReleaseDate: "1999",
			DateTimePlayed: "2024-03-10 21:30:00:000", DatePlayed: "2024-03-10",
			TimePlayed: "21:30:00:000", DurationMs: 180000, Duration: "3:00",
		},
	}
	if _, err := database.History().MergeBatch(context.Background(), plays); err != nil {
		t.Fatalf("MergeBatch: %v", err)
	}
}

func TestRunExitImmediately(t *testing.T) {
	menu, _, _, _ := newTestMenu(t, "0\n", nil)
	if err := menu.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunExitOnEOF(t *testing.T) {
	menu, _, _, _ := newTestMenu(t, "", nil)
	if err := menu.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunETLSuccess(t *testing.T) {
	ex := &scriptedExtractor{payloads: []*spotify.RawPayload{validPayload()}}
	menu, out, _, database := newTestMenu(t, "1\n0\n", ex)

	if err := menu.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "successfully loaded") {
		t.Errorf("output missing success message:\n%s", out.String())
	}

	// The transformer localizes timestamps, so derive the expected date the
	// same way rather than assuming the test host's zone.
	_, date, _, err := timefmt.Localize("2024-03-10T14:04:05.123Z")
	if err != nil {
		t.Fatalf("Localize: %v", err)
	}

	plays, err := database.History().DayHistory(context.Background(), date)
	if err != nil {
		t.Fatalf("DayHistory: %v", err)
	}
	if len(plays) != 1 {
		t.Errorf("got %d plays, want 1", len(plays))
	}
}

func TestRunETLMalformedDeclineRetry(t *testing.T) {
	// An empty body with no items field reads as a malformed payload.
	ex := &scriptedExtractor{payloads: []*spotify.RawPayload{{}}}
	menu, out, creds, _ := newTestMenu(t, "1\nn\n0\n", ex)

	if err := menu.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "token may have expired") {
		t.Errorf("output missing expiry hint:\n%s", out.String())
	}
	if creds.logouts != 0 {
		t.Errorf("logouts = %d, want 0 after declining retry", creds.logouts)
	}
}

func TestRunETLMalformedRetrySucceeds(t *testing.T) {
	ex := &scriptedExtractor{payloads: []*spotify.RawPayload{{}, validPayload()}}
	menu, out, creds, _ := newTestMenu(t, "1\ny\n0\n", ex)

	if err := menu.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if creds.logouts != 1 {
		t.Errorf("logouts = %d, want 1", creds.logouts)
	}
	if !strings.Contains(out.String(), "successfully loaded") {
		t.Errorf("output missing success message:\n%s", out.String())
	}
	if ex.calls != 2 {
		t.Errorf("extractor calls = %d, want 2", ex.calls)
	}
}

func TestRunETLRetryBudget(t *testing.T) {
	ex := &scriptedExtractor{payloads: []*spotify.RawPayload{{}}}
	menu, out, creds, _ := newTestMenu(t, "1\ny\ny\ny\n0\n", ex)

	if err := menu.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "Giving up") {
		t.Errorf("output missing give-up message:\n%s", out.String())
	}
	if ex.calls != maxCredentialRetries {
		t.Errorf("extractor calls = %d, want %d", ex.calls, maxCredentialRetries)
	}
	if creds.logouts != maxCredentialRetries {
		t.Errorf("logouts = %d, want %d", creds.logouts, maxCredentialRetries)
	}
}

func TestViewDayHistory(t *testing.T) {
	menu, out, _, database := newTestMenu(t, "2\n2024-03-10\n0\n", nil)
	seedPlays(t, database)

	if err := menu.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, want := range []string{"Song A", "Song B", "Artist A", "1:05"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestViewDayHistoryInvalidDateThenQuit(t *testing.T) {
	menu, out, _, _ := newTestMenu(t, "2\n03-10-2024\nquit\n0\n", nil)

	if err := menu.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "Invalid date provided.") {
		t.Errorf("output missing validation message:\n%s", out.String())
	}
}

func TestViewDayHistoryEmptyDay(t *testing.T) {
	menu, out, _, _ := newTestMenu(t, "2\n2024-03-10\n0\n", nil)

	if err := menu.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "no recorded songs") {
		t.Errorf("output missing empty-day message:\n%s", out.String())
	}
}

func TestViewMostListened(t *testing.T) {
	// Dimension 2 (artists), top 5.
	menu, out, _, database := newTestMenu(t, "3\n2\n2\n0\n", nil)
	seedPlays(t, database)

	if err := menu.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, want := range []string{"ARTIST", "Artist A", "Artist B"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestViewMostListenedEmptyHistory(t *testing.T) {
	menu, out, _, _ := newTestMenu(t, "3\n1\n3\n0\n", nil)

	if err := menu.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "history is empty") {
		t.Errorf("output missing empty-history message:\n%s", out.String())
	}
}

func TestViewWeeklyComparison(t *testing.T) {
	menu, out, _, database := newTestMenu(t, "4\n2024-03-10\n2024-03-17\n0\n", nil)
	seedPlays(t, database)

	if err := menu.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, want := range []string{"2024-03-10", "2024-03-17", "Total change:"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestViewPatternsNotEnoughDays(t *testing.T) {
	menu, out, _, database := newTestMenu(t, "5\n0\n", nil)
	seedPlays(t, database)

	if err := menu.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "Not enough listening days") {
		t.Errorf("output missing patterns message:\n%s", out.String())
	}
}
