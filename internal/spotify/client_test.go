package spotify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestRecentlyPlayedToday(t *testing.T) {
	const body = `{
		"items": [
			{
				"played_at": "2024-03-10T14:30:45.123Z",
				"track": {
					"id": "track1",
					"name": "Song One",
					"duration_ms": 215000,
					"album": {
						"id": "album1",
						"name": "Album One",
						"release_date": "2020-05-01",
						"artists": [{"id": "artist1", "name": "Artist One"}]
					}
				}
			}
		]
	}`

	fixedNow := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)

	var gotQuery map[string]string
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"limit": r.URL.Query().Get("limit"),
			"after": r.URL.Query().Get("after"),
		}
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	defer server.Close()

	client := NewClient("test-token",
		WithBaseURL(server.URL),
		WithClock(func() time.Time { return fixedNow }),
	)

	payload, err := client.RecentlyPlayedToday(context.Background())
	if err != nil {
		t.Fatalf("RecentlyPlayedToday() error = %v", err)
	}

	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer test-token")
	}
	if gotQuery["limit"] != "50" {
		t.Errorf("limit = %q, want %q", gotQuery["limit"], "50")
	}
	wantAfter := strconv.FormatInt(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC).UnixMilli(), 10)
	if got := gotQuery["after"]; got != wantAfter {
		t.Errorf("after = %q, want %q", got, wantAfter)
	}

	if len(payload.Items) != 1 {
		t.Fatalf("len(Items) = %d, want 1", len(payload.Items))
	}
	item := payload.Items[0]
	if item.PlayedAt != "2024-03-10T14:30:45.123Z" {
		t.Errorf("PlayedAt = %q", item.PlayedAt)
	}
	if item.Track == nil || item.Track.Name != "Song One" {
		t.Errorf("Track = %+v, want Song One", item.Track)
	}
	if item.Track.Album == nil || len(item.Track.Album.Artists) != 1 {
		t.Fatalf("Album = %+v, want one artist", item.Track.Album)
	}
	if item.Track.Album.Artists[0].Name != "Artist One" {
		t.Errorf("artist = %q, want %q", item.Track.Album.Artists[0].Name, "Artist One")
	}
}

func TestRecentlyPlayedToday_ErrorBodyPassedThrough(t *testing.T) {
	// An expired token returns an error-shaped JSON body. The client must
	// return it as a payload, not an error; the transformer rejects it.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"status": 401, "message": "The access token expired"}}`))
	}))
	defer server.Close()

	client := NewClient("expired-token", WithBaseURL(server.URL))

	payload, err := client.RecentlyPlayedToday(context.Background())
	if err != nil {
		t.Fatalf("RecentlyPlayedToday() error = %v, want nil", err)
	}
	if payload.Error == nil {
		t.Fatal("payload.Error = nil, want error envelope")
	}
	if payload.Error.Status != 401 {
		t.Errorf("payload.Error.Status = %d, want 401", payload.Error.Status)
	}
	if payload.Items != nil {
		t.Errorf("payload.Items = %v, want nil", payload.Items)
	}
}

func TestRecentlyPlayedToday_UndecodableBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>Bad Gateway</html>"))
	}))
	defer server.Close()

	client := NewClient("token", WithBaseURL(server.URL))

	_, err := client.RecentlyPlayedToday(context.Background())
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("error = %v, want ErrUpstream", err)
	}
}

func TestRecentlyPlayedToday_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	client := NewClient("token", WithBaseURL(server.URL))

	_, err := client.RecentlyPlayedToday(context.Background())
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("error = %v, want ErrUpstream", err)
	}
}

func TestMidnightEpochMs(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)

	tests := []struct {
		name string
		t    time.Time
		want int64
	}{
		{
			name: "afternoon utc",
			t:    time.Date(2024, 3, 10, 15, 42, 7, 0, time.UTC),
			want: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC).UnixMilli(),
		},
		{
			name: "just after midnight est",
			t:    time.Date(2024, 3, 10, 0, 0, 1, 0, est),
			want: time.Date(2024, 3, 10, 0, 0, 0, 0, est).UnixMilli(),
		},
		{
			name: "exactly midnight",
			t:    time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
			want: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC).UnixMilli(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MidnightEpochMs(tt.t); got != tt.want {
				t.Errorf("MidnightEpochMs() = %d, want %d", got, tt.want)
			}
		})
	}
}
