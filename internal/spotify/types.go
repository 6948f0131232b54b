package spotify

// RawPayload is the decoded recently-played response body, unvalidated.
// Nested fields are pointers so a structurally incomplete item (including the
// error-shaped body returned for an expired token) is detectable downstream
// instead of silently defaulting.
type RawPayload struct {
	Items []PlayedItem `json:"items"`
	Error *apiError    `json:"error"`
}

// PlayedItem is one entry in the recently-played list.
type PlayedItem struct {
	PlayedAt string `json:"played_at"` // ISO-8601 UTC
	Track    *Track `json:"track"`
}

// Track carries the track fields the history store records.
type Track struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DurationMs int    `json:"duration_ms"`
	Album      *Album `json:"album"`
}

// Album carries album metadata including its credited artists.
type Album struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	ReleaseDate string   `json:"release_date"` // may be year-only
	Artists     []Artist `json:"artists"`
}

// Artist is an album-credited artist.
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// apiError is the Spotify API error envelope.
type apiError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}
