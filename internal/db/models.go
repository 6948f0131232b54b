package db

// Play is one listening event, the row shape shared by the complete-history
// and staging tables. TimePlayed is the natural key: two plays cannot resolve
// to the same local millisecond timestamp.
type Play struct {
	TrackName      string
	ArtistName     string
	AlbumName      string
	TrackID        string
	ArtistID       string
	AlbumID        string
	ReleaseDate    string // upstream album release date, may be year-only
	DateTimePlayed string // "2006-01-02 15:04:05:000" local
	DatePlayed     string // "2006-01-02" local
	TimePlayed     string // "15:04:05:000" local, natural key
	DurationMs     int
	Duration       string // "M:SS" display form
}

// EntityCount is one row of a frequency ranking.
type EntityCount struct {
	Name  string
	Plays int
}

// HourCount is the play count for one hour of one calendar day.
type HourCount struct {
	Date  string
	Hour  int
	Count int
}
