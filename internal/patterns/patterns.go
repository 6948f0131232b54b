// Package patterns groups listening days by their hour-of-day play profile
// using k-means clustering.
package patterns

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"

	"github.com/jmorin/go-spotify-history/internal/db"
)

// hoursPerDay is the dimensionality of a day profile.
const hoursPerDay = 24

// Config holds clustering parameters.
type Config struct {
	NumClusters    int // Number of clusters to create (default: 3)
	MinClusterSize int // Minimum days per pattern (smaller clusters become outliers)
}

// DefaultConfig returns the recommended default configuration.
func DefaultConfig() Config {
	return Config{
		NumClusters:    3,
		MinClusterSize: 3,
	}
}

// DayProfile is one calendar day's play counts broken down by hour.
type DayProfile struct {
	Date  string // "2006-01-02"
	Hours [hoursPerDay]int
	Plays int // total plays that day
}

// Pattern is a cluster of days with a similar time-of-day listening shape.
type Pattern struct {
	ID        uuid.UUID
	Name      string // e.g. "Evening Listener: Mar 1 - Apr 2, 2024 (12 days)"
	Days      []DayProfile
	Centroid  [hoursPerDay]float64 // average share of plays per hour
	StartDate string
	EndDate   string
}

// BuildProfiles folds per-day-per-hour counts into one profile per day.
// Input order (date then hour, as HourlyProfiles returns it) is preserved
// in the output's date order.
func BuildProfiles(counts []db.HourCount) []DayProfile {
	var profiles []DayProfile
	index := make(map[string]int)

	for _, hc := range counts {
		if hc.Hour < 0 || hc.Hour >= hoursPerDay {
			continue
		}
		i, ok := index[hc.Date]
		if !ok {
			i = len(profiles)
			index[hc.Date] = i
			profiles = append(profiles, DayProfile{Date: hc.Date})
		}
		profiles[i].Hours[hc.Hour] += hc.Count
		profiles[i].Plays += hc.Count
	}
	return profiles
}

// dayObservation wraps a DayProfile to implement clusters.Observation.
// Coordinates are per-hour shares of the day's plays so heavy and light
// listening days with the same shape cluster together.
type dayObservation struct {
	day    *DayProfile
	coords clusters.Coordinates
}

func (o dayObservation) Coordinates() clusters.Coordinates {
	return o.coords
}

func (o dayObservation) Distance(point clusters.Coordinates) float64 {
	return o.coords.Distance(point)
}

func normalize(day *DayProfile) clusters.Coordinates {
	coords := make(clusters.Coordinates, hoursPerDay)
	if day.Plays == 0 {
		return coords
	}
	for h, c := range day.Hours {
		coords[h] = float64(c) / float64(day.Plays)
	}
	return coords
}

// DetectPatterns groups days by hour-of-day profile similarity. Days in
// clusters smaller than cfg.MinClusterSize are returned as outliers. With
// fewer days than clusters there is nothing to partition and every day is an
// outlier.
func DetectPatterns(profiles []DayProfile, cfg Config) ([]Pattern, []DayProfile, error) {
	if len(profiles) == 0 {
		return nil, nil, nil
	}

	if cfg.NumClusters <= 0 {
		cfg.NumClusters = DefaultConfig().NumClusters
	}

	if len(profiles) < cfg.NumClusters {
		outliers := append([]DayProfile(nil), profiles...)
		return nil, outliers, nil
	}

	var obs clusters.Observations
	for i := range profiles {
		day := &profiles[i]
		obs = append(obs, dayObservation{day: day, coords: normalize(day)})
	}

	km := kmeans.New()
	result, err := km.Partition(obs, cfg.NumClusters)
	if err != nil {
		return nil, nil, fmt.Errorf("partitioning day profiles: %w", err)
	}

	var found []Pattern
	var outliers []DayProfile

	for _, cluster := range result {
		var days []DayProfile
		for _, o := range cluster.Observations {
			if do, ok := o.(dayObservation); ok {
				days = append(days, *do.day)
			}
		}

		if len(days) < cfg.MinClusterSize {
			outliers = append(outliers, days...)
			continue
		}

		slices.SortFunc(days, func(a, b DayProfile) int {
			return strings.Compare(a.Date, b.Date)
		})

		var centroid [hoursPerDay]float64
		for h := 0; h < hoursPerDay && h < len(cluster.Center); h++ {
			centroid[h] = cluster.Center[h]
		}

		start := days[0].Date
		end := days[len(days)-1].Date
		name := fmt.Sprintf("%s: %s - %s (%d days)", daypartName(centroid), start, end, len(days))

		found = append(found, Pattern{
			ID:        uuid.New(),
			Name:      name,
			Days:      days,
			Centroid:  centroid,
			StartDate: start,
			EndDate:   end,
		})
	}

	slices.SortFunc(found, func(a, b Pattern) int {
		return strings.Compare(a.StartDate, b.StartDate)
	})

	return found, outliers, nil
}

// daypartName names a pattern by the six-hour block its centroid weights
// heaviest: night 00-05, morning 06-11, afternoon 12-17, evening 18-23.
func daypartName(centroid [hoursPerDay]float64) string {
	blocks := []struct {
		name  string
		start int
	}{
		{"Night Owl", 0},
		{"Morning Listener", 6},
		{"Afternoon Listener", 12},
		{"Evening Listener", 18},
	}

	best := blocks[0].name
	bestWeight := -1.0
	for _, b := range blocks {
		var w float64
		for h := b.start; h < b.start+6; h++ {
			w += centroid[h]
		}
		if w > bestWeight {
			bestWeight = w
			best = b.name
		}
	}
	return best
}

// Service detects listening patterns from the history store.
type Service struct {
	history *db.HistoryRepository
}

// NewService creates a pattern-detection service.
func NewService(history *db.HistoryRepository) *Service {
	return &Service{history: history}
}

// Detect builds day profiles from complete history and clusters them.
func (s *Service) Detect(ctx context.Context, cfg Config) ([]Pattern, []DayProfile, error) {
	counts, err := s.history.HourlyProfiles(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("loading hourly profiles: %w", err)
	}
	return DetectPatterns(BuildProfiles(counts), cfg)
}
