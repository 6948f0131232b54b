// Package cli implements the interactive text menu over the history store
// and the ETL pipeline. It owns all prompting; the pipeline itself never
// talks to the terminal.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jmorin/go-spotify-history/internal/db"
	"github.com/jmorin/go-spotify-history/internal/etl"
	"github.com/jmorin/go-spotify-history/internal/patterns"
	"github.com/jmorin/go-spotify-history/internal/spotify"
	"github.com/jmorin/go-spotify-history/internal/stats"
	"github.com/jmorin/go-spotify-history/internal/timefmt"
)

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// maxCredentialRetries bounds how many fresh credentials the ETL loop asks
// for before giving up without an explicit quit.
const maxCredentialRetries = 3

// CredentialSource produces bearer access tokens and can discard a bad one.
// *auth.Authenticator satisfies it.
type CredentialSource interface {
	AccessToken(ctx context.Context) (string, error)
	Logout() error
}

// Config holds menu dependencies.
type Config struct {
	In          io.Reader
	Out         io.Writer
	Database    *db.DB
	Credentials CredentialSource

	// ExtractorFor builds an extractor from an access token. Defaults to
	// the Spotify recently-played client; tests substitute fakes.
	ExtractorFor func(token string) etl.Extractor
}

// Menu is the interactive front end.
type Menu struct {
	in           *bufio.Scanner
	out          io.Writer
	database     *db.DB
	creds        CredentialSource
	pipeline     *etl.Pipeline
	extractorFor func(token string) etl.Extractor
}

// New creates a Menu.
func New(cfg Config) *Menu {
	extractorFor := cfg.ExtractorFor
	if extractorFor == nil {
		extractorFor = func(token string) etl.Extractor {
			return spotify.NewClient(token)
		}
	}
	return &Menu{
		in:           bufio.NewScanner(cfg.In),
		out:          cfg.Out,
		database:     cfg.Database,
		creds:        cfg.Credentials,
		pipeline:     etl.NewPipeline(cfg.Database.History()),
		extractorFor: extractorFor,
	}
}

// Run shows the menu until the user exits or input ends.
func (m *Menu) Run(ctx context.Context) error {
	for {
		fmt.Fprintln(m.out)
		fmt.Fprintln(m.out, "[1] - Add today's tracks to your all-time history")
		fmt.Fprintln(m.out, "[2] - View your listening history from a certain day")
		fmt.Fprintln(m.out, "[3] - View your most listened to tracks, artists or albums")
		fmt.Fprintln(m.out, "[4] - Compare two weeks of listening")
		fmt.Fprintln(m.out, "[5] - View your listening patterns")
		fmt.Fprintln(m.out, "[0] - Exit program")

		choice, ok := m.prompt("Please select one of the options above: ")
		if !ok {
			return nil
		}

		var err error
		switch choice {
		case "1":
			err = m.runETL(ctx)
		case "2":
			err = m.viewDayHistory(ctx)
		case "3":
			err = m.viewMostListened(ctx)
		case "4":
			err = m.viewWeeklyComparison(ctx)
		case "5":
			err = m.viewPatterns(ctx)
		case "0":
			return nil
		default:
			continue
		}
		if err != nil {
			return err
		}
	}
}

// prompt writes the message and reads one trimmed line.
// ok is false when input has ended.
func (m *Menu) prompt(msg string) (string, bool) {
	fmt.Fprint(m.out, msg)
	if !m.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(m.in.Text()), true
}

// runETL executes the full ETL pass, re-authenticating on what looks like an
// invalid credential until the user opts out or the retry budget runs out.
func (m *Menu) runETL(ctx context.Context) error {
	for attempt := 0; attempt < maxCredentialRetries; attempt++ {
		token, err := m.creds.AccessToken(ctx)
		if err != nil {
			fmt.Fprintf(m.out, "Could not get an access token: %v\n", err)
			return nil
		}

		result, err := m.pipeline.Run(ctx, m.extractorFor(token))
		switch {
		case err == nil:
			fmt.Fprintf(m.out, "Today's tracks successfully loaded! (%d extracted, %d new)\n",
				result.Extracted, result.Merged)
			return nil

		case errors.Is(err, etl.ErrMalformedPayload):
			fmt.Fprintln(m.out, "There was a problem transforming your data. Your token may have expired.")
			answer, ok := m.prompt("Re-authenticate and try again? (y/n): ")
			if !ok || !strings.EqualFold(answer, "y") {
				return nil
			}
			if err := m.creds.Logout(); err != nil {
				fmt.Fprintf(m.out, "Could not discard cached token: %v\n", err)
			}

		case errors.Is(err, etl.ErrEmptyBatch):
			fmt.Fprintln(m.out, "No songs found for today. Try listening to a few songs first.")
			return nil

		default:
			fmt.Fprintf(m.out, "Loading today's tracks failed: %v\n", err)
			return nil
		}
	}

	fmt.Fprintln(m.out, "Giving up after repeated credential failures.")
	return nil
}

// promptDate asks for a date until valid; returns ok=false on 'quit' or EOF.
func (m *Menu) promptDate(msg string) (string, bool) {
	for {
		input, ok := m.prompt(msg)
		if !ok || strings.EqualFold(input, "quit") {
			return "", false
		}
		if dateRe.MatchString(input) {
			return input, true
		}
		fmt.Fprintln(m.out, "Invalid date provided.")
	}
}

func (m *Menu) viewDayHistory(ctx context.Context) error {
	date, ok := m.promptDate("Enter the day to view in YYYY-MM-DD format (or 'quit' to return): ")
	if !ok {
		return nil
	}

	plays, err := m.database.History().DayHistory(ctx, date)
	if err != nil {
		return fmt.Errorf("loading history for %s: %w", date, err)
	}
	if len(plays) == 0 {
		fmt.Fprintln(m.out, "There are no recorded songs for this date.")
		return nil
	}

	tw := tabwriter.NewWriter(m.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRACK\tARTIST\tALBUM\tRELEASED\tTIME\tDURATION")
	for _, p := range plays {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.TrackName, p.ArtistName, p.AlbumName, p.ReleaseDate, p.TimePlayed, p.Duration)
	}
	return tw.Flush()
}

func (m *Menu) viewMostListened(ctx context.Context) error {
	fmt.Fprintln(m.out, "Would you like to see your most listened to:")
	fmt.Fprintln(m.out, "[1] - Tracks")
	fmt.Fprintln(m.out, "[2] - Artists")
	fmt.Fprintln(m.out, "[3] - Albums")
	fmt.Fprintln(m.out, "[0] - Return to main menu")

	dims := map[string]db.Dimension{
		"1": db.DimensionTrack,
		"2": db.DimensionArtist,
		"3": db.DimensionAlbum,
	}
	var dim db.Dimension
	for {
		choice, ok := m.prompt("Please select one of the options above (1, 2, 3 or 0): ")
		if !ok || choice == "0" {
			return nil
		}
		if d, found := dims[choice]; found {
			dim = d
			break
		}
	}

	limits := map[string]int{"1": 1, "2": 5, "3": 10}
	fmt.Fprintln(m.out, "Would you like to see the:")
	fmt.Fprintln(m.out, "[1] - Top 1")
	fmt.Fprintln(m.out, "[2] - Top 5")
	fmt.Fprintln(m.out, "[3] - Top 10")
	var limit int
	for {
		choice, ok := m.prompt("Please select one of the options above (1, 2 or 3): ")
		if !ok {
			return nil
		}
		if l, found := limits[choice]; found {
			limit = l
			break
		}
	}

	ranked, err := m.database.History().TopEntities(ctx, dim, limit)
	if err != nil {
		return fmt.Errorf("ranking %s: %w", dim, err)
	}
	if len(ranked) == 0 {
		fmt.Fprintln(m.out, "Your history is empty. Load some tracks first.")
		return nil
	}

	tw := tabwriter.NewWriter(m.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\tPLAYS\n", strings.ToUpper(strings.TrimSuffix(string(dim), "_name")))
	for _, ec := range ranked {
		fmt.Fprintf(tw, "%s\t%d\n", ec.Name, ec.Plays)
	}
	return tw.Flush()
}

func (m *Menu) viewWeeklyComparison(ctx context.Context) error {
	dateA, ok := m.promptDate("Enter a date inside the first week (YYYY-MM-DD, or 'quit'): ")
	if !ok {
		return nil
	}
	dateB, ok := m.promptDate("Enter a date inside the second week (YYYY-MM-DD, or 'quit'): ")
	if !ok {
		return nil
	}

	// The regex admits shapes like month 13; Parse catches those.
	refA, errA := time.Parse("2006-01-02", dateA)
	refB, errB := time.Parse("2006-01-02", dateB)
	if errA != nil || errB != nil {
		fmt.Fprintln(m.out, "Invalid date provided.")
		return nil
	}

	cmp, err := stats.NewComparator(m.database.History()).CompareWeeks(ctx, refA, refB)
	if err != nil {
		return fmt.Errorf("comparing weeks: %w", err)
	}

	tw := tabwriter.NewWriter(m.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY A\tDAY B\tWEEK A\tWEEK B\tDELTA")
	for i := range cmp.WeekA {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%+dm\n",
			cmp.WeekA[i], cmp.WeekB[i],
			timefmt.FormatDuration(int(cmp.TotalsA[i])),
			timefmt.FormatDuration(int(cmp.TotalsB[i])),
			cmp.DayDeltas[i]/60000)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	verdict := "not significant"
	if cmp.Significant {
		verdict = "significant"
	}
	fmt.Fprintf(m.out, "Total change: %+d minutes. t = %.3f (critical %.3f): %s.\n",
		cmp.TotalDelta/60000, cmp.TStatistic, cmp.TCritical, verdict)
	return nil
}

func (m *Menu) viewPatterns(ctx context.Context) error {
	found, outliers, err := patterns.NewService(m.database.History()).Detect(ctx, patterns.DefaultConfig())
	if err != nil {
		return fmt.Errorf("detecting patterns: %w", err)
	}

	if len(found) == 0 {
		fmt.Fprintf(m.out, "Not enough listening days to detect patterns yet (%d unclustered).\n", len(outliers))
		return nil
	}
	for _, p := range found {
		fmt.Fprintln(m.out, p.Name)
	}
	if len(outliers) > 0 {
		fmt.Fprintf(m.out, "(%d days did not fit any pattern)\n", len(outliers))
	}
	return nil
}
