// package formatter renders presence history and engine status as CSV, Markdown or plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/ytrpc/internal/models"
	"github.com/desertthunder/ytrpc/internal/shared"
)

// Format names accepted by [Render].
const (
	FormatText     = "text"
	FormatCSV      = "csv"
	FormatMarkdown = "md"
)

// Render dispatches to the exporter for format.
func Render(format string, entries []models.HistoryEntry) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", FormatText:
		return HistoryToText(entries)
	case FormatCSV:
		return HistoryToCSV(entries)
	case FormatMarkdown, "markdown":
		return HistoryToMarkdown(entries)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
}

// HistoryToCSV converts history entries to CSV with columns: ID, Confirmed, Title, Artist, Duration, URL
func HistoryToCSV(entries []models.HistoryEntry) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Confirmed", "Title", "Artist", "Duration", "URL"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, e := range entries {
		record := []string{
			e.ID,
			e.ConfirmedAt.UTC().Format(time.RFC3339),
			e.Title,
			e.Subtitle,
			durationSeconds(e),
			e.URL,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// HistoryToMarkdown renders history entries as a numbered Markdown list, linking tracks with a URL.
func HistoryToMarkdown(entries []models.HistoryEntry) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Presence history\n\n")
	fmt.Fprintf(&buf, "**Entries**: %d\n\n", len(entries))

	for i, e := range entries {
		title := e.Title
		if e.URL != "" {
			title = fmt.Sprintf("[%s](%s)", e.Title, e.URL)
		}
		fmt.Fprintf(&buf, "%d. %s - %s [%s]\n", i+1, e.Subtitle, title, Duration(e))
	}

	return buf.Bytes(), nil
}

// HistoryToText renders history entries one per line.
func HistoryToText(entries []models.HistoryEntry) ([]byte, error) {
	var buf bytes.Buffer

	if len(entries) == 0 {
		buf.WriteString("No confirmed presences yet\n")
		return buf.Bytes(), nil
	}

	for _, e := range entries {
		fmt.Fprintf(&buf, "%s  %s - %s [%s]\n",
			e.ConfirmedAt.Local().Format("2006-01-02 15:04:05"), e.Subtitle, e.Title, Duration(e))
	}

	return buf.Bytes(), nil
}

// StatusToText renders a status snapshot for terminal output.
func StatusToText(s models.StatusSnapshot) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "State:          %s\n", s.ConnectionState)
	if s.SinkIdentity != nil {
		fmt.Fprintf(&buf, "Account:        %s\n", s.SinkIdentity)
	}
	if s.HostVersion != "" {
		mismatch := ""
		if s.VersionMismatch {
			mismatch = " (version mismatch)"
		}
		fmt.Fprintf(&buf, "Host version:   %s%s\n", s.HostVersion, mismatch)
	}
	if p := s.PresenceForDisplay; p != nil {
		fmt.Fprintf(&buf, "Presence:       %s - %s\n", p.Subtitle, p.Title)
		if p.EndsAt == nil {
			buf.WriteString("Playback:       paused\n")
		}
	} else {
		buf.WriteString("Presence:       none\n")
	}
	fmt.Fprintf(&buf, "Auto reconnect: %t\n", s.AutoReconnect)
	if s.ManualDisconnect {
		buf.WriteString("Manual:         disconnected by user\n")
	}
	if s.RetryAttempts > 0 {
		fmt.Fprintf(&buf, "Retry attempts: %d\n", s.RetryAttempts)
	}
	if s.NextRetryAt != nil {
		fmt.Fprintf(&buf, "Next retry:     %s\n", s.NextRetryAt.Local().Format(time.TimeOnly))
	}
	if s.LastError != "" {
		fmt.Fprintf(&buf, "Last error:     %s\n", s.LastError)
	}

	return buf.Bytes()
}

// Duration formats the track length of an entry as m:ss, or "paused" when no end is known.
func Duration(e models.HistoryEntry) string {
	if e.EndsAt == nil {
		return "paused"
	}
	secs := (*e.EndsAt - e.StartedAt) / 1000
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

func durationSeconds(e models.HistoryEntry) string {
	if e.EndsAt == nil {
		return ""
	}
	return strconv.FormatInt((*e.EndsAt-e.StartedAt)/1000, 10)
}

// WriteHistoryExport renders entries in format and writes them to path.
func WriteHistoryExport(entries []models.HistoryEntry, format, path string) error {
	data, err := Render(format, entries)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	return nil
}
