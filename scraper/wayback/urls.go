package wayback

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// TimestampLayout is the 14-digit capture timestamp used by the archive.
const TimestampLayout = "20060102150405"

// ParseTimestamp parses a raw capture timestamp as UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	if len(raw) != len(TimestampLayout) {
		return time.Time{}, fmt.Errorf("wayback: timestamp %q: want %d digits", raw, len(TimestampLayout))
	}
	t, err := time.ParseInLocation(TimestampLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("wayback: timestamp %q: %w", raw, err)
	}
	return t, nil
}

// ArchiveURL is the replay URL of one capture, the form written to output.
func ArchiveURL(base, rawTimestamp, pageURL string) string {
	return strings.TrimRight(base, "/") + "/" + rawTimestamp + "/" + pageURL
}

var replayTimestamp = regexp.MustCompile(`/(\d{14})/`)

// RawArchiveURL rewrites a replay URL to its id_ form, which serves the
// original bytes without the archive's toolbar or link rewriting. URLs that
// are already raw, or carry no timestamp, are returned unchanged.
func RawArchiveURL(archiveURL string) string {
	loc := replayTimestamp.FindStringSubmatchIndex(archiveURL)
	if loc == nil {
		return archiveURL
	}
	return archiveURL[:loc[3]] + "id_" + archiveURL[loc[3]:]
}
