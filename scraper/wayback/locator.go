package wayback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"pricing-history/models"
	"pricing-history/utils"
)

// ErrServiceUnavailable means the capture index could not be read for a page.
// A Locate error always wraps it; callers never get a partial list.
var ErrServiceUnavailable = errors.New("capture index unavailable")

const cdxDateLayout = "20060102"

// statusError is a non-2xx answer from the capture index.
type statusError struct {
	StatusCode int
}

func (e *statusError) Error() string { return fmt.Sprintf("cdx: http %d", e.StatusCode) }

// cdxPage is one decoded page of index results.
type cdxPage struct {
	captures  []models.CaptureRecord
	resumeKey string
}

// Locate lists the status-200 captures of pageURL between from and to
// (inclusive, by day), following resume keys across pages. The result is
// ascending by timestamp, with adjacent captures of identical content
// collapsed to the first one.
func (s *Session) Locate(ctx context.Context, pageURL string, from, to time.Time) ([]models.CaptureRecord, error) {
	retry := &utils.RetryConfig{
		MaxAttempts: s.opts.MaxRetries,
		BaseDelay:   s.opts.RetryBaseDelay,
		MaxDelay:    s.opts.RetryMaxDelay,
		IsRetryable: isRetryable,
		Logger:      s.logger,
	}

	var (
		captures  []models.CaptureRecord
		resumeKey string
		pages     int
	)
	for {
		var page cdxPage
		err := retry.Do(ctx, "cdx query "+pageURL, func() error {
			var err error
			page, err = s.queryPage(ctx, pageURL, from, to, resumeKey)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("wayback: locate %s: %w: %w", pageURL, ErrServiceUnavailable, err)
		}

		pages++
		captures = append(captures, page.captures...)
		if page.resumeKey == "" || page.resumeKey == resumeKey {
			break
		}
		resumeKey = page.resumeKey
	}

	captures = sortAndCollapse(captures)
	s.logger.Debug("[wayback] %s: %d captures over %d index pages", pageURL, len(captures), pages)
	return captures, nil
}

func (s *Session) queryPage(ctx context.Context, pageURL string, from, to time.Time, resumeKey string) (cdxPage, error) {
	release, err := s.gate.Acquire(ctx)
	if err != nil {
		return cdxPage{}, err
	}
	defer release()

	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.Timeout)
	defer cancel()

	params := map[string]string{
		"url":           pageURL,
		"from":          from.UTC().Format(cdxDateLayout),
		"to":            to.UTC().Format(cdxDateLayout),
		"output":        "json",
		"fl":            "timestamp,digest,statuscode",
		"filter":        "statuscode:200",
		"collapse":      "digest",
		"showResumeKey": "true",
		"limit":         strconv.Itoa(s.opts.PageSize),
	}
	if resumeKey != "" {
		params["resumeKey"] = resumeKey
	}

	resp, err := s.http.R().
		SetContext(reqCtx).
		SetQueryParams(params).
		Get(s.opts.CDXEndpoint)
	if err != nil {
		return cdxPage{}, fmt.Errorf("cdx: request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return cdxPage{}, &statusError{StatusCode: resp.StatusCode()}
	}

	return s.decodePage(pageURL, resp.Body())
}

// decodePage reads the JSON table the index returns: a header row, data
// rows, and optionally an empty row followed by a one-element resume key row.
func (s *Session) decodePage(pageURL string, body []byte) (cdxPage, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return cdxPage{}, nil
	}

	var rows [][]string
	if err := json.Unmarshal(body, &rows); err != nil {
		return cdxPage{}, fmt.Errorf("cdx: decode: %w", err)
	}
	if len(rows) == 0 {
		return cdxPage{}, nil
	}

	tsCol, digestCol, statusCol := -1, -1, -1
	for i, name := range rows[0] {
		switch name {
		case "timestamp":
			tsCol = i
		case "digest":
			digestCol = i
		case "statuscode":
			statusCol = i
		}
	}
	if tsCol < 0 {
		return cdxPage{}, fmt.Errorf("cdx: decode: no timestamp column in %v", rows[0])
	}

	var page cdxPage
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if len(row) == 0 {
			if i+1 < len(rows) && len(rows[i+1]) > 0 {
				page.resumeKey = rows[i+1][0]
			}
			break
		}
		if tsCol >= len(row) {
			continue
		}

		raw := row[tsCol]
		ts, err := ParseTimestamp(raw)
		if err != nil {
			s.logger.Debug("[wayback] %s: skipping capture: %v", pageURL, err)
			continue
		}

		rec := models.CaptureRecord{
			URL:          pageURL,
			Timestamp:    ts,
			RawTimestamp: raw,
			StatusCode:   http.StatusOK,
			ArchiveURL:   ArchiveURL(s.opts.ArchiveBaseURL, raw, pageURL),
		}
		if digestCol >= 0 && digestCol < len(row) {
			rec.Digest = row[digestCol]
		}
		if statusCol >= 0 && statusCol < len(row) {
			if code, err := strconv.Atoi(row[statusCol]); err == nil {
				rec.StatusCode = code
			}
		}
		page.captures = append(page.captures, rec)
	}
	return page, nil
}

// sortAndCollapse orders captures by time and drops every capture whose
// digest equals the one just before it.
func sortAndCollapse(captures []models.CaptureRecord) []models.CaptureRecord {
	sort.SliceStable(captures, func(i, j int) bool {
		return captures[i].Timestamp.Before(captures[j].Timestamp)
	})

	out := make([]models.CaptureRecord, 0, len(captures))
	for _, c := range captures {
		if n := len(out); n > 0 && c.Digest != "" && out[n-1].Digest == c.Digest {
			continue
		}
		out = append(out, c)
	}
	return out
}

// isRetryable accepts throttling, server errors, transport failures and
// garbled responses. Cancellation and other client errors are final.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return true
}
