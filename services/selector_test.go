package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricing-history/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func capture(ts string) models.CaptureRecord {
	t, err := time.Parse("20060102150405", ts)
	if err != nil {
		panic(err)
	}
	return models.CaptureRecord{
		URL:          "https://example.com/pricing",
		Timestamp:    t.UTC(),
		RawTimestamp: ts,
		StatusCode:   200,
		ArchiveURL:   "https://web.archive.org/web/" + ts + "/https://example.com/pricing",
	}
}

func TestWeekStart(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"sunday", date(2024, 3, 10), date(2024, 3, 10)},
		{"saturday", date(2024, 3, 16), date(2024, 3, 10)},
		{"last second", time.Date(2024, 3, 16, 23, 59, 59, 0, time.UTC), date(2024, 3, 10)},
		{"monday", date(2024, 3, 11), date(2024, 3, 10)},
		{"year boundary", date(2021, 1, 1), date(2020, 12, 27)},
		{"utc date wins", time.Date(2024, 3, 17, 1, 0, 0, 0, est), date(2024, 3, 17)},
	}

	for _, tt := range tests {
		got := WeekStart(tt.in)
		assert.Equal(t, tt.want, got, tt.name)
		assert.Equal(t, time.Sunday, got.Weekday())
	}
}

func TestRequestedWeeks(t *testing.T) {
	weeks := RequestedWeeks(date(2024, 1, 3), date(2024, 1, 31))

	require.Len(t, weeks, 5)
	assert.Equal(t, date(2023, 12, 31), weeks[0])
	assert.Equal(t, date(2024, 1, 28), weeks[4])
}

func TestBuildBucketsPartitionIsExhaustiveAndDisjoint(t *testing.T) {
	captures := []models.CaptureRecord{
		capture("20240101120000"),
		capture("20240106235959"),
		capture("20240107000000"),
		capture("20240110080000"),
		capture("20240125093000"),
	}

	buckets := BuildBuckets(captures, date(2024, 1, 1), date(2024, 1, 31))
	require.Len(t, buckets, 5)

	seen := make(map[string]int)
	for _, b := range buckets {
		for _, c := range b.Captures {
			seen[c.RawTimestamp]++
			assert.Equal(t, WeekStart(c.Timestamp), b.WeekStart)
		}
	}
	for _, c := range captures {
		assert.Equal(t, 1, seen[c.RawTimestamp], "capture %s must be in exactly one bucket", c.RawTimestamp)
	}

	assert.Len(t, buckets[0].Captures, 2)
	assert.Len(t, buckets[1].Captures, 2)
	assert.True(t, buckets[2].Empty(), "weeks without captures are kept")
	assert.Len(t, buckets[3].Captures, 1)
	assert.True(t, buckets[4].Empty())
}

func TestBuildBucketsSortsWithinWeek(t *testing.T) {
	captures := []models.CaptureRecord{
		capture("20240305000000"),
		capture("20240303000000"),
		capture("20240304000000"),
	}

	buckets := BuildBuckets(captures, date(2024, 3, 3), date(2024, 3, 9))
	require.Len(t, buckets, 1)
	got := buckets[0].Captures
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i-1].Timestamp.Before(got[i].Timestamp))
	}
}

type scripted struct {
	outcomes map[string]*models.FetchFailure
	tried    []string
}

func (s *scripted) try(_ context.Context, c models.CaptureRecord) (string, *models.FetchFailure) {
	s.tried = append(s.tried, c.RawTimestamp)
	if f, ok := s.outcomes[c.RawTimestamp]; ok {
		return "", f
	}
	return "page@" + c.RawTimestamp, nil
}

func TestSelectWeekFallsBackInOrder(t *testing.T) {
	bucket := models.WeekBucket{
		WeekStart: date(2024, 3, 3),
		Captures: []models.CaptureRecord{
			capture("20240303100000"),
			capture("20240304100000"),
			capture("20240306100000"),
			capture("20240308100000"),
		},
	}
	s := &scripted{outcomes: map[string]*models.FetchFailure{
		"20240303100000": {Kind: models.FailureTimeout},
		"20240304100000": {Kind: models.FailureTimeout},
	}}

	sel := SelectWeek(context.Background(), bucket, s.try)

	require.NotNil(t, sel.Chosen)
	assert.Equal(t, []string{"20240303100000", "20240304100000", "20240306100000"}, s.tried)
	assert.Equal(t, "20240306100000", sel.Chosen.RawTimestamp)
	assert.Equal(t, "page@20240306100000", sel.Value)
	assert.Equal(t, 3, sel.Attempts())
	assert.Equal(t, "", sel.ReasonCode())
	assert.Equal(t, date(2024, 3, 3), sel.Bucket.WeekStart, "week start stays the bucket's Sunday")
	for _, f := range sel.Failures {
		assert.False(t, sel.Chosen.Timestamp.Before(f.Capture.Timestamp))
	}
}

func TestSelectWeekAllFailed(t *testing.T) {
	bucket := models.WeekBucket{
		WeekStart: date(2024, 3, 3),
		Captures:  []models.CaptureRecord{capture("20240303100000"), capture("20240304100000")},
	}
	s := &scripted{outcomes: map[string]*models.FetchFailure{
		"20240303100000": {Kind: models.FailureTimeout},
		"20240304100000": {Kind: models.FailureHTTPError, StatusCode: 503},
	}}

	sel := SelectWeek(context.Background(), bucket, s.try)

	assert.Nil(t, sel.Chosen)
	assert.Equal(t, 2, sel.Attempts())
	assert.Equal(t, "week_all_failed:http_error", sel.ReasonCode())
}

func TestSelectWeekEmptyBucketMakesNoAttempt(t *testing.T) {
	s := &scripted{}
	sel := SelectWeek(context.Background(), models.WeekBucket{WeekStart: date(2024, 3, 3)}, s.try)

	assert.Empty(t, s.tried)
	assert.Equal(t, models.ReasonNoSnapshotsInRange, sel.ReasonCode())
}

func TestSelectWeekStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bucket := models.WeekBucket{
		WeekStart: date(2024, 3, 3),
		Captures:  []models.CaptureRecord{capture("20240303100000"), capture("20240304100000")},
	}
	tried := 0
	try := func(_ context.Context, c models.CaptureRecord) (int, *models.FetchFailure) {
		tried++
		cancel()
		return 0, &models.FetchFailure{Kind: models.FailureConnectionError}
	}

	sel := SelectWeek(ctx, bucket, try)

	assert.True(t, sel.Canceled)
	assert.Equal(t, 1, tried, "no new attempt after cancellation")
}
