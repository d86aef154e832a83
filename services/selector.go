package services

import (
	"context"
	"sort"
	"time"

	"pricing-history/models"
)

// WeekStart returns the most recent Sunday at or before t's UTC date, at
// midnight UTC.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// RequestedWeeks lists every week start from WeekStart(from) through
// WeekStart(to), in order.
func RequestedWeeks(from, to time.Time) []time.Time {
	var weeks []time.Time
	last := WeekStart(to)
	for w := WeekStart(from); !w.After(last); w = w.AddDate(0, 0, 7) {
		weeks = append(weeks, w)
	}
	return weeks
}

// BuildBuckets partitions captures into one bucket per requested week,
// including weeks with no capture. Each capture lands in exactly the bucket
// of its own WeekStart; captures whose week is outside the range are dropped.
func BuildBuckets(captures []models.CaptureRecord, from, to time.Time) []models.WeekBucket {
	weeks := RequestedWeeks(from, to)
	buckets := make([]models.WeekBucket, len(weeks))
	index := make(map[int64]int, len(weeks))
	for i, w := range weeks {
		buckets[i] = models.WeekBucket{WeekStart: w}
		index[w.Unix()] = i
	}

	for _, c := range captures {
		i, ok := index[WeekStart(c.Timestamp).Unix()]
		if !ok {
			continue
		}
		buckets[i].Captures = append(buckets[i].Captures, c)
	}

	for i := range buckets {
		caps := buckets[i].Captures
		sort.SliceStable(caps, func(a, b int) bool {
			return caps[a].Timestamp.Before(caps[b].Timestamp)
		})
	}
	return buckets
}

// AttemptFunc tries one capture. A nil failure means success.
type AttemptFunc[T any] func(ctx context.Context, capture models.CaptureRecord) (T, *models.FetchFailure)

// AttemptFailure records one failed capture of a bucket.
type AttemptFailure struct {
	Capture models.CaptureRecord
	Failure *models.FetchFailure
}

// Selection is the outcome of walking one week bucket.
type Selection[T any] struct {
	Bucket   models.WeekBucket
	Chosen   *models.CaptureRecord
	Value    T
	Failures []AttemptFailure
	// Canceled is set when ctx ended before the bucket was resolved.
	Canceled bool
}

// Attempts is the number of captures that were tried.
func (s Selection[T]) Attempts() int {
	n := len(s.Failures)
	if s.Chosen != nil {
		n++
	}
	return n
}

// LastFailureKind is the kind of the most recent failed attempt.
func (s Selection[T]) LastFailureKind() models.FailureKind {
	if len(s.Failures) == 0 {
		return ""
	}
	return s.Failures[len(s.Failures)-1].Failure.Kind
}

// ReasonCode is empty for a resolved week, no_snapshots_in_range for an empty
// bucket and week_all_failed:<kind> for an exhausted one.
func (s Selection[T]) ReasonCode() string {
	switch {
	case s.Chosen != nil:
		return ""
	case s.Bucket.Empty():
		return models.ReasonNoSnapshotsInRange
	default:
		return models.WeekAllFailedReason(s.LastFailureKind())
	}
}

// SelectWeek folds over the bucket in timestamp order and stops at the first
// capture try accepts. An empty bucket makes no attempt. No new attempt is
// started once ctx is done.
func SelectWeek[T any](ctx context.Context, bucket models.WeekBucket, try AttemptFunc[T]) Selection[T] {
	return foldUntilSuccess(ctx, Selection[T]{Bucket: bucket}, bucket.Captures, try)
}

func foldUntilSuccess[T any](ctx context.Context, acc Selection[T], captures []models.CaptureRecord, try AttemptFunc[T]) Selection[T] {
	for _, c := range captures {
		if ctx.Err() != nil {
			acc.Canceled = true
			return acc
		}

		value, failure := try(ctx, c)
		if failure == nil {
			chosen := c
			acc.Chosen = &chosen
			acc.Value = value
			return acc
		}
		acc.Failures = append(acc.Failures, AttemptFailure{Capture: c, Failure: failure})
	}
	return acc
}
