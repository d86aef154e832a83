package storage

import (
	"errors"

	"pricing-history/models"
)

// MultiWriter fans every batch out to several backends.
type MultiWriter struct {
	writers []RowWriter
}

// NewMultiWriter returns a writer over the given backends, in order.
func NewMultiWriter(writers ...RowWriter) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// WriteRows writes to every backend, even after one fails, and joins the errors.
func (m *MultiWriter) WriteRows(rows []models.OutputRow) error {
	var errs []error
	for _, w := range m.writers {
		if err := w.WriteRows(rows); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every backend.
func (m *MultiWriter) Close() error {
	var errs []error
	for _, w := range m.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
