package storage

import "pricing-history/models"

// RowWriter is the interface any output backend must satisfy. WriteRows is
// called concurrently by pipeline workers; implementations serialize writes.
type RowWriter interface {
	WriteRows(rows []models.OutputRow) error
	Close() error
}
