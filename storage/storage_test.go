package storage

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricing-history/models"
)

func sampleRows() []models.OutputRow {
	return []models.OutputRow{
		{
			Domain: "example.com", PricingURL: "https://example.com/pricing",
			WeekStart: "2024-03-03", SnapshotDate: "2024-03-05", SnapshotTimestamp: "20240305101500",
			Period: "monthly", PriceShown: "$9/month",
			ArchiveURL: "https://web.archive.org/web/20240305101500/https://example.com/pricing",
		},
		{
			Domain: "example.com", PricingURL: "https://example.com/pricing",
			WeekStart: "2024-03-10", ReasonCode: "week_all_failed:timeout",
		},
	}
}

func TestCSVWriterWritesHeaderAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "rows.csv")
	w, err := NewCSVWriter(path)
	require.NoError(t, err)

	require.NoError(t, w.WriteRows(sampleRows()))
	require.NoError(t, w.WriteRows(nil))
	assert.Equal(t, 2, w.Rows())
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, models.OutputHeader, records[0])
	assert.Equal(t, "$9/month", records[1][6])
	assert.Equal(t, "", records[2][5], "reason rows leave pricing_type empty")
	assert.Equal(t, "week_all_failed:timeout", records[2][7])
}

func TestCSVWriterConcurrentBatchesStayWhole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.csv")
	w, err := NewCSVWriter(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, w.WriteRows(sampleRows()))
		}()
	}
	wg.Wait()
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 41)

	for i := 1; i < len(records); i += 2 {
		assert.Equal(t, "2024-03-03", records[i][2], "batch split at record %d", i)
		assert.Equal(t, "2024-03-10", records[i+1][2], "batch split at record %d", i+1)
	}
}

func TestReadPricingPages(t *testing.T) {
	input := "\ufeffDomain,notes,pricing_url\n" +
		"https://example.com/about,x,https://example.com/pricing\n" +
		"news.example.org,,https://news.example.org/subscribe\n" +
		"empty.example,,\n" +
		"short.example\n"

	pages, err := ReadPricingPages(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []models.PricingPage{
		{Domain: "example.com", URL: "https://example.com/pricing"},
		{Domain: "news.example.org", URL: "https://news.example.org/subscribe"},
	}, pages)
}

func TestReadPricingPagesMissingColumn(t *testing.T) {
	_, err := ReadPricingPages(strings.NewReader("domain,url\na.com,https://a.com\n"))
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestLoadPricingPagesUnreadable(t *testing.T) {
	_, err := LoadPricingPages(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestNormalizeDomain(t *testing.T) {
	assert.Equal(t, "example.com", NormalizeDomain(" https://example.com/pricing "))
	assert.Equal(t, "example.com", NormalizeDomain("http://example.com"))
	assert.Equal(t, "example.com", NormalizeDomain("example.com"))
}

type failingWriter struct {
	err    error
	writes int
}

func (f *failingWriter) WriteRows([]models.OutputRow) error { f.writes++; return f.err }
func (f *failingWriter) Close() error                       { return f.err }

func TestMultiWriterWritesEverywhere(t *testing.T) {
	boom := errors.New("boom")
	bad := &failingWriter{err: boom}
	good := &failingWriter{}

	err := NewMultiWriter(bad, good).WriteRows(sampleRows())

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, bad.writes)
	assert.Equal(t, 1, good.writes, "a failing backend must not starve the others")
}

func TestPostgresWriterInsertsInTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS pricing_snapshots").WillReturnResult(sqlmock.NewResult(0, 0))
	pw, err := newPostgresWriterWithDB(db, "4b0d3c1e-8d7f-4f57-9a53-1c5c3a0d2e11")
	require.NoError(t, err)

	rows := sampleRows()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO pricing_snapshots").
		WithArgs(
			"4b0d3c1e-8d7f-4f57-9a53-1c5c3a0d2e11", "example.com", "https://example.com/pricing",
			"2024-03-03", "2024-03-05", "20240305101500", "monthly", "$9/month", "", rows[0].ArchiveURL,
			"4b0d3c1e-8d7f-4f57-9a53-1c5c3a0d2e11", "example.com", "https://example.com/pricing",
			"2024-03-10", "", "", "", "", "week_all_failed:timeout", "",
		).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, pw.WriteRows(rows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWriterRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	pw, err := newPostgresWriterWithDB(db, "run")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO pricing_snapshots").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = pw.WriteRows(sampleRows())
	assert.ErrorContains(t, err, "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWriterCountRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	pw, err := newPostgresWriterWithDB(db, "run-1")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT COUNT").WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := pw.CountRun()
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}
