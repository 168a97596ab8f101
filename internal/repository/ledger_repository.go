package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/video-submission-checker/internal/models"
)

type LedgerRepository interface {
	Append(ctx context.Context, record *models.LedgerRecord) error
	ListByWorker(ctx context.Context, workerID string) ([]models.HistoricalRecord, error)
	Search(ctx context.Context, query string, limit int) ([]models.LedgerRecord, error)
	GetStats(ctx context.Context, date string) (*models.LedgerStats, error)
	// GetWorkerStats counts all rows of the worker and, separately, rows
	// dated strictly after afterDate.
	GetWorkerStats(ctx context.Context, workerID, afterDate string) (*models.WorkerStats, error)
	GetDailySummary(ctx context.Context, date string) (*models.DailySummary, error)
	Ping(ctx context.Context) error
}

const ledgerColumns = `
	id, worker_id, username, file_id, file_unique_id, file_size, duration,
	submitted_date, submitted_time, received_at, status, duplicate_reason,
	forwarded, anomalies, created_at`

type ledgerRepository struct {
	*SQLRepository
}

func NewLedgerRepository(db *sql.DB, dialect string, logger zerolog.Logger) LedgerRepository {
	return &ledgerRepository{
		SQLRepository: NewSQLRepository(db, dialect, logger),
	}
}

func (r *ledgerRepository) Append(ctx context.Context, record *models.LedgerRecord) error {
	query := r.rebind(`
		INSERT INTO submissions (` + ledgerColumns + `
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.WorkerID,
		record.Username,
		record.FileID,
		record.FileUniqueID,
		record.FileSize,
		record.Duration,
		record.Date,
		record.Time,
		record.ReceivedAt,
		record.Status,
		string(record.DuplicateReason),
		record.Forwarded,
		models.JoinAnomalies(record.Anomalies),
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append submission: %w", err)
	}

	return nil
}

func (r *ledgerRepository) ListByWorker(ctx context.Context, workerID string) ([]models.HistoricalRecord, error) {
	query := r.rebind(`
		SELECT id, worker_id, duration, file_size, submitted_date, submitted_time,
			received_at, status, duplicate_reason, anomalies
		FROM submissions
		WHERE worker_id = ?
		ORDER BY submitted_date, submitted_time, id
	`)

	rows, err := r.db.QueryContext(ctx, query, workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list worker submissions: %w", err)
	}
	defer rows.Close()

	var records []models.HistoricalRecord
	for rows.Next() {
		var (
			rec       models.HistoricalRecord
			reason    string
			anomalies string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.WorkerID,
			&rec.Duration,
			&rec.FileSize,
			&rec.Date,
			&rec.Time,
			&rec.ReceivedAt,
			&rec.Status,
			&reason,
			&anomalies,
		); err != nil {
			return nil, fmt.Errorf("failed to scan worker submission: %w", err)
		}
		rec.DuplicateReason = models.DuplicateReason(reason)
		rec.Anomalies = models.SplitAnomalies(anomalies)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate worker submissions: %w", err)
	}

	return records, nil
}

func (r *ledgerRepository) Search(ctx context.Context, search string, limit int) ([]models.LedgerRecord, error) {
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(search))) + "%"

	query := r.rebind(`
		SELECT ` + ledgerColumns + `
		FROM submissions
		WHERE LOWER(username) LIKE ? ESCAPE '\' OR worker_id LIKE ? ESCAPE '\'
		ORDER BY submitted_date DESC, submitted_time DESC, id DESC
		LIMIT ?
	`)

	rows, err := r.db.QueryContext(ctx, query, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search submissions: %w", err)
	}
	defer rows.Close()

	records := make([]models.LedgerRecord, 0)
	for rows.Next() {
		rec, err := scanLedgerRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate search results: %w", err)
	}

	return records, nil
}

func (r *ledgerRepository) GetStats(ctx context.Context, date string) (*models.LedgerStats, error) {
	query := r.rebind(`
		SELECT
			COUNT(*),
			COUNT(CASE WHEN submitted_date = ? THEN 1 END),
			COUNT(CASE WHEN status = ? THEN 1 END),
			COUNT(CASE WHEN anomalies <> '' THEN 1 END)
		FROM submissions
	`)

	stats := &models.LedgerStats{Date: date}
	err := r.db.QueryRowContext(ctx, query, date, models.RecordStatusDuplicate).Scan(
		&stats.Total,
		&stats.Today,
		&stats.Duplicates,
		&stats.Anomalous,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger stats: %w", err)
	}

	return stats, nil
}

func (r *ledgerRepository) GetWorkerStats(ctx context.Context, workerID, afterDate string) (*models.WorkerStats, error) {
	query := r.rebind(`
		SELECT
			COUNT(*),
			COUNT(CASE WHEN submitted_date > ? THEN 1 END),
			COALESCE(AVG(CASE WHEN submitted_date > ? THEN duration END), 0)
		FROM submissions
		WHERE worker_id = ?
	`)

	stats := &models.WorkerStats{WorkerID: workerID}
	var avg float64
	err := r.db.QueryRowContext(ctx, query, afterDate, afterDate, workerID).Scan(
		&stats.Total,
		&stats.LastWeek,
		&avg,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get worker stats: %w", err)
	}
	stats.AvgDuration = int(math.Round(avg))

	return stats, nil
}

func (r *ledgerRepository) GetDailySummary(ctx context.Context, date string) (*models.DailySummary, error) {
	query := r.rebind(`
		SELECT
			COUNT(*),
			COUNT(CASE WHEN status = ? THEN 1 END),
			COUNT(CASE WHEN anomalies <> '' THEN 1 END)
		FROM submissions
		WHERE submitted_date = ?
	`)

	summary := &models.DailySummary{Date: date}
	err := r.db.QueryRowContext(ctx, query, models.RecordStatusDuplicate, date).Scan(
		&summary.Videos,
		&summary.Duplicates,
		&summary.Anomalous,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily summary: %w", err)
	}

	return summary, nil
}

func scanLedgerRecord(rows *sql.Rows) (*models.LedgerRecord, error) {
	var (
		rec       models.LedgerRecord
		reason    string
		anomalies string
	)
	err := rows.Scan(
		&rec.ID,
		&rec.WorkerID,
		&rec.Username,
		&rec.FileID,
		&rec.FileUniqueID,
		&rec.FileSize,
		&rec.Duration,
		&rec.Date,
		&rec.Time,
		&rec.ReceivedAt,
		&rec.Status,
		&reason,
		&rec.Forwarded,
		&anomalies,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan submission: %w", err)
	}
	rec.DuplicateReason = models.DuplicateReason(reason)
	rec.Anomalies = models.SplitAnomalies(anomalies)
	return &rec, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
