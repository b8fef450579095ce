package jobs

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teemates/realtime/errors"
)

// Store handles persistence of jobs
type Store struct {
	db *sql.DB
}

// NewStore creates a new job store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const jobSelectColumns = `
	id, queue, name, payload, dedup_key, correlation_id, status,
	attempts, max_attempts, run_at, error,
	created_at, started_at, completed_at, updated_at`

// jobScanArgs holds nullable scan targets for optional columns
type jobScanArgs struct {
	payload       sql.NullString
	key           sql.NullString
	correlationID sql.NullString
	errMsg        sql.NullString
	startedAt     sql.NullTime
	completedAt   sql.NullTime
}

func scanJob(row interface{ Scan(...interface{}) error }, job *Job) error {
	var args jobScanArgs
	if err := row.Scan(
		&job.ID,
		&job.Queue,
		&job.Name,
		&args.payload,
		&args.key,
		&args.correlationID,
		&job.Status,
		&job.Attempts,
		&job.MaxAttempts,
		&job.RunAt,
		&args.errMsg,
		&job.CreatedAt,
		&args.startedAt,
		&args.completedAt,
		&job.UpdatedAt,
	); err != nil {
		return err
	}

	if args.payload.Valid {
		job.Payload = json.RawMessage(args.payload.String)
	}
	job.Key = args.key.String
	job.CorrelationID = args.correlationID.String
	job.Error = args.errMsg.String
	if args.startedAt.Valid {
		t := args.startedAt.Time
		job.StartedAt = &t
	}
	if args.completedAt.Valid {
		t := args.completedAt.Time
		job.CompletedAt = &t
	}
	return nil
}

// CreateJob inserts a new job into the database
func (s *Store) CreateJob(job *Job) error {
	query := `
		INSERT INTO jobs (
			id, queue, name, payload, dedup_key, correlation_id, status,
			attempts, max_attempts, run_at, error,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	payload := sql.NullString{String: string(job.Payload), Valid: len(job.Payload) > 0}
	key := sql.NullString{String: job.Key, Valid: job.Key != ""}
	correlationID := sql.NullString{String: job.CorrelationID, Valid: job.CorrelationID != ""}

	_, err := s.db.Exec(query,
		job.ID,
		job.Queue,
		job.Name,
		payload,
		key,
		correlationID,
		job.Status,
		job.Attempts,
		job.MaxAttempts,
		job.RunAt,
		job.Error,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create job")
	}
	return nil
}

// GetJob retrieves a job by ID
func (s *Store) GetJob(id string) (*Job, error) {
	query := `SELECT ` + jobSelectColumns + ` FROM jobs WHERE id = ?`

	var job Job
	err := scanJob(s.db.QueryRow(query, id), &job)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("job %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job")
	}
	return &job, nil
}

// UpdateJob updates an existing job in the database
func (s *Store) UpdateJob(job *Job) error {
	query := `
		UPDATE jobs
		SET status = ?,
		    attempts = ?,
		    run_at = ?,
		    error = ?,
		    started_at = ?,
		    completed_at = ?,
		    updated_at = ?
		WHERE id = ?
	`

	_, err := s.db.Exec(query,
		job.Status,
		job.Attempts,
		job.RunAt,
		job.Error,
		job.StartedAt,
		job.CompletedAt,
		job.UpdatedAt,
		job.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update job")
	}
	return nil
}

// DueJobs returns queued jobs in a queue whose run time has arrived,
// oldest scheduled first.
func (s *Store) DueJobs(queue string, now time.Time, limit int) ([]*Job, error) {
	query := `SELECT ` + jobSelectColumns + `
		FROM jobs
		WHERE queue = ? AND status = ? AND run_at <= ?
		ORDER BY run_at ASC, created_at ASC
		LIMIT ?`

	rows, err := s.db.Query(query, queue, StatusQueued, now, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list due jobs")
	}
	defer rows.Close()

	return collectJobs(rows, "due jobs")
}

// ListJobs returns jobs, optionally filtered by status
func (s *Store) ListJobs(status *Status, limit int) ([]*Job, error) {
	var query string
	var args []interface{}

	baseQuery := `SELECT ` + jobSelectColumns + ` FROM jobs`
	if status != nil {
		query = baseQuery + ` WHERE status = ? ORDER BY created_at DESC LIMIT ?`
		args = []interface{}{*status, limit}
	} else {
		query = baseQuery + ` ORDER BY created_at DESC LIMIT ?`
		args = []interface{}{limit}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	return collectJobs(rows, "jobs")
}

// FindActiveJobByKey finds a queued or running job holding the identity
// key in the given queue. Returns nil when no active job holds the key.
func (s *Store) FindActiveJobByKey(queue, key string) (*Job, error) {
	query := `SELECT ` + jobSelectColumns + `
		FROM jobs
		WHERE queue = ? AND dedup_key = ? AND status IN (?, ?)
		LIMIT 1`

	var job Job
	err := scanJob(s.db.QueryRow(query, queue, key, StatusQueued, StatusRunning), &job)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find active job by key")
	}
	return &job, nil
}

// RequeueOrphans re-queues jobs stuck in running state. This handles
// ungraceful shutdowns (crash, kill -9, power loss); attempts already
// counted stay counted so a crash-looping job still exhausts.
func (s *Store) RequeueOrphans() (int, error) {
	result, err := s.db.Exec(
		`UPDATE jobs SET status = ?, updated_at = ? WHERE status = ?`,
		StatusQueued, time.Now(), StatusRunning,
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to requeue orphaned jobs")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count requeued jobs")
	}
	return int(n), nil
}

// CleanupOldJobs removes terminal jobs older than the retention window.
// Returns the number of jobs deleted.
func (s *Store) CleanupOldJobs(olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	result, err := s.db.Exec(
		`DELETE FROM jobs WHERE status IN (?, ?) AND completed_at < ?`,
		StatusCompleted, StatusFailed, cutoff,
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to cleanup old jobs")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count cleaned jobs")
	}
	return int(n), nil
}

// collectJobs scans multiple jobs from query rows
func collectJobs(rows *sql.Rows, context string) ([]*Job, error) {
	var out []*Job
	for rows.Next() {
		var job Job
		if err := scanJob(rows, &job); err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		out = append(out, &job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "error iterating %s", context)
	}
	return out, nil
}
