package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/target/mmk-jobqueue/internal/core"
	"github.com/target/mmk-jobqueue/internal/data/pgxutil"
	"github.com/target/mmk-jobqueue/internal/domain/model"
	apperrors "github.com/target/mmk-jobqueue/internal/errors"
)

// PostgresStore implements core.JobStore on PostgreSQL.
//
// Each job is one row in queue_jobs. The location column names the structure the job
// belongs to (ready, delayed, processing or NULL); ready order is (priority DESC, ready_seq).
// ClaimNext uses FOR UPDATE SKIP LOCKED so concurrent workers never claim the same row.
type PostgresStore struct {
	db    *sql.DB
	clock core.Clock
}

var _ core.JobStore = (*PostgresStore)(nil)

// PostgresStoreOptions groups dependencies for NewPostgresStore.
type PostgresStoreOptions struct {
	DB    *sql.DB
	Clock core.Clock
}

// NewPostgresStore creates a store on an open pgx-backed *sql.DB. The schema comes from internal/migrate.
func NewPostgresStore(opts PostgresStoreOptions) *PostgresStore {
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	return &PostgresStore{db: opts.DB, clock: opts.Clock}
}

// SaveJob upserts the job row. A positive ttl sets expires_at.
func (s *PostgresStore) SaveJob(ctx context.Context, job *model.QueuedJob, ttl time.Duration) error {
	if job == nil {
		return ErrNilJob
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}

	var finishedAt, expiresAt *time.Time
	var finishedState *string
	if job.Status.State.Terminal() && job.Status.CompletedAt != nil {
		finishedAt = job.Status.CompletedAt
		st := string(job.Status.State)
		finishedState = &st
	}
	if ttl > 0 {
		exp := s.clock.Now().Add(ttl)
		expiresAt = &exp
	}

	const q = `
		INSERT INTO queue_jobs (id, job_type, priority, record, finished_at, finished_state, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			record = EXCLUDED.record,
			finished_at = EXCLUDED.finished_at,
			finished_state = EXCLUDED.finished_state,
			expires_at = EXCLUDED.expires_at,
			updated_at = now()`
	_, err = s.db.ExecContext(ctx, q,
		job.ID, string(job.Type), job.Priority.Rank(), raw, finishedAt, finishedState, expiresAt)
	return apperrors.MapDBError("postgres save job", err)
}

// GetJob loads the job row, or returns model.ErrJobNotFound when it is missing or expired.
func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.QueuedJob, error) {
	const q = `
		SELECT record FROM queue_jobs
		WHERE id = $1 AND (expires_at IS NULL OR expires_at > $2)`
	var raw []byte
	if err := s.db.QueryRowContext(ctx, q, id, s.clock.Now()).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrJobNotFound
		}
		return nil, apperrors.MapDBError("postgres get job", err)
	}
	var job model.QueuedJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, apperrors.Storage("decode job "+id, err)
	}
	return &job, nil
}

// PushReady moves the job to the ready location behind every job already there.
func (s *PostgresStore) PushReady(ctx context.Context, ref model.JobRef) error {
	if !ref.Priority.Valid() {
		return ErrUnknownPriority
	}
	const q = `
		UPDATE queue_jobs
		SET location = 'ready', ready_seq = nextval('queue_ready_seq'), due_at = NULL, updated_at = now()
		WHERE id = $1`
	return s.execOne(ctx, "postgres push ready", q, ref.ID)
}

// ScheduleDelayed moves the job to the delayed location, due at dueAt.
func (s *PostgresStore) ScheduleDelayed(ctx context.Context, ref model.JobRef, dueAt time.Time) error {
	if !ref.Priority.Valid() {
		return ErrUnknownPriority
	}
	const q = `
		UPDATE queue_jobs
		SET location = 'delayed', due_at = $2, ready_seq = NULL, updated_at = now()
		WHERE id = $1`
	return s.execOne(ctx, "postgres schedule delayed", q, ref.ID, dueAt)
}

func (s *PostgresStore) execOne(ctx context.Context, op, q string, args ...any) error {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return apperrors.MapDBError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.MapDBError(op, err)
	}
	if n == 0 {
		return model.ErrJobNotFound
	}
	return nil
}

// PromoteDue moves up to limit due delayed jobs to the ready location.
func (s *PostgresStore) PromoteDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 1000
	}
	const q = `
		WITH due AS (
			SELECT id FROM queue_jobs
			WHERE location = 'delayed' AND due_at <= $1
			ORDER BY due_at ASC, id ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE queue_jobs q
		SET location = 'ready', ready_seq = nextval('queue_ready_seq'), due_at = NULL, updated_at = now()
		FROM due
		WHERE q.id = due.id
		RETURNING q.id`
	return s.queryIDs(ctx, "postgres promote delayed", q, now, limit)
}

// ClaimNext moves the next ready job to the processing location.
func (s *PostgresStore) ClaimNext(ctx context.Context) (string, error) {
	const q = `
		WITH next AS (
			SELECT id FROM queue_jobs
			WHERE location = 'ready'
			ORDER BY priority DESC, ready_seq ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE queue_jobs q
		SET location = 'processing', ready_seq = NULL, updated_at = now()
		FROM next
		WHERE q.id = next.id
		RETURNING q.id`
	var id string
	if err := s.db.QueryRowContext(ctx, q).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", model.ErrNoJobsAvailable
		}
		return "", apperrors.MapDBError("postgres claim", err)
	}
	return id, nil
}

// ReleaseClaim clears the processing location and reports whether the job held it.
func (s *PostgresStore) ReleaseClaim(ctx context.Context, id string) (bool, error) {
	const q = `
		UPDATE queue_jobs SET location = NULL, updated_at = now()
		WHERE id = $1 AND location = 'processing'`
	return s.execAffected(ctx, "postgres release claim", q, id)
}

// ListProcessing returns the IDs of jobs in the processing location.
func (s *PostgresStore) ListProcessing(ctx context.Context) ([]string, error) {
	const q = `SELECT id FROM queue_jobs WHERE location = 'processing' ORDER BY id`
	return s.queryIDs(ctx, "postgres list processing", q)
}

// RemoveJob clears the job's location and reports whether it had one.
func (s *PostgresStore) RemoveJob(ctx context.Context, ref model.JobRef) (bool, error) {
	const q = `
		UPDATE queue_jobs SET location = NULL, due_at = NULL, ready_seq = NULL, updated_at = now()
		WHERE id = $1 AND location IS NOT NULL`
	return s.execAffected(ctx, "postgres remove job", q, ref.ID)
}

func (s *PostgresStore) execAffected(ctx context.Context, op, q string, args ...any) (bool, error) {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, apperrors.MapDBError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.MapDBError(op, err)
	}
	return n > 0, nil
}

func (s *PostgresStore) queryIDs(ctx context.Context, op, q string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperrors.MapDBError(op, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.MapDBError(op, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.MapDBError(op, err)
	}
	return ids, nil
}

// IncrementCounters upserts every delta in one transaction using a pgx batch.
func (s *PostgresStore) IncrementCounters(ctx context.Context, deltas map[model.Counter]int64) error {
	if len(deltas) == 0 {
		return nil
	}
	const q = `
		INSERT INTO queue_counters (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = queue_counters.value + EXCLUDED.value`

	batch := &pgx.Batch{}
	for k, v := range deltas {
		if v != 0 {
			batch.Queue(q, string(k), v)
		}
	}
	return apperrors.MapDBError("postgres increment counters", pgxutil.SendBatch(ctx, s.db, batch))
}

// Counters reads every queue counter.
func (s *PostgresStore) Counters(ctx context.Context) (map[model.Counter]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM queue_counters`)
	if err != nil {
		return nil, apperrors.MapDBError("postgres read counters", err)
	}
	defer rows.Close()

	out := make(map[model.Counter]int64)
	for rows.Next() {
		var name string
		var value int64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, apperrors.MapDBError("postgres read counters", err)
		}
		out[model.Counter(name)] = value
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.MapDBError("postgres read counters", err)
	}
	return out, nil
}

// PurgeFinished deletes up to limit unlocated jobs that finished in state before cutoff.
func (s *PostgresStore) PurgeFinished(
	ctx context.Context,
	state model.JobState,
	cutoff time.Time,
	limit int,
) (int64, error) {
	if limit <= 0 {
		limit = 1000
	}
	const q = `
		DELETE FROM queue_jobs
		WHERE id IN (
			SELECT id FROM queue_jobs
			WHERE finished_state = $1 AND finished_at < $2 AND location IS NULL
			ORDER BY finished_at ASC
			LIMIT $3
		)`
	res, err := s.db.ExecContext(ctx, q, string(state), cutoff, limit)
	if err != nil {
		return 0, apperrors.MapDBError("postgres purge finished", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.MapDBError("postgres purge finished", err)
	}
	return n, nil
}

// AcquireFireKey inserts key, or takes it over once expired, and reports whether this caller won it.
func (s *PostgresStore) AcquireFireKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Second
	}
	now := s.clock.Now()
	const q = `
		INSERT INTO queue_fire_keys (key, expires_at) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET expires_at = EXCLUDED.expires_at
		WHERE queue_fire_keys.expires_at <= $3
		RETURNING key`
	var got string
	err := s.db.QueryRowContext(ctx, q, key, now.Add(ttl), now).Scan(&got)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, apperrors.MapDBError("postgres acquire fire key", err)
	}
	return true, nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return apperrors.MapDBError("postgres ping", s.db.PingContext(ctx))
}
