package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/danavision/discovery-go/internal/core"
	"github.com/danavision/discovery-go/internal/data/pgxutil"
	"github.com/danavision/discovery-go/internal/domain/model"
)

// insertJobParams groups parameters for inserting a job within a transaction.
type insertJobParams struct {
	OwnerID string
	Req     *model.CreateJobRequest
	Input   []byte
}

// SQL used by ReserveNext to atomically claim the next job across a set of
// types. Priority wins first, then queue age.
const reserveNextUpdateSQL = `
  WITH cte AS (
    SELECT id FROM jobs
    WHERE type = ANY($1) AND status = 'pending'
    ORDER BY priority DESC, created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE jobs j
  SET
    status = 'processing',
    started_at = COALESCE(j.started_at, $2),
    lease_expires_at = $3,
    updated_at = $4
  FROM cte
  WHERE j.id = cte.id
  RETURNING j.id, j.owner_id, j.type, j.status, j.priority, j.input, j.output, j.error_message, j.progress, j.cancel_requested, j.list_id, j.item_id, j.lease_expires_at, j.started_at, j.completed_at, j.created_at, j.updated_at`

// Create creates a new job in the database with the given parameters.
func (r *JobRepo) Create(
	ctx context.Context,
	ownerID string,
	req *model.CreateJobRequest,
) (*model.Job, error) {
	p, err := prepareInsertJobParams(ownerID, req)
	if err != nil {
		return nil, err
	}

	var job *model.Job
	if txErr := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			var insertErr error
			job, insertErr = r.insertJobInTx(ctx, tx, p)
			return insertErr
		},
	}); txErr != nil {
		return nil, txErr
	}

	return job, nil
}

// CreateInTx inserts a job within an existing SQL transaction.
func (r *JobRepo) CreateInTx(
	ctx context.Context,
	sqlTx *sql.Tx,
	ownerID string,
	req *model.CreateJobRequest,
) (*model.Job, error) {
	if sqlTx == nil {
		return nil, errors.New("transaction is required")
	}
	p, err := prepareInsertJobParams(ownerID, req)
	if err != nil {
		return nil, err
	}

	query, args := buildInsertJobQuery(p)
	row := sqlTx.QueryRowContext(ctx, query, args...)

	job, scanErr := scanJobFromRow(row)
	if scanErr != nil {
		return nil, fmt.Errorf("collect job: %w", scanErr)
	}

	channel := "job_added_" + string(req.Type)
	if _, notifyErr := sqlTx.ExecContext(ctx, `SELECT pg_notify($1::text, $2::text)`, channel, job.ID); notifyErr != nil {
		return nil, fmt.Errorf("send job notification: %w", notifyErr)
	}

	return job, nil
}

// prepareInsertJobParams validates the request and normalizes the input JSON.
func prepareInsertJobParams(ownerID string, req *model.CreateJobRequest) (*insertJobParams, error) {
	if ownerID == "" {
		return nil, errors.New("owner id is required")
	}
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	input := []byte(req.Input)
	if len(input) == 0 {
		input = []byte(`{}`)
	}

	return &insertJobParams{
		OwnerID: ownerID,
		Req:     req,
		Input:   input,
	}, nil
}

// insertJobInTx inserts a job within a pgx.Tx and returns the created job.
func (r *JobRepo) insertJobInTx(ctx context.Context, tx pgx.Tx, p *insertJobParams) (*model.Job, error) {
	if p == nil || p.Req == nil {
		return nil, errors.New("insert job params are required")
	}

	query, args := buildInsertJobQuery(p)

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	job, collectErr := collectJobFromRows(rows)
	rows.Close()
	if collectErr != nil {
		return nil, fmt.Errorf("collect job: %w", collectErr)
	}

	channel := "job_added_" + string(p.Req.Type)
	if _, execErr := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, channel, job.ID); execErr != nil {
		return nil, fmt.Errorf("send job notification: %w", execErr)
	}

	return job, nil
}

// buildInsertJobQuery builds an INSERT statement for a job based on the provided parameters.
func buildInsertJobQuery(p *insertJobParams) (string, []any) {
	if p == nil || p.Req == nil {
		return "", nil
	}

	query := `
      INSERT INTO jobs(owner_id, type, status, priority, input, list_id, item_id)
      VALUES ($1,$2,'pending',$3,$4,$5,$6)
      RETURNING ` + jobColumns

	args := []any{
		p.OwnerID,
		p.Req.Type,
		p.Req.Priority,
		p.Input,
		p.Req.ListID,
		p.Req.ItemID,
	}
	return query, args
}

// collectJobFromRows collects a single job from pgx rows using pgx v5 helpers.
func collectJobFromRows(rows pgx.Rows) (*model.Job, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	job, err := scanJobFromRow(rows)
	if err != nil {
		return nil, err
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}

	return job, nil
}

type jobRowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	input, output                          []byte
	errorMessage, listID, itemID           sql.NullString
	leaseExpiresAt, startedAt, completedAt sql.NullTime
}

func (d *jobRowData) scanInto(scanner jobRowScanner, job *model.Job) error {
	return scanner.Scan(
		&job.ID,
		&job.OwnerID,
		&job.Type,
		&job.Status,
		&job.Priority,
		&d.input,
		&d.output,
		&d.errorMessage,
		&job.Progress,
		&job.CancelRequested,
		&d.listID,
		&d.itemID,
		&d.leaseExpiresAt,
		&d.startedAt,
		&d.completedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
}

func (d *jobRowData) apply(job *model.Job) {
	job.Input = cloneJSON(d.input)
	job.Output = cloneNullableJSON(d.output)
	job.ErrorMessage = cloneNullableString(d.errorMessage)
	job.ListID = cloneNullableString(d.listID)
	job.ItemID = cloneNullableString(d.itemID)
	job.LeaseExpiresAt = cloneNullableTime(d.leaseExpiresAt)
	job.StartedAt = cloneNullableTime(d.startedAt)
	job.CompletedAt = cloneNullableTime(d.completedAt)
}

func scanJobFromRow(scanner jobRowScanner) (*model.Job, error) {
	job := &model.Job{}
	var data jobRowData
	if err := data.scanInto(scanner, job); err != nil {
		return nil, err
	}

	data.apply(job)
	return job, nil
}

func cloneJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneNullableJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// ReserveNext reserves the next available job across the given types for
// processing. Expired leases are not requeued here; the reaper fails them.
func (r *JobRepo) ReserveNext(
	ctx context.Context,
	jobTypes []model.JobType,
	leaseSeconds int,
) (*model.Job, error) {
	if len(jobTypes) == 0 {
		return nil, errors.New("at least one job type is required")
	}
	types := make([]string, 0, len(jobTypes))
	for _, jt := range jobTypes {
		if !jt.Valid() {
			return nil, fmt.Errorf("invalid job type: %s", jt)
		}
		types = append(types, string(jt))
	}

	var job *model.Job
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{
			Isolation: sql.LevelReadCommitted,
			ReadOnly:  false,
		},
		Fn: func(tx pgx.Tx) error {
			currentTime := r.timeProvider.Now()
			leaseExpiresAt := currentTime.Add(time.Duration(leaseSeconds) * time.Second)

			rows, qerr := tx.Query(
				ctx,
				reserveNextUpdateSQL,
				types,
				currentTime.UTC(),
				leaseExpiresAt.UTC(),
				currentTime.UTC(),
			)
			if qerr != nil {
				return fmt.Errorf("reserve job: %w", qerr)
			}
			defer rows.Close()

			j, cerr := collectJobFromRows(rows)
			if errors.Is(cerr, pgx.ErrNoRows) {
				return model.ErrNoJobsAvailable
			}
			if cerr != nil {
				return fmt.Errorf("reserve job: %w", cerr)
			}
			job = j
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, model.ErrNoJobsAvailable
		}
		return nil, err
	}
	return job, nil
}

// Heartbeat refreshes the lease on a processing job.
func (r *JobRepo) Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error) {
	if leaseSeconds <= 0 {
		return false, errors.New("leaseSeconds must be positive")
	}

	currentTime := r.timeProvider.Now().UTC()
	leaseExpiration := currentTime.Add(time.Duration(leaseSeconds) * time.Second)

	query := `
		UPDATE jobs
		SET lease_expires_at = $2,
		    updated_at = $3
		WHERE id = $1 AND status = 'processing'
	`

	res, err := r.DB.ExecContext(ctx, query, jobID, leaseExpiration, currentTime)
	if err != nil {
		return false, fmt.Errorf("heartbeat job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("heartbeat rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return false, nil
	}

	return true, nil
}

// UpdateProgress records forward progress on a processing job. The progress
// value is clamped to [0, 100]; when an output patch is present it is merged
// key-by-key over the stored output. Terminal jobs are left untouched and
// reported as false.
func (r *JobRepo) UpdateProgress(ctx context.Context, params core.UpdateJobProgressParams) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()
	progress := model.ClampProgress(params.Progress)

	query := `
		UPDATE jobs
		SET progress = $2,
		    output = CASE WHEN $3::jsonb IS NULL THEN output
		                  ELSE COALESCE(output, '{}'::jsonb) || $3::jsonb END,
		    updated_at = $4
		WHERE id = $1 AND status = 'processing'
	`

	res, err := r.DB.ExecContext(ctx, query, params.ID, progress, nullableJSONArg(params.Output), currentTime)
	if err != nil {
		return false, fmt.Errorf("update job progress: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update progress rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Complete marks a processing job as completed. Progress jumps to 100 and
// completed_at is set once; completing an already-terminal job is a no-op.
func (r *JobRepo) Complete(ctx context.Context, params core.CompleteJobParams) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()

	query := `
		UPDATE jobs
		SET status = 'completed',
		    progress = 100,
		    output = CASE WHEN $2::jsonb IS NULL THEN output
		                  ELSE COALESCE(output, '{}'::jsonb) || $2::jsonb END,
		    completed_at = COALESCE(completed_at, $3),
		    updated_at = $3,
		    lease_expires_at = NULL,
		    error_message = NULL
		WHERE id = $1 AND status = 'processing'
	`

	res, err := r.DB.ExecContext(ctx, query, params.ID, nullableJSONArg(params.Output), currentTime)
	if err != nil {
		return false, fmt.Errorf("complete job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Fail marks a processing job as failed, keeping whatever partial output the
// handler produced. Failed is terminal; there are no retries.
func (r *JobRepo) Fail(ctx context.Context, params core.FailJobParams) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()

	query := `
		UPDATE jobs
		SET status = 'failed',
		    error_message = $2,
		    output = CASE WHEN $3::jsonb IS NULL THEN output
		                  ELSE COALESCE(output, '{}'::jsonb) || $3::jsonb END,
		    completed_at = COALESCE(completed_at, $4),
		    updated_at = $4,
		    lease_expires_at = NULL
		WHERE id = $1 AND status = 'processing'
	`

	res, err := r.DB.ExecContext(ctx, query, params.ID, params.ErrorMsg, nullableJSONArg(params.Output), currentTime)
	if err != nil {
		return false, fmt.Errorf("fail job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("fail rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Cancel applies the two-phase cancel in one statement: pending jobs flip to
// cancelled, processing jobs get cancel_requested set for the worker to
// observe at its next checkpoint. The SET expressions all see the pre-update
// row, so the CASE arms are consistent. Terminal jobs are not touched; they
// come back with ErrJobNotCancellable so callers can surface the conflict.
func (r *JobRepo) Cancel(ctx context.Context, id string) (*model.Job, error) {
	currentTime := r.timeProvider.Now().UTC()

	query := `
		UPDATE jobs
		SET status = CASE WHEN status = 'pending' THEN 'cancelled' ELSE status END,
		    cancel_requested = true,
		    completed_at = CASE WHEN status = 'pending' THEN $2 ELSE completed_at END,
		    lease_expires_at = CASE WHEN status = 'pending' THEN NULL ELSE lease_expires_at END,
		    updated_at = $2
		WHERE id = $1 AND status IN ('pending', 'processing')
		RETURNING ` + jobColumns

	row := r.DB.QueryRowContext(ctx, query, id, currentTime)
	job, err := scanJobFromRow(row)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cancel job: %w", err)
	}

	// Nothing active to cancel: the job is either missing or terminal.
	job, err = r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return job, ErrJobNotCancellable
}

// MarkCancelled finalizes a cooperative cancel. The worker calls it after
// observing cancel_requested at a checkpoint; only a processing job with the
// flag set transitions to cancelled. Partial output is kept as-is.
func (r *JobRepo) MarkCancelled(ctx context.Context, id string) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()

	query := `
		UPDATE jobs
		SET status = 'cancelled',
		    completed_at = COALESCE(completed_at, $2),
		    updated_at = $2,
		    lease_expires_at = NULL
		WHERE id = $1 AND status = 'processing' AND cancel_requested
	`

	res, err := r.DB.ExecContext(ctx, query, id, currentTime)
	if err != nil {
		return false, fmt.Errorf("mark job cancelled: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark cancelled rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// CancelRequested reports whether cancellation has been requested for a job.
// Handlers poll this at stage boundaries.
func (r *JobRepo) CancelRequested(ctx context.Context, id string) (bool, error) {
	var requested bool
	err := r.DB.QueryRowContext(ctx, `
		SELECT cancel_requested OR status = 'cancelled'
		FROM jobs
		WHERE id = $1
	`, id).Scan(&requested)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrJobNotFound
	}
	if err != nil {
		return false, fmt.Errorf("check cancel requested: %w", err)
	}
	return requested, nil
}

// WaitForNotification waits for a PostgreSQL notification indicating new jobs are available.
func (r *JobRepo) WaitForNotification(ctx context.Context, jobType model.JobType) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			_ = cerr
		}
	}()

	channel := "job_added_" + string(jobType)
	quoted := pgx.Identifier{channel}.Sanitize()

	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", channel, execErr)
	}
	defer func() {
		if _, execErr := conn.ExecContext(context.Background(), "UNLISTEN "+quoted); execErr != nil {
			_ = execErr
		}
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	var job *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, `
			SELECT `+jobColumns+`
			FROM jobs
			WHERE id = $1
		`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		job, err = collectJobFromRows(rows)
		return err
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// nullableJSONArg passes raw JSON through as a query argument, mapping empty
// payloads to SQL NULL so the merge CASE can distinguish "no patch".
func nullableJSONArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
