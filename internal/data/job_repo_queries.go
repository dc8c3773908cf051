package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/danavision/discovery-go/internal/data/pgxutil"
	"github.com/danavision/discovery-go/internal/domain/model"
)

// jobFilterQueryBuilder accumulates WHERE clauses with positional args.
type jobFilterQueryBuilder struct {
	query  string
	args   []any
	argIdx int
}

func (b *jobFilterQueryBuilder) addFilter(condition string, value any) {
	b.query += fmt.Sprintf(" AND %s = $%d", condition, b.argIdx)
	b.args = append(b.args, value)
	b.argIdx++
}

// buildJobListFilters returns the WHERE tail (starting after "WHERE
// owner_id = $1") and args shared by the list and count queries.
func buildJobListFilters(ownerID string, opts *model.JobListOptions) (string, []any) {
	builder := &jobFilterQueryBuilder{
		args:   []any{ownerID},
		argIdx: 2,
	}

	if opts.Status != nil {
		builder.addFilter("status", string(*opts.Status))
	}
	if opts.Type != nil {
		builder.addFilter("type", string(*opts.Type))
	}
	if opts.ListID != nil && *opts.ListID != "" {
		builder.addFilter("list_id", *opts.ListID)
	}

	return builder.query, builder.args
}

// jobListSortClause maps the requested sort to a safe ORDER BY clause.
// Unknown fields fall back to newest-first.
func jobListSortClause(opts *model.JobListOptions) string {
	sortBy := opts.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	sortOrder := opts.SortOrder
	if sortOrder == "" {
		sortOrder = "desc"
	}

	validSortFields := map[string]string{
		"created_at": "created_at",
		"status":     "status",
		"type":       "type",
	}

	dbField, ok := validSortFields[sortBy]
	if !ok {
		return " ORDER BY created_at DESC, id DESC"
	}

	if sortOrder == "asc" {
		return fmt.Sprintf(" ORDER BY %s ASC, id ASC", dbField)
	}
	return fmt.Sprintf(" ORDER BY %s DESC, id DESC", dbField)
}

// List returns one page of an owner's jobs with optional filters, plus the
// unpaginated total for the same filters.
func (r *JobRepo) List(
	ctx context.Context,
	ownerID string,
	opts *model.JobListOptions,
) (*model.JobListPage, error) {
	if ownerID == "" {
		return nil, errors.New("owner id is required")
	}
	if opts == nil {
		opts = &model.JobListOptions{}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50 // Default limit
	}
	if limit > 1000 {
		limit = 1000 // Max limit
	}
	offset := max(opts.Offset, 0)

	filters, args := buildJobListFilters(ownerID, opts)

	countQuery := `SELECT COUNT(*) FROM jobs WHERE owner_id = $1` + filters

	listQuery := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE owner_id = $1` + filters + jobListSortClause(opts)
	listQuery += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	listArgs := make([]any, len(args), len(args)+2)
	copy(listArgs, args)
	listArgs = append(listArgs, limit, offset)

	page := &model.JobListPage{Jobs: []*model.Job{}}
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		if err := conn.QueryRow(ctx, countQuery, args...).Scan(&page.Total); err != nil {
			return fmt.Errorf("count jobs: %w", err)
		}

		rows, err := conn.Query(ctx, listQuery, listArgs...)
		if err != nil {
			return fmt.Errorf("query jobs: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			job, scanErr := scanJobFromRow(rows)
			if scanErr != nil {
				return fmt.Errorf("collect jobs: %w", scanErr)
			}
			page.Jobs = append(page.Jobs, job)
		}
		return rows.Err()
	}); err != nil {
		return nil, err
	}

	return page, nil
}

// ListActive returns an owner's pending and processing jobs, newest first.
func (r *JobRepo) ListActive(ctx context.Context, ownerID string) ([]*model.Job, error) {
	if ownerID == "" {
		return nil, errors.New("owner id is required")
	}

	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE owner_id = $1 AND status IN ('pending', 'processing')
		ORDER BY created_at DESC, id DESC
	`

	result := []*model.Job{}
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, ownerID)
		if err != nil {
			return fmt.Errorf("query active jobs: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			job, scanErr := scanJobFromRow(rows)
			if scanErr != nil {
				return fmt.Errorf("collect active jobs: %w", scanErr)
			}
			result = append(result, job)
		}
		return rows.Err()
	}); err != nil {
		return nil, err
	}
	return result, nil
}

// Stats returns per-status counts for one owner's jobs. Active is derived
// as pending + processing so the identity holds by construction.
func (r *JobRepo) Stats(ctx context.Context, ownerID string) (*model.JobStats, error) {
	if ownerID == "" {
		return nil, errors.New("owner id is required")
	}

	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*)                                      AS total,
    count(*) FILTER (WHERE status = 'pending')    AS pending,
    count(*) FILTER (WHERE status = 'processing') AS processing,
    count(*) FILTER (WHERE status = 'completed')  AS completed,
    count(*) FILTER (WHERE status = 'failed')     AS failed,
    count(*) FILTER (WHERE status = 'cancelled')  AS cancelled
  FROM jobs
  WHERE owner_id = $1
  `, ownerID).Scan(
		&s.Total,
		&s.Pending,
		&s.Processing,
		&s.Completed,
		&s.Failed,
		&s.Cancelled,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get job stats: %w", err)
	}
	s.Active = s.Pending + s.Processing
	return &s, nil
}

// DeleteTerminal removes one terminal job owned by ownerID. Active jobs and
// jobs belonging to other owners are left alone.
func (r *JobRepo) DeleteTerminal(ctx context.Context, id, ownerID string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE id = $1
		  AND owner_id = $2
		  AND status IN ('completed', 'failed', 'cancelled')
	`, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// ClearHistory removes all terminal jobs for an owner and returns the number
// of rows deleted. Active jobs survive.
func (r *JobRepo) ClearHistory(ctx context.Context, ownerID string) (int64, error) {
	if ownerID == "" {
		return 0, errors.New("owner id is required")
	}

	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE owner_id = $1
		  AND status IN ('completed', 'failed', 'cancelled')
	`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("clear job history: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear history rows affected: %w", err)
	}
	return rowsAffected, nil
}
