package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/krzysztofKolodziej/idea-match/internal/apperror"
	"github.com/krzysztofKolodziej/idea-match/internal/model"
	"github.com/krzysztofKolodziej/idea-match/internal/query"
	"github.com/krzysztofKolodziej/idea-match/internal/repository"
)

// compile-time check that *DB implements repository.IdeaRepository
var _ repository.IdeaRepository = (*DB)(nil)

// ideaSelect is shared by GetByID and List. The aliases i and u are the ones
// the query package qualifies its columns with, so filter and sort fragments
// can be appended as-is.
const ideaSelect = `
	SELECT i.id, i.title, i.location, i.description, i.goal, i.status, i.category,
	       i.owner_id, u.username, i.created_at, i.expected_start_at
	FROM ideas i
	JOIN users u ON u.id = i.owner_id`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdea(row rowScanner) (*model.Idea, error) {
	var (
		idea      model.Idea
		goal      sql.NullString
		createdAt int64
		startAt   sql.NullInt64
	)
	err := row.Scan(
		&idea.ID,
		&idea.Title,
		&idea.Location,
		&idea.Description,
		&goal,
		&idea.Status,
		&idea.Category,
		&idea.OwnerID,
		&idea.OwnerUsername,
		&createdAt,
		&startAt,
	)
	if err != nil {
		return nil, err
	}
	idea.Goal = stringFromNull(goal)
	idea.CreatedAt = fromMillis(createdAt)
	idea.ExpectedStartAt = timeFromNullMillis(startAt)
	return &idea, nil
}

// Create inserts a new idea and fills in its ID, CreatedAt and OwnerUsername.
// An OwnerID that matches no user is reported as a missing user.
func (db *DB) Create(ctx context.Context, idea *model.Idea) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	idea.CreatedAt = now

	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO ideas (title, location, description, goal, status, category,
		                    owner_id, created_at, updated_at, expected_start_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		idea.Title,
		idea.Location,
		idea.Description,
		nullableString(idea.Goal),
		idea.Status,
		idea.Category,
		idea.OwnerID,
		toMillis(now),
		toMillis(now),
		nullableMillis(idea.ExpectedStartAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return apperror.NotFound("user", idea.OwnerID)
		}
		return fmt.Errorf("sqlite: creating idea: %w", err)
	}

	idea.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading idea id: %w", err)
	}

	err = db.conn.QueryRowContext(ctx,
		`SELECT username FROM users WHERE id = ?`, idea.OwnerID,
	).Scan(&idea.OwnerUsername)
	if err != nil {
		return fmt.Errorf("sqlite: reading owner of idea %d: %w", idea.ID, err)
	}

	return nil
}

// GetByID returns apperror.ErrNotFound when no idea has the given id.
func (db *DB) GetByID(ctx context.Context, id int64) (*model.Idea, error) {
	idea, err := scanIdea(db.conn.QueryRowContext(ctx, ideaSelect+` WHERE i.id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("idea", id)
		}
		return nil, fmt.Errorf("sqlite: getting idea %d: %w", id, err)
	}
	return idea, nil
}

// List returns one page of ideas matching opts.Filter, ordered by opts.OrderBy.
//
// Limit is clamped to 1..100 the same way the service clamps page size, so a
// caller that bypasses the service still cannot pull the whole table.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.Idea, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	orderBy := opts.OrderBy
	if orderBy == "" {
		orderBy = "i.id ASC"
	}

	var sb strings.Builder
	sb.WriteString(ideaSelect)
	args := make([]any, 0, len(opts.Filter.Params)+2)
	if !opts.Filter.Empty() {
		sb.WriteString(" WHERE ")
		sb.WriteString(opts.Filter.Clause)
		args = append(args, opts.Filter.Params...)
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(orderBy)
	sb.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing ideas: %w", err)
	}
	defer rows.Close()

	ideas := make([]model.Idea, 0, limit)
	for rows.Next() {
		idea, err := scanIdea(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning idea row: %w", err)
		}
		ideas = append(ideas, *idea)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating ideas: %w", err)
	}

	return ideas, nil
}

// Count joins users too, because a filter may reference u.username.
func (db *DB) Count(ctx context.Context, filter query.Condition) (int64, error) {
	q := `SELECT COUNT(*) FROM ideas i JOIN users u ON u.id = i.owner_id`
	if !filter.Empty() {
		q += " WHERE " + filter.Clause
	}

	var total int64
	if err := db.conn.QueryRowContext(ctx, q, filter.Params...).Scan(&total); err != nil {
		return 0, fmt.Errorf("sqlite: counting ideas: %w", err)
	}
	return total, nil
}

// Update writes every mutable column of idea. Owner and creation time are
// never changed.
func (db *DB) Update(ctx context.Context, idea *model.Idea) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE ideas
		 SET title = ?, location = ?, description = ?, goal = ?, status = ?,
		     category = ?, expected_start_at = ?, updated_at = ?
		 WHERE id = ?`,
		idea.Title,
		idea.Location,
		idea.Description,
		nullableString(idea.Goal),
		idea.Status,
		idea.Category,
		nullableMillis(idea.ExpectedStartAt),
		toMillis(time.Now()),
		idea.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating idea %d: %w", idea.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("idea", idea.ID)
	}

	return nil
}

func (db *DB) Delete(ctx context.Context, id int64) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM ideas WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting idea %d: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("idea", id)
	}

	return nil
}
