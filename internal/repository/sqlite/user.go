package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/krzysztofKolodziej/idea-match/internal/apperror"
	"github.com/krzysztofKolodziej/idea-match/internal/model"
	"github.com/krzysztofKolodziej/idea-match/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userSelect = `
	SELECT id, username, COALESCE(email, ''), password_hash, first_name, last_name,
	       phone_number, location, about_me, github_id, created_at, updated_at
	FROM users`

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u         model.User
		githubID  sql.NullInt64
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.PhoneNumber,
		&u.Location,
		&u.AboutMe,
		&githubID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if githubID.Valid {
		id := githubID.Int64
		u.GitHubID = &id
	}
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return &u, nil
}

// nullableEmail stores "" as NULL. GitHub accounts may hide their email,
// and UNIQUE allows any number of NULLs but only one "".
func nullableEmail(email string) sql.NullString {
	if email == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: email, Valid: true}
}

func nullableInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// CreateUser inserts a new account and sets its ID and timestamps.
// A taken username, email or GitHub id yields apperror.ErrConflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	user.CreatedAt = now
	user.UpdatedAt = now

	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, first_name, last_name,
		                    phone_number, location, about_me, github_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.Username,
		nullableEmail(user.Email),
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.PhoneNumber,
		user.Location,
		user.AboutMe,
		nullableInt64(user.GitHubID),
		toMillis(now),
		toMillis(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", conflictingColumn(err))
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Username, err)
	}

	user.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading user id: %w", err)
	}
	return nil
}

// conflictingColumn extracts the column name from
// "UNIQUE constraint failed: users.email".
func conflictingColumn(err error) string {
	msg := err.Error()
	idx := strings.LastIndex(msg, "users.")
	if idx == -1 {
		return "existing account"
	}
	col := msg[idx+len("users."):]
	if end := strings.IndexAny(col, " )"); end != -1 {
		col = col[:end]
	}
	return col
}

// GetUserByID returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx, userSelect+` WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %d: %w", id, err)
	}
	return u, nil
}

// GetUserByLogin matches login against username first, then email.
func (db *DB) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		userSelect+` WHERE username = ? OR email = ?
		 ORDER BY CASE WHEN username = ? THEN 0 ELSE 1 END
		 LIMIT 1`,
		login, login, login,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", login)
		}
		return nil, fmt.Errorf("sqlite: getting user by login: %w", err)
	}
	return u, nil
}

// UpsertGitHubUser links a GitHub account to a local one.
//
// If a user with user.GitHubID exists, only the profile fields GitHub owns
// (email) are refreshed and the stored record is copied back into user.
// Otherwise a new account is created with the given username. The caller is
// responsible for picking a username that is free.
func (db *DB) UpsertGitHubUser(ctx context.Context, user *model.User) error {
	if user.GitHubID == nil {
		return apperror.ValidationFailed("githubId", "github id is required")
	}

	existing, err := scanUser(db.conn.QueryRowContext(ctx,
		userSelect+` WHERE github_id = ?`, *user.GitHubID,
	))
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("sqlite: looking up user by github_id %d: %w", *user.GitHubID, err)
	}

	if existing == nil {
		return db.CreateUser(ctx, user)
	}

	if user.Email != "" && user.Email != existing.Email {
		existing.Email = user.Email
		existing.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
		_, err = db.conn.ExecContext(ctx,
			`UPDATE users SET email = ?, updated_at = ? WHERE id = ?`,
			nullableEmail(existing.Email),
			toMillis(existing.UpdatedAt),
			existing.ID,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict("user", "email")
			}
			return fmt.Errorf("sqlite: updating user %d: %w", existing.ID, err)
		}
	}

	*user = *existing
	return nil
}
