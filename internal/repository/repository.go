// Package repository declares the storage interfaces the services depend on.
//
// The services never import a database driver. They accept these interfaces,
// and cmd/server hands them the SQLite implementation. Tests hand them
// hand-written mocks instead.
package repository

import (
	"context"

	"github.com/krzysztofKolodziej/idea-match/internal/model"
	"github.com/krzysztofKolodziej/idea-match/internal/query"
)

// ListOptions controls which slice of the ideas table List returns.
//
// Filter and OrderBy are SQL fragments produced by the query package, never
// raw client input. An empty OrderBy means "by id".
type ListOptions struct {
	Limit   int
	Offset  int
	Filter  query.Condition
	OrderBy string
}

type IdeaRepository interface {
	Create(ctx context.Context, idea *model.Idea) error
	GetByID(ctx context.Context, id int64) (*model.Idea, error)
	List(ctx context.Context, opts ListOptions) ([]model.Idea, error)
	// Count returns how many ideas match filter, ignoring paging.
	Count(ctx context.Context, filter query.Condition) (int64, error)
	Update(ctx context.Context, idea *model.Idea) error
	Delete(ctx context.Context, id int64) error
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	// GetUserByLogin looks a user up by username or email.
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	// UpsertGitHubUser links user.GitHubID to an account, creating one if no
	// account carries that GitHub id yet.
	UpsertGitHubUser(ctx context.Context, user *model.User) error
}
