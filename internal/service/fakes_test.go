package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/krzysztofKolodziej/idea-match/internal/apperror"
	"github.com/krzysztofKolodziej/idea-match/internal/model"
	"github.com/krzysztofKolodziej/idea-match/internal/query"
	"github.com/krzysztofKolodziej/idea-match/internal/repository"
)

// =========================================================================
// FAKE REPOSITORIES
// =========================================================================
//
// In-memory implementations of the repository interfaces. They store copies
// so a test cannot change stored state through a pointer it was handed, and
// they expose error fields to simulate a failing database.

type fakeIdeaRepo struct {
	ideas     map[int64]*model.Idea
	usernames map[int64]string
	nextID    int64

	lastList  repository.ListOptions
	lastCount query.Condition
	listCalls int

	listErr error
}

func newFakeIdeaRepo() *fakeIdeaRepo {
	return &fakeIdeaRepo{
		ideas:     make(map[int64]*model.Idea),
		usernames: map[int64]string{1: "owner", 2: "other"},
	}
}

func (f *fakeIdeaRepo) Create(_ context.Context, idea *model.Idea) error {
	username, ok := f.usernames[idea.OwnerID]
	if !ok {
		return apperror.NotFound("user", idea.OwnerID)
	}
	f.nextID++
	idea.ID = f.nextID
	idea.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(f.nextID) * time.Hour)
	idea.OwnerUsername = username
	stored := *idea
	f.ideas[idea.ID] = &stored
	return nil
}

func (f *fakeIdeaRepo) GetByID(_ context.Context, id int64) (*model.Idea, error) {
	idea, ok := f.ideas[id]
	if !ok {
		return nil, apperror.NotFound("idea", id)
	}
	result := *idea
	return &result, nil
}

func (f *fakeIdeaRepo) List(_ context.Context, opts repository.ListOptions) ([]model.Idea, error) {
	f.listCalls++
	f.lastList = opts
	if f.listErr != nil {
		return nil, f.listErr
	}

	result := make([]model.Idea, 0, len(f.ideas))
	for _, i := range f.ideas {
		result = append(result, *i)
	}
	sort.Slice(result, func(a, b int) bool { return result[a].ID < result[b].ID })

	if opts.Offset >= len(result) {
		return []model.Idea{}, nil
	}
	result = result[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(result) {
		result = result[:opts.Limit]
	}
	return result, nil
}

func (f *fakeIdeaRepo) Count(_ context.Context, filter query.Condition) (int64, error) {
	f.lastCount = filter
	return int64(len(f.ideas)), nil
}

func (f *fakeIdeaRepo) Update(_ context.Context, idea *model.Idea) error {
	if _, ok := f.ideas[idea.ID]; !ok {
		return apperror.NotFound("idea", idea.ID)
	}
	stored := *idea
	f.ideas[idea.ID] = &stored
	return nil
}

func (f *fakeIdeaRepo) Delete(_ context.Context, id int64) error {
	if _, ok := f.ideas[id]; !ok {
		return apperror.NotFound("idea", id)
	}
	delete(f.ideas, id)
	return nil
}

type fakeUserRepo struct {
	users  map[int64]*model.User
	nextID int64

	createErr error
	getErr    error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int64]*model.User)}
}

func (f *fakeUserRepo) CreateUser(_ context.Context, user *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	for _, u := range f.users {
		if u.Username == user.Username {
			return apperror.Conflict("user", "username")
		}
		if user.Email != "" && u.Email == user.Email {
			return apperror.Conflict("user", "email")
		}
	}
	f.nextID++
	user.ID = f.nextID
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	stored := *user
	f.users[user.ID] = &stored
	return nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	result := *u
	return &result, nil
}

func (f *fakeUserRepo) GetUserByLogin(_ context.Context, login string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.users {
		if u.Username == login || (u.Email != "" && u.Email == login) {
			result := *u
			return &result, nil
		}
	}
	return nil, apperror.NotFound("user", login)
}

func (f *fakeUserRepo) UpsertGitHubUser(ctx context.Context, user *model.User) error {
	for _, u := range f.users {
		if u.GitHubID != nil && *u.GitHubID == *user.GitHubID {
			if user.Email != "" {
				u.Email = user.Email
			}
			*user = *u
			return nil
		}
	}
	return f.CreateUser(ctx, user)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
