// Package service contains the business logic layer.
//
// ARCHITECTURE:
//
//	Handler (HTTP) → Service (business rules) → Repository (storage)
//
// Services validate input, enforce ownership, and translate between the
// storage entities and the records the API returns. They know nothing about
// HTTP and accept repository interfaces, so tests run them against
// in-memory fakes.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/krzysztofKolodziej/idea-match/internal/apperror"
	"github.com/krzysztofKolodziej/idea-match/internal/model"
	"github.com/krzysztofKolodziej/idea-match/internal/query"
	"github.com/krzysztofKolodziej/idea-match/internal/repository"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	DefaultSort     = "id"
)

// PageRequest is one page of the idea listing as the client asked for it.
// Page is zero-based. Sort and Filter use AIP-132 and AIP-160 syntax.
type PageRequest struct {
	Page   int
	Size   int
	Sort   string
	Filter string
}

// AddIdeaInput is the body of POST /api/account/idea.
type AddIdeaInput struct {
	Title             string             `json:"title"       validate:"notblank,max=200"`
	Location          string             `json:"location"    validate:"notblank,max=200"`
	Description       string             `json:"description" validate:"notblank,max=2000"`
	Goal              *string            `json:"goal"        validate:"omitempty,max=1000"`
	Category          model.IdeaCategory `json:"category"    validate:"required,category"`
	ExpectedStartDate *time.Time         `json:"expectedStartDate"`
}

// UpdateIdeaInput is the body of PATCH /api/account/idea/{id}.
// A nil field is left unchanged.
type UpdateIdeaInput struct {
	Title             *string             `json:"title"       validate:"omitempty,notblank,max=200"`
	Location          *string             `json:"location"    validate:"omitempty,notblank,max=200"`
	Description       *string             `json:"description" validate:"omitempty,notblank,max=2000"`
	Goal              *string             `json:"goal"        validate:"omitempty,max=1000"`
	Status            *model.IdeaStatus   `json:"status"      validate:"omitempty,status"`
	Category          *model.IdeaCategory `json:"category"    validate:"omitempty,category"`
	ExpectedStartDate *time.Time          `json:"expectedStartDate"`
}

// IdeaService implements the idea use cases.
type IdeaService struct {
	repo   repository.IdeaRepository
	logger *slog.Logger
}

func NewIdeaService(repo repository.IdeaRepository, logger *slog.Logger) *IdeaService {
	return &IdeaService{
		repo:   repo,
		logger: logger,
	}
}

// List returns one page of idea summaries.
//
// Out-of-range paging is clamped rather than rejected: a negative page is
// page 0, a size of 0 is the default and anything above MaxPageSize is
// MaxPageSize. A malformed sort or filter is a validation error.
func (s *IdeaService) List(ctx context.Context, req PageRequest) (*model.Page[model.IdeaSummary], error) {
	page := max(req.Page, 0)
	size := req.Size
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	filter, err := query.Ideas.ParseFilter(req.Filter)
	if err != nil {
		return nil, apperror.ValidationFailed("filter", err.Error())
	}
	orderBy, err := query.Ideas.ParseOrder(req.Sort, DefaultSort, "id")
	if err != nil {
		return nil, apperror.ValidationFailed("sort", err.Error())
	}

	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		s.logger.Error("failed to count ideas", slog.String("error", err.Error()))
		return nil, fmt.Errorf("counting ideas: %w", err)
	}

	// Compare page numbers, not offsets: page*size overflows for huge pages.
	summaries := make([]model.IdeaSummary, 0, size)
	if total > 0 && int64(page) <= (total-1)/int64(size) {
		ideas, err := s.repo.List(ctx, repository.ListOptions{
			Limit:   size,
			Offset:  page * size,
			Filter:  filter,
			OrderBy: orderBy,
		})
		if err != nil {
			s.logger.Error("failed to list ideas", slog.String("error", err.Error()))
			return nil, fmt.Errorf("listing ideas: %w", err)
		}
		for i := range ideas {
			summaries = append(summaries, ideas[i].Summary())
		}
	}

	p := model.NewPage(summaries, page, size, total)
	return &p, nil
}

// Get returns the full record of one idea.
func (s *IdeaService) Get(ctx context.Context, id int64) (*model.IdeaDetails, error) {
	if id <= 0 {
		return nil, apperror.NotFound("idea", id)
	}

	idea, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	details := idea.Details()
	return &details, nil
}

// Add creates an idea owned by ownerID. New ideas always start as DRAFT.
func (s *IdeaService) Add(ctx context.Context, ownerID int64, input AddIdeaInput) (*model.IdeaDetails, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	idea := &model.Idea{
		Title:           strings.TrimSpace(input.Title),
		Location:        strings.TrimSpace(input.Location),
		Description:     strings.TrimSpace(input.Description),
		Goal:            trimmedOrNil(input.Goal),
		Status:          model.StatusDraft,
		Category:        input.Category,
		OwnerID:         ownerID,
		ExpectedStartAt: utcOrNil(input.ExpectedStartDate),
	}

	if err := s.repo.Create(ctx, idea); err != nil {
		s.logger.Error("failed to create idea",
			slog.Int64("ownerID", ownerID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating idea: %w", err)
	}

	s.logger.Info("idea created",
		slog.Int64("id", idea.ID),
		slog.Int64("ownerID", ownerID),
		slog.String("category", string(idea.Category)),
	)

	details := idea.Details()
	return &details, nil
}

// Update applies the non-nil fields of input. Only the idea's owner may
// update it.
func (s *IdeaService) Update(ctx context.Context, id, userID int64, input UpdateIdeaInput) (*model.IdeaDetails, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	idea, err := s.ownedIdea(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		idea.Title = strings.TrimSpace(*input.Title)
	}
	if input.Location != nil {
		idea.Location = strings.TrimSpace(*input.Location)
	}
	if input.Description != nil {
		idea.Description = strings.TrimSpace(*input.Description)
	}
	if input.Goal != nil {
		idea.Goal = trimmedOrNil(input.Goal)
	}
	if input.Status != nil {
		idea.Status = *input.Status
	}
	if input.Category != nil {
		idea.Category = *input.Category
	}
	if input.ExpectedStartDate != nil {
		idea.ExpectedStartAt = utcOrNil(input.ExpectedStartDate)
	}

	if err := s.repo.Update(ctx, idea); err != nil {
		return nil, fmt.Errorf("updating idea %d: %w", id, err)
	}

	s.logger.Info("idea updated", slog.Int64("id", id), slog.Int64("userID", userID))

	details := idea.Details()
	return &details, nil
}

// Delete removes an idea. Only the idea's owner may delete it.
func (s *IdeaService) Delete(ctx context.Context, id, userID int64) error {
	if _, err := s.ownedIdea(ctx, id, userID); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting idea %d: %w", id, err)
	}

	s.logger.Info("idea deleted", slog.Int64("id", id), slog.Int64("userID", userID))
	return nil
}

// ownedIdea loads an idea and checks that userID owns it.
// Not-found is reported before forbidden.
func (s *IdeaService) ownedIdea(ctx context.Context, id, userID int64) (*model.Idea, error) {
	if id <= 0 {
		return nil, apperror.NotFound("idea", id)
	}

	idea, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if idea.OwnerID != userID {
		s.logger.Warn("idea ownership check failed",
			slog.Int64("id", id),
			slog.Int64("userID", userID),
		)
		return nil, apperror.Forbidden("you can only modify your own ideas")
	}
	return idea, nil
}

// trimmedOrNil trims *s and maps a blank result to nil, so an empty goal is
// stored as absent rather than as "".
func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

func utcOrNil(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
