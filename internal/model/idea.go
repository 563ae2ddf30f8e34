// Package model defines the data structures used throughout the application.
//
// TWO KINDS OF STRUCTS LIVE HERE:
//   - Entities (Idea, User): what the repository stores and loads.
//   - Transfer records (IdeaSummary, IdeaDetails, Page): what the API returns.
//     The web client is written against these exact JSON shapes, so their
//     field names and nullability are part of the public contract.
//
// Keeping the transfer records separate from the entity means the database
// can grow columns (owner ID, collaborators, ...) without leaking them to
// clients that only asked for a list of ideas.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/krzysztofKolodziej/idea-match/internal/apperror"
)

// =========================================================================
// ENUMERATIONS
// =========================================================================
//
// STRING-BACKED ENUMS:
// Go has no enum keyword. The idiomatic substitute is a named string type
// plus a block of typed constants. The string value IS the wire value, so
// JSON encoding needs no extra code, and the database column stores the
// same text the client sees.
//
// What the type alone does NOT give us is a closed set: any string converts
// to IdeaCategory. Valid() closes the set, and UnmarshalJSON calls it so
// unknown values are rejected at the API boundary rather than stored.

// IdeaCategory classifies what an idea is about.
type IdeaCategory string

const (
	CategoryTechnology  IdeaCategory = "TECHNOLOGY"
	CategoryBusiness    IdeaCategory = "BUSINESS"
	CategoryCreative    IdeaCategory = "CREATIVE"
	CategorySocial      IdeaCategory = "SOCIAL"
	CategoryEducation   IdeaCategory = "EDUCATION"
	CategoryHealth      IdeaCategory = "HEALTH"
	CategoryEnvironment IdeaCategory = "ENVIRONMENT"
	CategoryOther       IdeaCategory = "OTHER"
)

// IdeaCategories lists every category in display order.
var IdeaCategories = []IdeaCategory{
	CategoryTechnology,
	CategoryBusiness,
	CategoryCreative,
	CategorySocial,
	CategoryEducation,
	CategoryHealth,
	CategoryEnvironment,
	CategoryOther,
}

// Valid reports whether c is one of the declared categories.
func (c IdeaCategory) Valid() bool {
	for _, known := range IdeaCategories {
		if c == known {
			return true
		}
	}
	return false
}

// UnmarshalJSON rejects values outside the enumeration.
// A JSON null leaves the zero value in place, matching encoding/json's
// behaviour for plain strings.
func (c *IdeaCategory) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("category must be a string: %w", err)
	}
	parsed, err := ParseIdeaCategory(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseIdeaCategory converts s to an IdeaCategory. Matching is exact:
// the wire format is upper-case.
func ParseIdeaCategory(s string) (IdeaCategory, error) {
	c := IdeaCategory(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q (allowed: %s)", s, joinValues(IdeaCategories))
	}
	return c, nil
}

// IdeaStatus is the lifecycle stage of an idea.
type IdeaStatus string

const (
	StatusDraft     IdeaStatus = "DRAFT"
	StatusActive    IdeaStatus = "ACTIVE"
	StatusPaused    IdeaStatus = "PAUSED"
	StatusCompleted IdeaStatus = "COMPLETED"
	StatusCancelled IdeaStatus = "CANCELLED"
)

// IdeaStatuses lists every status in lifecycle order.
var IdeaStatuses = []IdeaStatus{
	StatusDraft,
	StatusActive,
	StatusPaused,
	StatusCompleted,
	StatusCancelled,
}

// Valid reports whether s is one of the declared statuses.
func (s IdeaStatus) Valid() bool {
	for _, known := range IdeaStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// UnmarshalJSON rejects values outside the enumeration. As with
// IdeaCategory, a JSON null leaves the zero value in place.
func (s *IdeaStatus) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("status must be a string: %w", err)
	}
	parsed, err := ParseIdeaStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseIdeaStatus converts s to an IdeaStatus. Matching is exact, so
// "active" is rejected.
func ParseIdeaStatus(s string) (IdeaStatus, error) {
	st := IdeaStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q (allowed: %s)", s, joinValues(IdeaStatuses))
	}
	return st, nil
}

// joinValues renders an enum list for error messages: "A, B, C".
func joinValues[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}

// =========================================================================
// ENTITY
// =========================================================================

// Idea is a user-submitted idea as stored in the database.
//
// OPTIONAL FIELDS AS POINTERS:
// Goal and ExpectedStartAt may be absent. A nil pointer means "not set",
// which is different from an empty string or the zero time. The pointer
// survives all the way to JSON, where nil becomes null.
//
// OwnerUsername is not a column of the ideas table. The repository fills it
// by joining users, because both transfer records show the author's name.
type Idea struct {
	ID              int64
	Title           string
	Location        string
	Description     string
	Goal            *string
	Status          IdeaStatus
	Category        IdeaCategory
	OwnerID         int64
	OwnerUsername   string
	CreatedAt       time.Time
	ExpectedStartAt *time.Time
}

// Summary projects the idea onto the list-view record.
func (i *Idea) Summary() IdeaSummary {
	return IdeaSummary{
		ID:          i.ID,
		Title:       i.Title,
		Location:    i.Location,
		Category:    i.Category,
		Username:    i.OwnerUsername,
		CreatedDate: i.CreatedAt.UTC(),
	}
}

// Details projects the idea onto the full record.
//
// The optional fields are copied, not shared: handing out the entity's own
// pointers would let a caller mutate the idea through the response value.
func (i *Idea) Details() IdeaDetails {
	d := IdeaDetails{
		ID:          i.ID,
		Title:       i.Title,
		Location:    i.Location,
		Description: i.Description,
		Status:      i.Status,
		Category:    i.Category,
		Username:    i.OwnerUsername,
		CreatedDate: i.CreatedAt.UTC(),
	}
	if i.Goal != nil {
		goal := *i.Goal
		d.Goal = &goal
	}
	if i.ExpectedStartAt != nil {
		start := i.ExpectedStartAt.UTC()
		d.ExpectedStartDate = &start
	}
	return d
}

// =========================================================================
// TRANSFER RECORDS
// =========================================================================

// IdeaSummary is the short form shown in idea listings.
//
// JSON SHAPE:
//
//	{"id":1,"title":"...","location":"Warsaw","category":"TECHNOLOGY",
//	 "username":"johndoe","createdDate":"2023-01-01T12:00:00Z"}
//
// time.Time marshals as RFC 3339, which is the textual date the client parses.
type IdeaSummary struct {
	ID          int64        `json:"id"`
	Title       string       `json:"title"`
	Location    string       `json:"location"`
	Category    IdeaCategory `json:"category"`
	Username    string       `json:"username"`
	CreatedDate time.Time    `json:"createdDate"`
}

// Validate checks that every required field is present and that the
// category belongs to the enumeration.
func (s IdeaSummary) Validate() error {
	switch {
	case s.ID <= 0:
		return apperror.ValidationFailed("id", "id must be a positive number")
	case strings.TrimSpace(s.Title) == "":
		return apperror.ValidationFailed("title", "title is required")
	case strings.TrimSpace(s.Location) == "":
		return apperror.ValidationFailed("location", "location is required")
	case !s.Category.Valid():
		return apperror.ValidationFailed("category", fmt.Sprintf("category %q is not a known category", s.Category))
	case strings.TrimSpace(s.Username) == "":
		return apperror.ValidationFailed("username", "username is required")
	case s.CreatedDate.IsZero():
		return apperror.ValidationFailed("createdDate", "createdDate is required")
	}
	return nil
}

// IdeaDetails is the full form shown on an idea's own page.
//
// No omitempty on Goal or ExpectedStartDate: the client expects the keys to
// be present with a null value when unset, not missing.
type IdeaDetails struct {
	ID                int64        `json:"id"`
	Title             string       `json:"title"`
	Location          string       `json:"location"`
	Description       string       `json:"description"`
	Goal              *string      `json:"goal"`
	Status            IdeaStatus   `json:"status"`
	Category          IdeaCategory `json:"category"`
	Username          string       `json:"username"`
	CreatedDate       time.Time    `json:"createdDate"`
	ExpectedStartDate *time.Time   `json:"expectedStartDate"`
}

// Validate checks the eight required fields and both enumerations.
// Goal and ExpectedStartDate may be nil.
func (d IdeaDetails) Validate() error {
	if err := d.Summary().Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(d.Description) == "" {
		return apperror.ValidationFailed("description", "description is required")
	}
	if !d.Status.Valid() {
		return apperror.ValidationFailed("status", fmt.Sprintf("status %q is not a known status", d.Status))
	}
	return nil
}

// Summary drops the detail-only fields. For any idea,
// idea.Details().Summary() == idea.Summary().
func (d IdeaDetails) Summary() IdeaSummary {
	return IdeaSummary{
		ID:          d.ID,
		Title:       d.Title,
		Location:    d.Location,
		Category:    d.Category,
		Username:    d.Username,
		CreatedDate: d.CreatedDate,
	}
}
