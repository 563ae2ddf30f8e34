package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/krzysztofKolodziej/idea-match/internal/apperror"
	"github.com/krzysztofKolodziej/idea-match/internal/auth"
	"github.com/krzysztofKolodziej/idea-match/internal/model"
	"github.com/krzysztofKolodziej/idea-match/internal/repository"
)

// TokenType is the scheme clients put in front of the token in the
// Authorization header.
const TokenType = "Bearer"

// RegisterInput is the body of POST /api/register.
type RegisterInput struct {
	Username    string `json:"username"    validate:"notblank,min=3,max=50,username"`
	Email       string `json:"email"       validate:"required,email,max=100"`
	Password    string `json:"password"    validate:"required,password"`
	FirstName   string `json:"firstName"   validate:"notblank,max=50"`
	LastName    string `json:"lastName"    validate:"notblank,max=50"`
	PhoneNumber string `json:"phoneNumber" validate:"omitempty,phone"`
	Location    string `json:"location"    validate:"omitempty,max=100"`
	AboutMe     string `json:"aboutMe"     validate:"omitempty,max=500"`
}

// LoginInput is the body of POST /api/login. Login is a username or an email.
type LoginInput struct {
	Login    string `json:"login"    validate:"notblank"`
	Password string `json:"password" validate:"required"`
}

// AuthResult bundles an issued token with the account it was issued for.
type AuthResult struct {
	User      *model.User
	Token     string
	TokenType string
	ExpiresAt time.Time
}

// UserService handles accounts and sessions.
//
// DEPENDENCIES (injected via NewUserService):
//   - users      repository.UserRepository → read/write user records
//   - tokens     *auth.TokenService        → issue/validate JWTs
//   - passwords  *auth.PasswordService     → bcrypt hashing
//   - blacklist  auth.Blacklist            → revoked token IDs
//   - logger     *slog.Logger
type UserService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	blacklist auth.Blacklist
	logger    *slog.Logger
}

func NewUserService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	blacklist auth.Blacklist,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		blacklist: blacklist,
		logger:    logger,
	}
}

// Register creates a password account. Accounts are usable immediately.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (*model.User, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if err := validateInput(input); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("service/user: %w", err)
	}

	user := &model.User{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		PhoneNumber:  input.PhoneNumber,
		Location:     strings.TrimSpace(input.Location),
		AboutMe:      strings.TrimSpace(input.AboutMe),
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("service/user: creating user %s: %w", input.Username, err)
	}

	s.logger.Info("user registered",
		slog.Int64("userID", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// Login checks credentials and issues an access token.
//
// Unknown user and wrong password produce the same error, and take the same
// time (see PasswordService.VerifyDummy).
func (s *UserService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	badCredentials := apperror.Unauthorized("invalid username or password")

	// Emails are stored lower-cased; usernames are case-sensitive.
	login := strings.TrimSpace(input.Login)
	if strings.Contains(login, "@") {
		login = strings.ToLower(login)
	}

	user, err := s.users.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			_ = s.passwords.VerifyDummy(input.Password)
			return nil, badCredentials
		}
		return nil, fmt.Errorf("service/user: looking up %q: %w", input.Login, err)
	}

	if user.PasswordHash == "" {
		// GitHub-only account.
		_ = s.passwords.VerifyDummy(input.Password)
		return nil, badCredentials
	}
	if err := s.passwords.Verify(user.PasswordHash, input.Password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Error("stored password hash is unusable",
				slog.Int64("userID", user.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil, badCredentials
	}

	return s.issue(user)
}

// Logout revokes the token described by claims until it would have expired.
func (s *UserService) Logout(ctx context.Context, claims *auth.TokenClaims) error {
	if claims == nil {
		return apperror.Unauthorized("no active session")
	}

	ttl := time.Until(claims.ExpiresAt)
	if err := s.blacklist.Add(ctx, claims.ID, ttl); err != nil {
		return fmt.Errorf("service/user: blacklisting token: %w", err)
	}

	s.logger.Info("user logged out", slog.Int64("userID", claims.UserID))
	return nil
}

// Profile returns the account of the authenticated user.
func (s *UserService) Profile(ctx context.Context, userID int64) (*model.User, error) {
	if userID <= 0 {
		return nil, apperror.Unauthorized("no active session")
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/user: fetching user %d: %w", userID, err)
	}
	return user, nil
}

// LoginOrRegisterGitHub signs in the account linked to a GitHub identity,
// creating it on first sign-in.
//
// A new account takes the GitHub login as its username. When that name is
// already used by someone else, "-gh<id>" is appended. The GitHub email is
// only stored if no other account has it.
func (s *UserService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil || ghUser.ID == 0 {
		return nil, fmt.Errorf("service/user: GitHub user must not be empty")
	}

	first, last := splitName(ghUser.Name, ghUser.Login)
	githubID := ghUser.ID
	user := &model.User{
		Username:  ghUser.Login,
		Email:     strings.ToLower(ghUser.Email),
		FirstName: first,
		LastName:  last,
		GitHubID:  &githubID,
	}

	var err error
	if user.Username, err = s.freeUsername(ctx, ghUser.Login, githubID); err != nil {
		return nil, err
	}
	if user.Email, err = s.freeEmail(ctx, user.Email, githubID); err != nil {
		return nil, err
	}

	if err := s.users.UpsertGitHubUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/user: upserting user (githubID=%d): %w", githubID, err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.Int64("userID", user.ID),
		slog.String("username", user.Username),
	)
	return s.issue(user)
}

func (s *UserService) issue(user *model.User) (*AuthResult, error) {
	token, claims, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/user: generating token for user %d: %w", user.ID, err)
	}
	return &AuthResult{
		User:      user,
		Token:     token,
		TokenType: TokenType,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// freeUsername returns login if it is unused or already belongs to this
// GitHub identity, and a suffixed variant otherwise.
func (s *UserService) freeUsername(ctx context.Context, login string, githubID int64) (string, error) {
	taken, err := s.takenByOther(ctx, login, githubID)
	if err != nil {
		return "", err
	}
	if !taken {
		return login, nil
	}
	return login + "-gh" + strconv.FormatInt(githubID, 10), nil
}

// freeEmail returns email, or "" when another account already uses it.
func (s *UserService) freeEmail(ctx context.Context, email string, githubID int64) (string, error) {
	if email == "" {
		return "", nil
	}
	taken, err := s.takenByOther(ctx, email, githubID)
	if err != nil {
		return "", err
	}
	if taken {
		return "", nil
	}
	return email, nil
}

func (s *UserService) takenByOther(ctx context.Context, login string, githubID int64) (bool, error) {
	existing, err := s.users.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("service/user: looking up %q: %w", login, err)
	}
	return existing.GitHubID == nil || *existing.GitHubID != githubID, nil
}

// splitName turns "Ada King Lovelace" into ("Ada", "King Lovelace").
// An empty name falls back to the login as the first name.
func splitName(name, login string) (first, last string) {
	fields := strings.Fields(name)
	switch len(fields) {
	case 0:
		return login, ""
	case 1:
		return fields[0], ""
	default:
		return fields[0], strings.Join(fields[1:], " ")
	}
}
