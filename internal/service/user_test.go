package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/krzysztofKolodziej/idea-match/internal/apperror"
	"github.com/krzysztofKolodziej/idea-match/internal/auth"
	"github.com/krzysztofKolodziej/idea-match/internal/model"
)

type testUserEnv struct {
	svc       *UserService
	repo      *fakeUserRepo
	tokens    *auth.TokenService
	blacklist *auth.MemoryBlacklist
}

func newTestUserService(t *testing.T) *testUserEnv {
	t.Helper()

	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	repo := newFakeUserRepo()
	bl := auth.NewMemoryBlacklist()

	return &testUserEnv{
		svc:       NewUserService(repo, ts, auth.NewPasswordServiceForTest(), bl, discardLogger()),
		repo:      repo,
		tokens:    ts,
		blacklist: bl,
	}
}

func validRegisterInput() RegisterInput {
	return RegisterInput{
		Username:  "johndoe",
		Email:     "John@Example.com",
		Password:  "Str0ng!Pass",
		FirstName: "John",
		LastName:  "Doe",
	}
}

func mustRegister(t *testing.T, env *testUserEnv) *model.User {
	t.Helper()
	u, err := env.svc.Register(context.Background(), validRegisterInput())
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return u
}

// =========================================================================
// REGISTER TESTS
// =========================================================================

func TestRegister_Success(t *testing.T) {
	env := newTestUserService(t)

	u := mustRegister(t, env)

	if u.ID == 0 {
		t.Error("Register() did not assign an ID")
	}
	if u.Email != "john@example.com" {
		t.Errorf("Email = %q, want lower-cased", u.Email)
	}
	if u.PasswordHash == "" || u.PasswordHash == "Str0ng!Pass" {
		t.Errorf("PasswordHash = %q, want a bcrypt hash", u.PasswordHash)
	}
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*RegisterInput)
		wantField string
	}{
		{"short username", func(in *RegisterInput) { in.Username = "jo" }, "username"},
		{"username with spaces", func(in *RegisterInput) { in.Username = "john doe" }, "username"},
		{"bad email", func(in *RegisterInput) { in.Email = "not-an-email" }, "email"},
		{"missing first name", func(in *RegisterInput) { in.FirstName = " " }, "firstName"},
		{"missing last name", func(in *RegisterInput) { in.LastName = "" }, "lastName"},
		{"bad phone", func(in *RegisterInput) { in.PhoneNumber = "call me" }, "phoneNumber"},
		{"password too short", func(in *RegisterInput) { in.Password = "S0!a" }, "password"},
		{"password too long", func(in *RegisterInput) { in.Password = "Str0ng!Pass-Str0ng!Pass-Str0ng!" }, "password"},
		{"password no digit", func(in *RegisterInput) { in.Password = "Strong!Pass" }, "password"},
		{"password no upper", func(in *RegisterInput) { in.Password = "str0ng!pass" }, "password"},
		{"password no lower", func(in *RegisterInput) { in.Password = "STR0NG!PASS" }, "password"},
		{"password no special", func(in *RegisterInput) { in.Password = "Str0ngPass" }, "password"},
		{"password whitespace", func(in *RegisterInput) { in.Password = "Str0ng! Pass" }, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestUserService(t)
			input := validRegisterInput()
			tt.mutate(&input)

			_, err := env.svc.Register(context.Background(), input)
			assertField(t, err, tt.wantField)
		})
	}
}

func TestRegister_OptionalPhone(t *testing.T) {
	env := newTestUserService(t)
	input := validRegisterInput()
	input.PhoneNumber = "+48123456789"

	if _, err := env.svc.Register(context.Background(), input); err != nil {
		t.Errorf("Register() with valid phone error = %v", err)
	}
}

func TestRegister_Duplicate(t *testing.T) {
	env := newTestUserService(t)
	mustRegister(t, env)

	_, err := env.svc.Register(context.Background(), validRegisterInput())
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

// =========================================================================
// LOGIN / LOGOUT TESTS
// =========================================================================

func TestLogin_ByUsernameOrEmail(t *testing.T) {
	env := newTestUserService(t)
	u := mustRegister(t, env)

	// Registered as "John@Example.com"; any casing of the email signs in.
	for _, login := range []string{"johndoe", "john@example.com", "John@Example.com", " JOHN@EXAMPLE.COM "} {
		res, err := env.svc.Login(context.Background(), LoginInput{Login: login, Password: "Str0ng!Pass"})
		if err != nil {
			t.Fatalf("Login(%q) error = %v", login, err)
		}
		if res.TokenType != "Bearer" {
			t.Errorf("TokenType = %q, want Bearer", res.TokenType)
		}

		claims, err := env.tokens.Validate(res.Token)
		if err != nil {
			t.Fatalf("issued token does not validate: %v", err)
		}
		if claims.UserID != u.ID {
			t.Errorf("token subject = %d, want %d", claims.UserID, u.ID)
		}
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	env := newTestUserService(t)
	mustRegister(t, env)

	github := int64(5)
	env.repo.users[99] = &model.User{ID: 99, Username: "ghonly", GitHubID: &github}

	tests := []struct {
		name  string
		input LoginInput
	}{
		{"wrong password", LoginInput{Login: "johndoe", Password: "Wr0ng!Pass"}},
		{"unknown user", LoginInput{Login: "nobody", Password: "Str0ng!Pass"}},
		{"github-only account", LoginInput{Login: "ghonly", Password: "Str0ng!Pass"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Login(context.Background(), tt.input)
			if !errors.Is(err, apperror.ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
			if err.Error() != "invalid username or password" {
				t.Errorf("message %q leaks which part was wrong", err.Error())
			}
		})
	}
}

func TestLogin_MissingFields(t *testing.T) {
	env := newTestUserService(t)

	_, err := env.svc.Login(context.Background(), LoginInput{Password: "x"})
	assertField(t, err, "login")
}

func TestLogin_RepositoryError(t *testing.T) {
	env := newTestUserService(t)
	env.repo.getErr = errors.New("db down")

	_, err := env.svc.Login(context.Background(), LoginInput{Login: "johndoe", Password: "x"})
	if err == nil || errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("expected internal error, got %v", err)
	}
}

func TestLogout_BlacklistsToken(t *testing.T) {
	env := newTestUserService(t)
	mustRegister(t, env)

	res, err := env.svc.Login(context.Background(), LoginInput{Login: "johndoe", Password: "Str0ng!Pass"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	claims, err := env.tokens.Validate(res.Token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if err := env.svc.Logout(context.Background(), claims); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	revoked, _ := env.blacklist.Contains(context.Background(), claims.ID)
	if !revoked {
		t.Error("token was not blacklisted")
	}
}

func TestLogout_NoClaims(t *testing.T) {
	env := newTestUserService(t)

	if err := env.svc.Logout(context.Background(), nil); !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

// =========================================================================
// PROFILE TESTS
// =========================================================================

func TestProfile(t *testing.T) {
	env := newTestUserService(t)
	u := mustRegister(t, env)

	got, err := env.svc.Profile(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if got.Username != "johndoe" {
		t.Errorf("Username = %q", got.Username)
	}

	_, err = env.svc.Profile(context.Background(), 404)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// =========================================================================
// GITHUB TESTS
// =========================================================================

func TestLoginOrRegisterGitHub_NewUser(t *testing.T) {
	env := newTestUserService(t)

	res, err := env.svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{
		ID: 583231, Login: "octocat", Name: "The Octocat", Email: "Octo@Example.com",
	})
	if err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}

	u := res.User
	if u.Username != "octocat" || u.FirstName != "The" || u.LastName != "Octocat" {
		t.Errorf("user = %+v", u)
	}
	if u.Email != "octo@example.com" {
		t.Errorf("Email = %q", u.Email)
	}
	if u.GitHubID == nil || *u.GitHubID != 583231 {
		t.Errorf("GitHubID = %v", u.GitHubID)
	}
	if _, err := env.tokens.Validate(res.Token); err != nil {
		t.Errorf("issued token invalid: %v", err)
	}
}

func TestLoginOrRegisterGitHub_ReturningUserKeepsAccount(t *testing.T) {
	env := newTestUserService(t)
	gh := &auth.GitHubUser{ID: 583231, Login: "octocat"}

	first, err := env.svc.LoginOrRegisterGitHub(context.Background(), gh)
	if err != nil {
		t.Fatalf("first sign-in error = %v", err)
	}
	second, err := env.svc.LoginOrRegisterGitHub(context.Background(), gh)
	if err != nil {
		t.Fatalf("second sign-in error = %v", err)
	}

	if first.User.ID != second.User.ID {
		t.Errorf("returning user got a new account: %d → %d", first.User.ID, second.User.ID)
	}
	if second.User.Username != "octocat" {
		t.Errorf("Username = %q, want unchanged", second.User.Username)
	}
	if len(env.repo.users) != 1 {
		t.Errorf("users = %d, want 1", len(env.repo.users))
	}
}

func TestLoginOrRegisterGitHub_TakenUsernameAndEmail(t *testing.T) {
	env := newTestUserService(t)
	mustRegister(t, env) // johndoe / john@example.com

	res, err := env.svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{
		ID: 7, Login: "johndoe", Email: "john@example.com",
	})
	if err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}
	if res.User.Username != "johndoe-gh7" {
		t.Errorf("Username = %q, want johndoe-gh7", res.User.Username)
	}
	if res.User.Email != "" {
		t.Errorf("Email = %q, want empty (taken by another account)", res.User.Email)
	}
	if res.User.FirstName != "johndoe" {
		t.Errorf("FirstName = %q, want login fallback", res.User.FirstName)
	}
}

func TestLoginOrRegisterGitHub_EmptyUser(t *testing.T) {
	env := newTestUserService(t)

	if _, err := env.svc.LoginOrRegisterGitHub(context.Background(), nil); err == nil {
		t.Error("expected error for nil GitHub user")
	}
	if _, err := env.svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{Login: "x"}); err == nil {
		t.Error("expected error for GitHub user without id")
	}
}

func TestSplitName(t *testing.T) {
	tests := []struct{ name, login, first, last string }{
		{"", "octo", "octo", ""},
		{"Ada", "ada", "Ada", ""},
		{"Ada King Lovelace", "ada", "Ada", "King Lovelace"},
	}
	for _, tt := range tests {
		first, last := splitName(tt.name, tt.login)
		if first != tt.first || last != tt.last {
			t.Errorf("splitName(%q) = (%q, %q), want (%q, %q)", tt.name, first, last, tt.first, tt.last)
		}
	}
}
