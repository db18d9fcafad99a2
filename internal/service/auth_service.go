package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"portfolio/api/internal/apperr"
	"portfolio/api/internal/models"
	"portfolio/api/internal/repository"
	"portfolio/api/internal/security"
)

const (
	MinPasswordLen = 6
	maxEmailLen    = 254
)

var (
	// ErrNoAccess means the token verified but its principal no longer matches the store.
	ErrNoAccess = errors.New("session principal has no access")

	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// AdminStore is the credential store the auth flows run against.
type AdminStore interface {
	FindByEmail(ctx context.Context, email string) (models.Admin, error)
	GetByID(ctx context.Context, id string) (models.Admin, error)
	MatchesIdentity(ctx context.Context, id, email string) (bool, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateProfile(ctx context.Context, id string, update repository.ProfileUpdate) (models.Admin, error)
}

type PasswordHasher func(password string) (string, error)

type AuthService struct {
	admins   AdminStore
	tokens   *security.SessionTokens
	reporter *apperr.Reporter
	hash     PasswordHasher
	log      zerolog.Logger
}

type AuthOption func(*AuthService)

// WithPasswordHasher replaces the argon2id default.
func WithPasswordHasher(h PasswordHasher) AuthOption {
	return func(s *AuthService) { s.hash = h }
}

func NewAuthService(admins AdminStore, tokens *security.SessionTokens, reporter *apperr.Reporter, log zerolog.Logger, opts ...AuthOption) *AuthService {
	s := &AuthService{
		admins:   admins,
		tokens:   tokens,
		reporter: reporter,
		hash:     security.HashPassword,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AuthService) Tokens() *security.SessionTokens {
	return s.tokens
}

// ValidateEmail trims and lower-cases email and checks its shape.
func ValidateEmail(email string) (string, error) {
	normalized := repository.NormalizeEmail(email)
	if normalized == "" {
		return "", apperr.ValidationField("email", "Email is required")
	}
	if !emailPattern.MatchString(normalized) {
		return "", apperr.ValidationField("email", "Invalid email format")
	}
	if len(normalized) > maxEmailLen {
		return "", apperr.ValidationField("email", "Email is too long")
	}
	return normalized, nil
}

type LoginInput struct {
	Email    string
	Password string
}

type LoginResult struct {
	Token string
	Admin models.AdminProfile
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (LoginResult, error) {
	email := repository.NormalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return LoginResult{}, apperr.Validation("Email and password are required")
	}

	admin, err := s.admins.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrAdminNotFound) {
			return LoginResult{}, apperr.Unauthorized("Invalid email or password. Admin not found.")
		}
		s.reporter.LogError("login.find_admin", err)
		return LoginResult{}, apperr.Backend(err, "Unable to verify credentials. Please try again.")
	}

	ok, err := security.VerifyPassword(input.Password, admin.PasswordHash)
	if err != nil {
		s.reporter.LogError("login.verify_password", err)
		return LoginResult{}, apperr.Backend(err, "Unable to verify credentials. Please try again.")
	}
	if !ok {
		return LoginResult{}, apperr.Unauthorized("Invalid email or password")
	}

	token, err := s.tokens.Issue(security.SessionIdentity{
		AdminID:   admin.ID,
		Email:     admin.Email,
		FirstName: admin.FirstName,
		LastName:  admin.LastName,
	})
	if err != nil {
		s.reporter.LogError("login.issue_token", err)
		return LoginResult{}, apperr.Backend(err, "Unable to verify credentials. Please try again.")
	}

	s.log.Info().Str("admin_id", admin.ID).Msg("admin logged in")
	return LoginResult{Token: token, Admin: admin.Profile()}, nil
}

// CheckSession reports whether token is a valid, unexpired session. It never fails.
func (s *AuthService) CheckSession(token string) bool {
	_, err := s.tokens.Verify(token)
	return err == nil
}

// VerifySession checks the token alone. API routes use it; they do not consult the store.
func (s *AuthService) VerifySession(token string) (security.SessionClaims, error) {
	return s.tokens.Verify(token)
}

// ResolveSession verifies token and then confirms the principal still exists with the
// same email. Returns security.ErrInvalidSession or ErrNoAccess.
func (s *AuthService) ResolveSession(ctx context.Context, token string) (security.SessionClaims, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return security.SessionClaims{}, err
	}

	ok, err := s.admins.MatchesIdentity(ctx, claims.AdminID, claims.Email)
	if err != nil {
		s.reporter.LogError("session.match_identity", err)
		return security.SessionClaims{}, fmt.Errorf("%w: %v", ErrNoAccess, err)
	}
	if !ok {
		return security.SessionClaims{}, ErrNoAccess
	}
	return claims, nil
}

type ChangePasswordInput struct {
	OldPassword     string
	NewPassword     string
	ConfirmPassword string
}

// ChangePassword rotates the stored hash. Sessions issued earlier stay valid until
// they expire.
func (s *AuthService) ChangePassword(ctx context.Context, adminID string, input ChangePasswordInput) error {
	if input.OldPassword == "" || input.NewPassword == "" || input.ConfirmPassword == "" {
		return apperr.Validation("All password fields are required.")
	}
	if len(input.NewPassword) < MinPasswordLen {
		return apperr.ValidationField("newPassword", fmt.Sprintf("New password must be at least %d characters long.", MinPasswordLen))
	}
	if input.NewPassword != input.ConfirmPassword {
		return apperr.ValidationField("confirmPassword", "New password and confirmation do not match.")
	}
	if input.OldPassword == input.NewPassword {
		return apperr.ValidationField("newPassword", "New password must be different from the current password.")
	}

	admin, err := s.admins.GetByID(ctx, adminID)
	if err != nil {
		s.reporter.LogError("password_change.get_admin", err)
		return apperr.Backend(err, "Unable to verify your account. Please try again.")
	}

	ok, err := security.VerifyPassword(input.OldPassword, admin.PasswordHash)
	if err != nil {
		s.reporter.LogError("password_change.verify", err)
		return apperr.Backend(err, "Unable to verify your account. Please try again.")
	}
	if !ok {
		return apperr.Unauthorized("Current password is incorrect.")
	}

	hash, err := s.hash(input.NewPassword)
	if err != nil {
		s.reporter.LogError("password_change.hash", err)
		return apperr.Backend(err, "Unable to update password. Please try again.")
	}

	if err := s.admins.UpdatePassword(ctx, adminID, hash); err != nil {
		s.reporter.LogError("password_change.update", err)
		return apperr.Backend(err, "Unable to update password. Please try again.")
	}

	s.log.Info().Str("admin_id", adminID).Msg("admin password changed")
	return nil
}

type ProfileInput struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
}

func (s *AuthService) UpdateProfile(ctx context.Context, sessionAdminID string, input ProfileInput) (models.AdminProfile, error) {
	if input.ID != sessionAdminID {
		return models.AdminProfile{}, apperr.Forbidden("You can only update your own profile.")
	}

	first := strings.TrimSpace(input.FirstName)
	last := strings.TrimSpace(input.LastName)
	if first == "" || last == "" || strings.TrimSpace(input.Email) == "" {
		return models.AdminProfile{}, apperr.Validation("First name, last name, and email are required.")
	}
	email, err := ValidateEmail(input.Email)
	if err != nil {
		return models.AdminProfile{}, err
	}

	admin, err := s.admins.UpdateProfile(ctx, sessionAdminID, repository.ProfileUpdate{
		FirstName: first,
		LastName:  last,
		Email:     email,
	})
	if err != nil {
		s.reporter.LogError("profile_update.update", err)
		return models.AdminProfile{}, apperr.Backend(err, "")
	}

	return admin.Profile(), nil
}
