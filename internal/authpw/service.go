// Package authpw provides email/password authentication against the profile
// store.
package authpw

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tribunalsync/client/internal/identity"
	"tribunalsync/client/internal/store"
	"tribunalsync/client/internal/util"
)

var (
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrMissingFields      = errors.New("email, password, and display name are required")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
)

// ProfileStore defines the storage interface for auth.
type ProfileStore interface {
	GetProfileByEmail(ctx context.Context, email string) (store.Profile, error)
	InsertProfile(ctx context.Context, p store.Profile) error
	UpdateProfilePassword(ctx context.Context, id, passwordHash string) error
	CreatePasswordReset(ctx context.Context, profileID, token string, expiresAt time.Time) error
	GetPasswordReset(ctx context.Context, token string) (string, error)
	MarkPasswordResetUsed(ctx context.Context, token string) error
}

type Service struct {
	store  ProfileStore
	policy identity.AdminPolicy
}

func NewService(profileStore ProfileStore, policy identity.AdminPolicy) *Service {
	return &Service{store: profileStore, policy: policy}
}

type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
}

// SignUp registers a new principal. The profile row doubles as the
// credential record; approval defaults to false unless the email is the
// administrator principal.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.Profile, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" || req.DisplayName == "" {
		return store.Profile{}, ErrMissingFields
	}
	if len(req.Password) < 8 {
		return store.Profile{}, ErrWeakPassword
	}

	if _, err := s.store.GetProfileByEmail(ctx, email); err == nil {
		return store.Profile{}, ErrDuplicateEmail
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.Profile{}, fmt.Errorf("hash password: %w", err)
	}

	profile := store.Profile{
		ID:           util.NewID("usr"),
		FullName:     req.DisplayName,
		Email:        email,
		Role:         "secretario",
		IsApproved:   s.policy.IsAdmin(email),
		PasswordHash: string(hash),
	}
	if err := s.store.InsertProfile(ctx, profile); err != nil {
		if store.IsUniqueViolation(err) {
			return store.Profile{}, ErrDuplicateEmail
		}
		return store.Profile{}, fmt.Errorf("create profile: %w", err)
	}
	return profile, nil
}

// SignIn authenticates a principal. Failures are indistinguishable between
// unknown email and wrong password.
func (s *Service) SignIn(ctx context.Context, email, password string) (store.Profile, error) {
	if email == "" || password == "" {
		return store.Profile{}, ErrInvalidCredentials
	}
	profile, err := s.store.GetProfileByEmail(ctx, email)
	if err != nil {
		return store.Profile{}, ErrInvalidCredentials
	}
	if profile.PasswordHash == "" {
		// Pre-provisioned row that was never claimed through sign-up.
		return store.Profile{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(password)); err != nil {
		return store.Profile{}, ErrInvalidCredentials
	}
	return profile, nil
}

// RequestPasswordReset creates a reset token. Returns an empty token when
// the email is unknown so callers cannot probe for registered addresses.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	profile, err := s.store.GetProfileByEmail(ctx, email)
	if err != nil {
		return "", nil
	}

	token, err := generateToken()
	if err != nil {
		return "", err
	}
	expiresAt := time.Now().Add(1 * time.Hour)
	if err := s.store.CreatePasswordReset(ctx, profile.ID, token, expiresAt); err != nil {
		return "", err
	}
	return token, nil
}

// ResetPassword updates the credential through a reset token and forces a
// fresh sign-in afterwards (the caller tears down any live session).
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" || newPassword == "" {
		return ErrInvalidResetToken
	}
	if len(newPassword) < 8 {
		return ErrWeakPassword
	}

	profileID, err := s.store.GetPasswordReset(ctx, token)
	if err != nil {
		return ErrInvalidResetToken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdateProfilePassword(ctx, profileID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if err := s.store.MarkPasswordResetUsed(ctx, token); err != nil {
		// The password was already reset; a reusable token is the lesser
		// problem and shows up in logs.
		return nil
	}
	return nil
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
