package authpw

import (
	"context"
	"errors"
	"testing"
	"time"

	"tribunalsync/client/internal/identity"
	"tribunalsync/client/internal/store"
)

// mockProfileStore is an in-memory ProfileStore for testing
type mockProfileStore struct {
	profiles map[string]store.Profile // keyed by email
	resets   map[string]string        // token -> profile id
}

func newMockProfileStore() *mockProfileStore {
	return &mockProfileStore{
		profiles: make(map[string]store.Profile),
		resets:   make(map[string]string),
	}
}

func (m *mockProfileStore) GetProfileByEmail(ctx context.Context, email string) (store.Profile, error) {
	if p, ok := m.profiles[email]; ok {
		return p, nil
	}
	return store.Profile{}, errors.New("profile not found")
}

func (m *mockProfileStore) InsertProfile(ctx context.Context, p store.Profile) error {
	m.profiles[p.Email] = p
	return nil
}

func (m *mockProfileStore) UpdateProfilePassword(ctx context.Context, id, passwordHash string) error {
	for email, p := range m.profiles {
		if p.ID == id {
			p.PasswordHash = passwordHash
			m.profiles[email] = p
			return nil
		}
	}
	return errors.New("profile not found")
}

func (m *mockProfileStore) CreatePasswordReset(ctx context.Context, profileID, token string, expiresAt time.Time) error {
	m.resets[token] = profileID
	return nil
}

func (m *mockProfileStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	if id, ok := m.resets[token]; ok {
		return id, nil
	}
	return "", errors.New("reset not found")
}

func (m *mockProfileStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	delete(m.resets, token)
	return nil
}

func newTestService() (*Service, *mockProfileStore) {
	m := newMockProfileStore()
	return NewService(m, identity.NewAdminPolicy("admin@tribunal.dev")), m
}

func TestSignUpCreatesUnapprovedProfile(t *testing.T) {
	svc, _ := newTestService()

	profile, err := svc.SignUp(context.Background(), SignUpRequest{
		Email:       "A@X.com",
		Password:    "password-1",
		DisplayName: "Ana",
	})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if profile.Email != "a@x.com" {
		t.Errorf("email not normalized: %q", profile.Email)
	}
	if profile.IsApproved {
		t.Error("new profile must start unapproved")
	}
	if profile.Role != "secretario" {
		t.Errorf("unexpected default role %q", profile.Role)
	}
}

func TestSignUpAdminIsAutoApproved(t *testing.T) {
	svc, _ := newTestService()

	profile, err := svc.SignUp(context.Background(), SignUpRequest{
		Email:       "admin@tribunal.dev",
		Password:    "password-1",
		DisplayName: "Admin",
	})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if !profile.IsApproved {
		t.Error("administrator sign-up must be approved immediately")
	}
}

func TestSignUpValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "a@x.com", Password: "short", DisplayName: "Ana"}); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("weak password: got %v", err)
	}
	if _, err := svc.SignUp(ctx, SignUpRequest{Password: "password-1", DisplayName: "Ana"}); !errors.Is(err, ErrMissingFields) {
		t.Errorf("missing email: got %v", err)
	}

	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "a@x.com", Password: "password-1", DisplayName: "Ana"}); err != nil {
		t.Fatalf("first sign-up failed: %v", err)
	}
	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "a@x.com", Password: "password-2", DisplayName: "Ana"}); !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("duplicate sign-up: got %v", err)
	}
}

func TestSignInRoundTrip(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "a@x.com", Password: "password-1", DisplayName: "Ana"}); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	profile, err := svc.SignIn(ctx, "a@x.com", "password-1")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if profile.FullName != "Ana" {
		t.Errorf("unexpected profile %+v", profile)
	}

	if _, err := svc.SignIn(ctx, "a@x.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: got %v", err)
	}
	if _, err := svc.SignIn(ctx, "nobody@x.com", "password-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email: got %v", err)
	}
}

func TestSignInRejectsUnclaimedPreProvisionedRow(t *testing.T) {
	svc, m := newTestService()
	m.profiles["pre@x.com"] = store.Profile{ID: "pre_1", Email: "pre@x.com", IsApproved: true}

	if _, err := svc.SignIn(context.Background(), "pre@x.com", "anything"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected invalid credentials for credential-less row, got %v", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "a@x.com", Password: "password-1", DisplayName: "Ana"}); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	token, err := svc.RequestPasswordReset(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset() error = %v", err)
	}
	if token == "" {
		t.Fatal("expected a reset token for a known email")
	}

	if err := svc.ResetPassword(ctx, token, "password-2"); err != nil {
		t.Fatalf("ResetPassword() error = %v", err)
	}
	if _, err := svc.SignIn(ctx, "a@x.com", "password-2"); err != nil {
		t.Errorf("sign-in with new password failed: %v", err)
	}
	if _, err := svc.SignIn(ctx, "a@x.com", "password-1"); err == nil {
		t.Error("old password still accepted after reset")
	}
}

func TestPasswordResetUnknownEmailRevealsNothing(t *testing.T) {
	svc, _ := newTestService()

	token, err := svc.RequestPasswordReset(context.Background(), "nobody@x.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset() error = %v", err)
	}
	if token != "" {
		t.Error("unknown email must not produce a token")
	}
}
