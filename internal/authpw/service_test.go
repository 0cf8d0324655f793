package authpw

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"corkboard/api/internal/store"
)

type resetEntry struct {
	userID    string
	expiresAt time.Time
	used      bool
}

// memUserStore keeps users and tokens in maps, mirroring what the SQL
// store does with its tables.
type memUserStore struct {
	users   map[string]store.User
	byEmail map[string]string
	byToken map[string]string
	resets  map[string]resetEntry
}

func newMemUserStore() *memUserStore {
	return &memUserStore{
		users:   map[string]store.User{},
		byEmail: map[string]string{},
		byToken: map[string]string{},
		resets:  map[string]resetEntry{},
	}
}

func (m *memUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if id, ok := m.byEmail[email]; ok {
		return m.users[id], nil
	}
	return store.User{}, errors.New("no such user")
}

func (m *memUserStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return store.User{}, errors.New("no such user")
}

func (m *memUserStore) CreateUser(ctx context.Context, u store.User) error {
	m.users[u.ID] = u
	m.byEmail[u.Email] = u.ID
	return nil
}

func (m *memUserStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	u, ok := m.users[userID]
	if !ok {
		return errors.New("no such user")
	}
	u.VerificationToken = token
	u.VerificationExpiresAt = &expiresAt
	m.users[userID] = u
	m.byToken[token] = userID
	return nil
}

func (m *memUserStore) VerifyUserEmail(ctx context.Context, token string) error {
	id, ok := m.byToken[token]
	if !ok {
		return errors.New("bad token")
	}
	u := m.users[id]
	u.IsEmailVerified = true
	u.VerificationToken = ""
	m.users[id] = u
	delete(m.byToken, token)
	return nil
}

func (m *memUserStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	u, ok := m.users[userID]
	if !ok {
		return errors.New("no such user")
	}
	u.PasswordHash = passwordHash
	m.users[userID] = u
	return nil
}

func (m *memUserStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	m.resets[token] = resetEntry{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *memUserStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	r, ok := m.resets[token]
	if !ok || r.used || time.Now().After(r.expiresAt) {
		return "", errors.New("bad reset token")
	}
	return r.userID, nil
}

func (m *memUserStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	if r, ok := m.resets[token]; ok {
		r.used = true
		m.resets[token] = r
	}
	return nil
}

func newTestAuth() (*Service, *memUserStore) {
	ms := newMemUserStore()
	return NewService(ms), ms
}

// signUpVerified registers mina@corkboard.dev and completes verification.
func signUpVerified(t *testing.T, svc *Service) *SignUpResponse {
	t.Helper()
	resp, err := svc.SignUp(context.Background(), SignUpRequest{
		Email:       "mina@corkboard.dev",
		Password:    "pinboard-rules",
		DisplayName: "Mina",
	})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if err := svc.VerifyEmail(context.Background(), resp.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	return resp
}

func TestSignUpCreatesUnverifiedEditor(t *testing.T) {
	svc, ms := newTestAuth()

	resp, err := svc.SignUp(context.Background(), SignUpRequest{
		Email:       "mina@corkboard.dev",
		Password:    "pinboard-rules",
		DisplayName: "Mina",
	})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if !strings.HasPrefix(resp.UserID, "usr_") {
		t.Errorf("UserID = %q, want usr_ prefix", resp.UserID)
	}
	if resp.VerificationToken == "" || !resp.RequiresEmailVerify {
		t.Errorf("response = %+v, want verification required with a token", resp)
	}

	u := ms.users[resp.UserID]
	if u.Role != "editor" {
		t.Errorf("role = %q, want editor", u.Role)
	}
	if u.IsEmailVerified {
		t.Error("new account should start unverified")
	}
	if u.PasswordHash == "" || u.PasswordHash == "pinboard-rules" {
		t.Errorf("password stored as %q, want a bcrypt hash", u.PasswordHash)
	}
}

func TestSignUpValidation(t *testing.T) {
	svc, _ := newTestAuth()
	ctx := context.Background()

	cases := []struct {
		name string
		req  SignUpRequest
	}{
		{"empty request", SignUpRequest{}},
		{"no password", SignUpRequest{Email: "a@corkboard.dev", DisplayName: "A"}},
		{"short password", SignUpRequest{Email: "a@corkboard.dev", Password: "seven77", DisplayName: "A"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.SignUp(ctx, tc.req); err == nil {
				t.Errorf("SignUp(%+v) succeeded, want error", tc.req)
			}
		})
	}
}

func TestSignUpRejectsTakenEmail(t *testing.T) {
	svc, _ := newTestAuth()
	signUpVerified(t, svc)

	_, err := svc.SignUp(context.Background(), SignUpRequest{
		Email:       "mina@corkboard.dev",
		Password:    "another-pass",
		DisplayName: "Second Mina",
	})
	if err == nil {
		t.Fatal("expected error for already registered email")
	}
}

func TestSignInVerifiedUser(t *testing.T) {
	svc, _ := newTestAuth()
	signUpVerified(t, svc)

	resp, err := svc.SignIn(context.Background(), SignInRequest{
		Email:    "mina@corkboard.dev",
		Password: "pinboard-rules",
	})
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if resp.RequiresVerify {
		t.Error("verified user flagged as requiring verification")
	}
	if resp.User.DisplayName != "Mina" {
		t.Errorf("display name = %q, want Mina", resp.User.DisplayName)
	}
}

func TestSignInFailures(t *testing.T) {
	svc, _ := newTestAuth()
	signUpVerified(t, svc)
	ctx := context.Background()

	if _, err := svc.SignIn(ctx, SignInRequest{Email: "mina@corkboard.dev", Password: "not-the-password"}); err == nil {
		t.Error("wrong password accepted")
	}
	if _, err := svc.SignIn(ctx, SignInRequest{Email: "ghost@corkboard.dev", Password: "whatever9"}); err == nil {
		t.Error("unknown email accepted")
	}
	if _, err := svc.SignIn(ctx, SignInRequest{}); err == nil {
		t.Error("empty credentials accepted")
	}
}

func TestSignInUnverifiedDefersToVerification(t *testing.T) {
	svc, _ := newTestAuth()
	if _, err := svc.SignUp(context.Background(), SignUpRequest{
		Email:       "theo@corkboard.dev",
		Password:    "pending-pins",
		DisplayName: "Theo",
	}); err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	resp, err := svc.SignIn(context.Background(), SignInRequest{
		Email:    "theo@corkboard.dev",
		Password: "pending-pins",
	})
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if !resp.RequiresVerify {
		t.Error("unverified account signed in without the verify flag")
	}
}

func TestVerifyEmail(t *testing.T) {
	svc, ms := newTestAuth()
	resp, err := svc.SignUp(context.Background(), SignUpRequest{
		Email:       "mina@corkboard.dev",
		Password:    "pinboard-rules",
		DisplayName: "Mina",
	})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	if err := svc.VerifyEmail(context.Background(), resp.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	if !ms.users[resp.UserID].IsEmailVerified {
		t.Error("account not marked verified")
	}

	if err := svc.VerifyEmail(context.Background(), "made-up-token"); err == nil {
		t.Error("bogus token accepted")
	}
	if err := svc.VerifyEmail(context.Background(), ""); err == nil {
		t.Error("empty token accepted")
	}
}

func TestPasswordResetFlow(t *testing.T) {
	svc, _ := newTestAuth()
	signUpVerified(t, svc)
	ctx := context.Background()

	token, err := svc.RequestPasswordReset(ctx, "mina@corkboard.dev")
	if err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	if token == "" {
		t.Fatal("no reset token issued")
	}

	if err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "fresh-pins-01"}); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}

	if _, err := svc.SignIn(ctx, SignInRequest{Email: "mina@corkboard.dev", Password: "pinboard-rules"}); err == nil {
		t.Error("old password still accepted after reset")
	}
	if _, err := svc.SignIn(ctx, SignInRequest{Email: "mina@corkboard.dev", Password: "fresh-pins-01"}); err != nil {
		t.Errorf("new password rejected: %v", err)
	}

	// The token is consumed by a successful reset.
	if err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "yet-another-1"}); err == nil {
		t.Error("reset token usable twice")
	}
}

func TestPasswordResetDoesNotRevealAccounts(t *testing.T) {
	svc, _ := newTestAuth()

	token, err := svc.RequestPasswordReset(context.Background(), "ghost@corkboard.dev")
	if err != nil {
		t.Fatalf("RequestPasswordReset for unknown email: %v", err)
	}
	if token != "" {
		t.Errorf("token = %q, want empty for unknown email", token)
	}
}

func TestResetPasswordValidation(t *testing.T) {
	svc, _ := newTestAuth()
	ctx := context.Background()

	if err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: "tok", NewPassword: "short"}); err == nil {
		t.Error("short replacement password accepted")
	}
	if err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: "never-issued", NewPassword: "long-enough-1"}); err == nil {
		t.Error("unknown reset token accepted")
	}
	if err := svc.ResetPassword(ctx, ResetPasswordRequest{}); err == nil {
		t.Error("empty reset request accepted")
	}
}
