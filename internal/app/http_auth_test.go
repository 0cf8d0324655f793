package app

import (
	"net/http"
	"testing"

	"corkboard/api/internal/authpw"
)

func TestDevNameLoginIssuesSession(t *testing.T) {
	ms := newMemStore()
	handler := NewHTTPServer(newProtocolService(ms), "*").Handler()

	rr := doJSON(t, handler, http.MethodPost, "/api/session/login", "", map[string]any{"name": "Avery"})
	if rr.Code != http.StatusOK {
		t.Fatalf("login: %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodePayload(t, rr)
	token, _ := payload["token"].(string)
	if token == "" || payload["refreshToken"] == "" {
		t.Fatalf("session payload incomplete: %v", payload)
	}

	rr = doJSON(t, handler, http.MethodGet, "/api/session", token, nil)
	session := decodePayload(t, rr)
	if session["authenticated"] != true || session["userName"] != "Avery" {
		t.Fatalf("session = %v", session)
	}
}

func TestSessionWithoutTokenIsAnonymous(t *testing.T) {
	handler := NewHTTPServer(newProtocolService(newMemStore()), "*").Handler()

	rr := doJSON(t, handler, http.MethodGet, "/api/session", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if auth := decodePayload(t, rr)["authenticated"]; auth != false {
		t.Fatalf("authenticated = %v, want false", auth)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	ms := newMemStore()
	handler := NewHTTPServer(newProtocolService(ms), "*").Handler()

	rr := doJSON(t, handler, http.MethodPost, "/api/session/login", "", map[string]any{"name": "Avery"})
	refresh := decodePayload(t, rr)["refreshToken"].(string)

	rr = doJSON(t, handler, http.MethodPost, "/api/session/refresh", "", map[string]any{"refreshToken": refresh})
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh: %d body=%s", rr.Code, rr.Body.String())
	}
	next := decodePayload(t, rr)["refreshToken"].(string)
	if next == refresh {
		t.Fatal("refresh token was not rotated")
	}

	// the old token is single use
	rr = doJSON(t, handler, http.MethodPost, "/api/session/refresh", "", map[string]any{"refreshToken": refresh})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh token: %d, want 401", rr.Code)
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	ms := newMemStore()
	handler := NewHTTPServer(newProtocolService(ms), "*").Handler()

	rr := doJSON(t, handler, http.MethodPost, "/api/session/login", "", map[string]any{"name": "Avery"})
	payload := decodePayload(t, rr)
	token := payload["token"].(string)
	refresh := payload["refreshToken"].(string)

	rr = doJSON(t, handler, http.MethodPost, "/api/session/logout", token, map[string]any{"refreshToken": refresh})
	if rr.Code != http.StatusOK {
		t.Fatalf("logout: %d", rr.Code)
	}

	rr = doJSON(t, handler, http.MethodGet, "/api/boards", token, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token still accepted: %d", rr.Code)
	}
}

func TestSignUpVerifySignInFlow(t *testing.T) {
	ms := newMemStore()
	svc := newProtocolService(ms)
	// no SMTP configured, so the endpoints fall back to dev tokens
	svc.SetAuthPasswordService(authpw.NewService(ms))
	handler := NewHTTPServer(svc, "*").Handler()

	rr := doJSON(t, handler, http.MethodPost, "/api/auth/signup", "", map[string]any{
		"email":       "avery@example.com",
		"password":    "hunter2hunter2",
		"displayName": "Avery",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup: %d body=%s", rr.Code, rr.Body.String())
	}
	signup := decodePayload(t, rr)
	devToken, _ := signup["devVerificationToken"].(string)
	if devToken == "" {
		t.Fatal("expected dev verification token without SMTP")
	}

	// signing in before verification is rejected
	rr = doJSON(t, handler, http.MethodPost, "/api/auth/signin", "", map[string]any{
		"email":    "avery@example.com",
		"password": "hunter2hunter2",
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("unverified signin: %d, want 403", rr.Code)
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/auth/verify-email", "", map[string]any{"token": devToken})
	if rr.Code != http.StatusOK {
		t.Fatalf("verify: %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/auth/signin", "", map[string]any{
		"email":    "avery@example.com",
		"password": "hunter2hunter2",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("signin: %d body=%s", rr.Code, rr.Body.String())
	}
	if token, _ := decodePayload(t, rr)["token"].(string); token == "" {
		t.Fatal("signin returned no token")
	}
}

func TestDuplicateSignUpIsConflict(t *testing.T) {
	ms := newMemStore()
	svc := newProtocolService(ms)
	svc.SetAuthPasswordService(authpw.NewService(ms))
	handler := NewHTTPServer(svc, "*").Handler()

	body := map[string]any{
		"email":       "avery@example.com",
		"password":    "hunter2hunter2",
		"displayName": "Avery",
	}
	if rr := doJSON(t, handler, http.MethodPost, "/api/auth/signup", "", body); rr.Code != http.StatusCreated {
		t.Fatalf("first signup: %d", rr.Code)
	}
	rr := doJSON(t, handler, http.MethodPost, "/api/auth/signup", "", body)
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate signup: %d, want 409", rr.Code)
	}
	if code := decodePayload(t, rr)["code"]; code != "EMAIL_EXISTS" {
		t.Fatalf("code = %v", code)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	ms := newMemStore()
	svc := newProtocolService(ms)
	svc.SetAuthPasswordService(authpw.NewService(ms))
	handler := NewHTTPServer(svc, "*").Handler()

	doJSON(t, handler, http.MethodPost, "/api/auth/signup", "", map[string]any{
		"email":       "avery@example.com",
		"password":    "hunter2hunter2",
		"displayName": "Avery",
	})

	rr := doJSON(t, handler, http.MethodPost, "/api/auth/reset-password/request", "", map[string]any{
		"email": "avery@example.com",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("reset request: %d", rr.Code)
	}
	resetToken, _ := decodePayload(t, rr)["devResetToken"].(string)
	if resetToken == "" {
		t.Fatal("expected dev reset token without SMTP")
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/auth/reset-password", "", map[string]any{
		"token":       resetToken,
		"newPassword": "correcthorsebattery",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("reset: %d body=%s", rr.Code, rr.Body.String())
	}

	// unknown addresses get the same response, minus the dev token
	rr = doJSON(t, handler, http.MethodPost, "/api/auth/reset-password/request", "", map[string]any{
		"email": "nobody@example.com",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("reset request for unknown email: %d, want 200", rr.Code)
	}
	if _, ok := decodePayload(t, rr)["devResetToken"]; ok {
		t.Fatal("unknown email leaked a reset token")
	}
}
