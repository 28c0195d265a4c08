package httpapi

import (
	"context"
	"testing"
	"time"

	"tokosera/backend/internal/domain"
	"tokosera/backend/internal/store/memory"
)

func seedUser(t *testing.T, repo *memory.Store, username, password, role string, active bool) {
	t.Helper()

	hash, err := hashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	_, err = repo.CreateUser(context.Background(), domain.UserAccount{
		Username:     username,
		PasswordHash: hash,
		FullName:     "Test User",
		Role:         role,
		Active:       active,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
}

func TestLoginIssuesParseableToken(t *testing.T) {
	repo := memory.New()
	seedUser(t, repo, "budi", "rahasia-123", domain.RoleManager, true)

	manager := NewAuthManager("test-secret-key", time.Hour, repo)
	resp, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "budi",
		Password: "rahasia-123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != domain.RoleManager {
		t.Fatalf("expected manager role, got %q", resp.Role)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "budi" || actor.Role != domain.RoleManager {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestLoginNormalizesUsername(t *testing.T) {
	repo := memory.New()
	seedUser(t, repo, "budi", "rahasia-123", domain.RoleCashier, true)

	manager := NewAuthManager("test-secret-key", time.Hour, repo)
	if _, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "  BUDI ",
		Password: "rahasia-123",
	}); err != nil {
		t.Fatalf("expected login with uppercase username to succeed, got %v", err)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	repo := memory.New()
	seedUser(t, repo, "budi", "rahasia-123", domain.RoleCashier, true)

	manager := NewAuthManager("test-secret-key", time.Hour, repo)
	if _, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "budi",
		Password: "salah",
	}); err == nil {
		t.Fatalf("expected wrong password to be rejected")
	}
}

func TestLoginRejectsInactiveUser(t *testing.T) {
	repo := memory.New()
	seedUser(t, repo, "budi", "rahasia-123", domain.RoleCashier, false)

	manager := NewAuthManager("test-secret-key", time.Hour, repo)
	if _, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "budi",
		Password: "rahasia-123",
	}); err == nil {
		t.Fatalf("expected inactive user to be rejected")
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	repo := memory.New()
	seedUser(t, repo, "budi", "rahasia-123", domain.RoleAdmin, true)

	issuer := NewAuthManager("secret-one", time.Hour, repo)
	resp, err := issuer.Login(context.Background(), domain.LoginRequest{
		Username: "budi",
		Password: "rahasia-123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	verifier := NewAuthManager("secret-two", time.Hour, repo)
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with a different secret to be rejected")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	manager := NewAuthManager("test-secret-key", time.Hour, memory.New())
	if _, err := manager.ParseToken("not.a.token"); err == nil {
		t.Fatalf("expected malformed token to be rejected")
	}
	if _, err := manager.ParseToken(""); err == nil {
		t.Fatalf("expected empty token to be rejected")
	}
}
