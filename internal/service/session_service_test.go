package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"machikado-auth/internal/domain"
)

func newSessionFixture(t *testing.T) (*SessionService, *mockUserRepo, domain.User) {
	t.Helper()
	users := newMockUserRepo()
	user := domain.User{
		ID:          "u-1",
		DisplayName: "Hana",
		Email:       "hana@example.com",
		Provider:    domain.ProviderOTP,
		IsActive:    true,
		Role:        domain.RoleUser,
	}
	if err := users.Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	svc := NewSessionService("test-secret", time.Minute, time.Hour, NewMemoryRefreshTokenStore(), users)
	return svc, users, user
}

func TestSessionServiceIssuePair_AccessClaims(t *testing.T) {
	svc, _, user := newSessionFixture(t)

	pair, err := svc.IssuePair(user, true)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if pair.ExpiresIn != 60 {
		t.Fatalf("expected expires_in 60, got %d", pair.ExpiresIn)
	}

	claims, err := svc.ParseAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if claims.UserID != user.ID || claims.Email != user.Email || claims.DisplayName != user.DisplayName {
		t.Fatalf("claims do not match user: %+v", claims)
	}
	if claims.Provider != domain.ProviderOTP || claims.Role != domain.RoleUser {
		t.Fatalf("unexpected provider/role claims: %+v", claims)
	}
	if !claims.IsNewUser {
		t.Fatal("expected is_new_user claim to survive in the token")
	}
}

func TestSessionServiceParseAccessToken_RejectsRefreshToken(t *testing.T) {
	svc, _, user := newSessionFixture(t)

	pair, err := svc.IssuePair(user, false)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if _, err := svc.ParseAccessToken(pair.RefreshToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid for refresh token, got %v", err)
	}
}

func TestSessionServiceParseAccessToken_WrongSecret(t *testing.T) {
	svc, users, user := newSessionFixture(t)
	other := NewSessionService("other-secret", time.Minute, time.Hour, NewMemoryRefreshTokenStore(), users)

	pair, err := svc.IssuePair(user, false)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if _, err := other.ParseAccessToken(pair.AccessToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}
}

func TestSessionServiceRefreshPair_RotatesToken(t *testing.T) {
	svc, _, user := newSessionFixture(t)

	pair, err := svc.IssuePair(user, false)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	rotated, err := svc.RefreshPair(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshPair: %v", err)
	}
	if rotated.RefreshToken == pair.RefreshToken {
		t.Fatal("expected a new refresh token after rotation")
	}

	// El token viejo quedó revocado: un segundo uso no emite nada.
	if _, err := svc.RefreshPair(context.Background(), pair.RefreshToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid reusing rotated token, got %v", err)
	}
}

func TestSessionServiceRefreshPair_ClearsNewUserFlagAfterProfile(t *testing.T) {
	svc, users, _ := newSessionFixture(t)

	fresh := domain.User{
		ID:       "u-2",
		Email:    "new@example.com",
		Provider: domain.ProviderOTP,
		IsActive: true,
		Role:     domain.RoleUser,
	}
	if err := users.Create(context.Background(), fresh); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	pair, err := svc.IssuePair(fresh, true)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	// Con el perfil todavía vacío el flag se conserva al refrescar.
	rotated, err := svc.RefreshPair(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshPair: %v", err)
	}
	claims, err := svc.ParseAccessToken(rotated.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if !claims.IsNewUser {
		t.Fatal("expected is_new_user to persist while profile is incomplete")
	}

	// Completar el perfil lo limpia en el siguiente ciclo sin reemitir a mano.
	if err := users.UpdateProfile(context.Background(), fresh.ID, "Kenji", "", ""); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	rotated2, err := svc.RefreshPair(context.Background(), rotated.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshPair after profile: %v", err)
	}
	claims2, err := svc.ParseAccessToken(rotated2.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if claims2.IsNewUser {
		t.Fatal("expected is_new_user cleared after profile completion")
	}
	if claims2.DisplayName != "Kenji" {
		t.Fatalf("expected refreshed claims to carry the new display name, got %q", claims2.DisplayName)
	}
}

func TestSessionServiceRefreshPair_StaleUser(t *testing.T) {
	svc, users, user := newSessionFixture(t)

	pair, err := svc.IssuePair(user, false)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	stored := users.usersByID[user.ID]
	stored.IsActive = false
	users.usersByID[user.ID] = stored

	if _, err := svc.RefreshPair(context.Background(), pair.RefreshToken); !errors.Is(err, ErrStaleSession) {
		t.Fatalf("expected ErrStaleSession for suspended user, got %v", err)
	}
}

func TestSessionServiceRefreshPair_DeletedUser(t *testing.T) {
	svc, users, user := newSessionFixture(t)

	pair, err := svc.IssuePair(user, false)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	delete(users.usersByID, user.ID)

	if _, err := svc.RefreshPair(context.Background(), pair.RefreshToken); !errors.Is(err, ErrStaleSession) {
		t.Fatalf("expected ErrStaleSession for deleted user, got %v", err)
	}
}

func TestSessionServiceRevokeRefresh(t *testing.T) {
	svc, _, user := newSessionFixture(t)

	pair, err := svc.IssuePair(user, false)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if err := svc.RevokeRefresh(pair.RefreshToken); err != nil {
		t.Fatalf("RevokeRefresh: %v", err)
	}
	if _, err := svc.RefreshPair(context.Background(), pair.RefreshToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid after revoke, got %v", err)
	}
}

func TestSessionServiceParseAccessToken_Garbage(t *testing.T) {
	svc, _, _ := newSessionFixture(t)

	for _, tok := range []string{"", "   ", "not.a.jwt", strings.Repeat("x", 64)} {
		if _, err := svc.ParseAccessToken(tok); !errors.Is(err, ErrSessionInvalid) {
			t.Fatalf("expected ErrSessionInvalid for %q, got %v", tok, err)
		}
	}
}
