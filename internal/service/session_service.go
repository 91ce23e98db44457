package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"machikado-auth/internal/domain"
	"machikado-auth/internal/repository"
)

// SessionService emite y valida los tokens de sesión firmados. Los claims
// viajan completos en el token: las requests posteriores no consultan la base.
type SessionService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	store      RefreshTokenStore
	users      repository.UserRepository
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Claims son los hechos mínimos que el resto de la aplicación lee del token.
type Claims struct {
	UserID      string `json:"uid"`
	Provider    string `json:"provider"`
	IsNewUser   bool   `json:"is_new_user"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role,omitempty"`
	TokenType   string `json:"typ"`
	jwt.RegisteredClaims
}

var (
	ErrSessionInvalid = errors.New("session token invalid")
	ErrSessionExpired = errors.New("session token expired")
)

func NewSessionService(secret string, accessTTL, refreshTTL time.Duration, store RefreshTokenStore, users repository.UserRepository) *SessionService {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	if store == nil {
		store = NewMemoryRefreshTokenStore()
	}
	return &SessionService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		issuer:     "machikado-auth",
		store:      store,
		users:      users,
	}
}

// IssuePair acuña el par access/refresh con los claims enriquecidos del login.
func (s *SessionService) IssuePair(user domain.User, isNewUser bool) (TokenPair, error) {
	if len(s.secret) == 0 {
		return TokenPair{}, ErrSessionInvalid
	}
	now := time.Now().UTC()
	access, err := s.signToken(user, isNewUser, now, s.accessTTL, "access", "")
	if err != nil {
		return TokenPair{}, err
	}
	jti := uuid.NewString()
	refresh, err := s.signToken(user, isNewUser, now, s.refreshTTL, "refresh", jti)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.Store(jti, user.ID, s.refreshTTL); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

// RefreshPair rota el refresh token y reconstruye los claims contra el estado
// actual del usuario. Usuario borrado o suspendido corta la sesión con
// ErrStaleSession; el flag de usuario nuevo se recalcula, de modo que
// completar el perfil lo limpia en el siguiente ciclo de refresh.
func (s *SessionService) RefreshPair(ctx context.Context, refreshToken string) (TokenPair, error) {
	if len(s.secret) == 0 {
		return TokenPair{}, ErrSessionInvalid
	}
	claims, err := s.parseToken(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	if claims.TokenType != "refresh" || !s.isValidClaims(claims) || claims.ID == "" {
		return TokenPair{}, ErrSessionInvalid
	}
	ok, err := s.store.Exists(claims.ID)
	if err != nil || !ok {
		return TokenPair{}, ErrSessionInvalid
	}
	if err := s.store.Revoke(claims.ID); err != nil {
		return TokenPair{}, ErrSessionInvalid
	}

	if s.users == nil {
		return TokenPair{}, ErrSessionInvalid
	}
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil || !user.IsActive {
		return TokenPair{}, ErrStaleSession
	}

	isNewUser := claims.IsNewUser && !user.ProfileComplete()
	return s.IssuePair(user, isNewUser)
}

// RevokeRefresh invalida un refresh token en logout.
func (s *SessionService) RevokeRefresh(refreshToken string) error {
	if len(s.secret) == 0 {
		return ErrSessionInvalid
	}
	claims, err := s.parseToken(refreshToken)
	if err != nil {
		return err
	}
	if claims.TokenType != "refresh" || !s.isValidClaims(claims) || claims.ID == "" {
		return ErrSessionInvalid
	}
	return s.store.Revoke(claims.ID)
}

// ParseAccessToken valida un access token y devuelve sus claims tal cual se
// acuñaron, sin releer el store.
func (s *SessionService) ParseAccessToken(accessToken string) (Claims, error) {
	if len(s.secret) == 0 {
		return Claims{}, ErrSessionInvalid
	}
	claims, err := s.parseToken(accessToken)
	if err != nil {
		return Claims{}, err
	}
	if claims.TokenType != "access" || !s.isValidClaims(claims) {
		return Claims{}, ErrSessionInvalid
	}
	return claims, nil
}

func (s *SessionService) signToken(user domain.User, isNewUser bool, now time.Time, ttl time.Duration, tokenType, jti string) (string, error) {
	claims := Claims{
		UserID:      user.ID,
		Provider:    user.Provider,
		IsNewUser:   isNewUser,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        user.Role,
		TokenType:   tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *SessionService) parseToken(tokenString string) (Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return Claims{}, ErrSessionInvalid
	}
	var claims Claims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrSessionExpired
		}
		return Claims{}, ErrSessionInvalid
	}
	return claims, nil
}

func (s *SessionService) isValidClaims(claims Claims) bool {
	if strings.TrimSpace(claims.UserID) == "" {
		return false
	}
	if claims.Subject != claims.UserID {
		return false
	}
	return strings.TrimSpace(claims.Issuer) == s.issuer
}
