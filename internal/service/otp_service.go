package service

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"machikado-auth/internal/domain"
	"machikado-auth/internal/email"
	"machikado-auth/internal/repository"
)

const (
	otpTTL        = 10 * time.Minute
	otpCodeLength = 6
)

// VerifiedLogin es el resultado tipado de una verificación de código:
// la identidad resuelta más el flag que dispara el gate de perfil.
type VerifiedLogin struct {
	User      domain.User
	IsNewUser bool
}

// OTPService emite y valida códigos de un solo uso ligados a un email.
type OTPService struct {
	logger      *zap.Logger
	otps        repository.OTPRepository
	users       repository.UserRepository
	emailSender email.Sender
	limiter     OTPRateLimiter
	pepper      []byte
}

func NewOTPService(logger *zap.Logger, otps repository.OTPRepository, users repository.UserRepository, emailSender email.Sender, limiter OTPRateLimiter, pepper string) *OTPService {
	if limiter == nil {
		limiter = NewOTPRateLimiter(otpTTL, 3)
	}
	return &OTPService{
		logger:      logger,
		otps:        otps,
		users:       users,
		emailSender: emailSender,
		limiter:     limiter,
		pepper:      []byte(pepper),
	}
}

// RequestCode genera un código nuevo, lo persiste y dispara el envío.
// Cada llamada agrega un registro; los códigos anteriores siguen vigentes
// hasta su expiración natural.
func (s *OTPService) RequestCode(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)
	if !isValidEmail(emailAddr) {
		return ErrInvalidEmail
	}

	if s.limiter != nil && !s.limiter.Allow(emailAddr) {
		return ErrRateLimited
	}

	code, err := generateCode()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	record := domain.OTP{
		ID:        uuid.NewString(),
		Email:     emailAddr,
		CodeHash:  s.hashCode(code),
		ExpiresAt: now.Add(otpTTL),
		CreatedAt: now,
	}
	if err := s.otps.Create(ctx, record); err != nil {
		return err
	}

	if s.emailSender == nil {
		return ErrDeliveryFailure
	}
	if err := s.emailSender.SendLoginCode(ctx, emailAddr, code, record.ExpiresAt); err != nil {
		// El registro queda vigente: si el código llegó por otro canal la
		// verificación sigue siendo posible dentro de la ventana.
		if s.logger != nil {
			s.logger.Warn("send login code failed", zap.Error(err), zap.String("email", emailAddr))
		}
		return ErrDeliveryFailure
	}
	return nil
}

// VerifyCode consume el código más reciente vigente para email+code y
// resuelve la identidad. El consumo es un único UPDATE condicional, de modo
// que dos verificaciones concurrentes no pueden usar el mismo código.
func (s *OTPService) VerifyCode(ctx context.Context, emailAddr, code string) (VerifiedLogin, error) {
	emailAddr = normalizeEmail(emailAddr)
	code = strings.TrimSpace(code)
	if !isValidEmail(emailAddr) {
		return VerifiedLogin{}, ErrInvalidEmail
	}
	if !isValidOTPCode(code) {
		return VerifiedLogin{}, ErrInvalidCode
	}

	_, err := s.otps.Consume(ctx, emailAddr, s.hashCode(code), time.Now().UTC())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// No se revela si el email existe.
			return VerifiedLogin{}, ErrInvalidOrExpiredCode
		}
		return VerifiedLogin{}, err
	}

	user, err := s.users.GetByOTPEmail(ctx, emailAddr)
	if err == nil {
		if !user.IsActive {
			return VerifiedLogin{}, ErrUserSuspended
		}
		return VerifiedLogin{User: user, IsNewUser: !user.ProfileComplete()}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return VerifiedLogin{}, err
	}

	now := time.Now().UTC()
	user = domain.User{
		ID:        uuid.NewString(),
		Email:     emailAddr,
		Provider:  domain.ProviderOTP,
		IsActive:  true,
		Role:      domain.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// Dos verificaciones concurrentes para un email nuevo: el perdedor
		// de la carrera relee el registro del ganador.
		if isUniqueViolation(err) {
			existing, lookupErr := s.users.GetByOTPEmail(ctx, emailAddr)
			if lookupErr != nil {
				return VerifiedLogin{}, lookupErr
			}
			return VerifiedLogin{User: existing, IsNewUser: !existing.ProfileComplete()}, nil
		}
		return VerifiedLogin{}, err
	}
	return VerifiedLogin{User: user, IsNewUser: true}, nil
}

// hashCode produce un hash determinístico con pepper para que el consumo
// pueda comparar por igualdad dentro del UPDATE.
func (s *OTPService) hashCode(code string) string {
	mac := hmac.New(sha256.New, s.pepper)
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isValidEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func isValidOTPCode(code string) bool {
	if len(code) != otpCodeLength {
		return false
	}
	for _, r := range code {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
