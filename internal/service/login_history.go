package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"machikado-auth/internal/domain"
	"machikado-auth/internal/repository"
)

// ClientInfo describe al cliente que intentó el login.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// LoginHistoryRecorder agrega registros de auditoría por intento de login.
// La auditoría no es autoritativa para el control de acceso: un fallo al
// escribir se loggea y se traga, nunca corta el sign-in.
type LoginHistoryRecorder struct {
	logger    *zap.Logger
	histories repository.LoginHistoryRepository
}

func NewLoginHistoryRecorder(logger *zap.Logger, histories repository.LoginHistoryRepository) *LoginHistoryRecorder {
	return &LoginHistoryRecorder{logger: logger, histories: histories}
}

// Record agrega un registro. En los logins exitosos genera un session id
// opaco nuevo; userID puede venir vacío en intentos fallidos sin usuario.
func (r *LoginHistoryRecorder) Record(ctx context.Context, userID, outcome string, info ClientInfo) domain.LoginHistory {
	entry := domain.LoginHistory{
		ID:        uuid.NewString(),
		UserID:    userID,
		IPAddress: info.IP,
		UserAgent: info.UserAgent,
		Outcome:   outcome,
		CreatedAt: time.Now().UTC(),
	}
	if outcome == domain.LoginOutcomeSuccess {
		entry.SessionID = uuid.NewString()
	}
	if r.histories == nil {
		return entry
	}
	if err := r.histories.Create(ctx, entry); err != nil {
		if r.logger != nil {
			r.logger.Warn("login history write failed",
				zap.Error(err),
				zap.String("user_id", userID),
				zap.String("outcome", outcome),
			)
		}
	}
	return entry
}
