package domain

import "time"

// Resultados posibles de un intento de login.
const (
	LoginOutcomeSuccess = "success"
	LoginOutcomeFailed  = "failed"
)

// LoginHistory es un registro de auditoría por intento de login.
// UserID queda vacío cuando el intento falló sin usuario resoluble.
type LoginHistory struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	Outcome   string    `json:"outcome"`
	CreatedAt time.Time `json:"created_at"`
}
