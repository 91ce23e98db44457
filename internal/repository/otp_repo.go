package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"machikado-auth/internal/domain"
)

// OTPRepository persiste códigos de un solo uso.
type OTPRepository interface {
	Create(ctx context.Context, otp domain.OTP) error
	Consume(ctx context.Context, email, codeHash string, now time.Time) (domain.OTP, error)
}

// PgOTPRepository implementa OTPRepository usando pgxpool.
type PgOTPRepository struct {
	pool *pgxpool.Pool
}

func NewPgOTPRepository(pool *pgxpool.Pool) *PgOTPRepository {
	return &PgOTPRepository{pool: pool}
}

func (r *PgOTPRepository) Create(ctx context.Context, otp domain.OTP) error {
	const query = `
		INSERT INTO otps (id, email, code_hash, is_used, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		otp.ID,
		otp.Email,
		otp.CodeHash,
		otp.IsUsed,
		otp.ExpiresAt,
		otp.CreatedAt,
	)
	return err
}

// Consume marca como usado el registro vigente más reciente que coincide con
// email+hash, en un solo UPDATE condicional. Dos verificaciones concurrentes
// del mismo código no pueden consumirlo dos veces: la condición is_used = FALSE
// se reevalúa dentro del UPDATE. Sin coincidencia devuelve pgx.ErrNoRows.
func (r *PgOTPRepository) Consume(ctx context.Context, email, codeHash string, now time.Time) (domain.OTP, error) {
	const query = `
		UPDATE otps
		SET is_used = TRUE
		WHERE id = (
			SELECT id FROM otps
			WHERE email = $1 AND code_hash = $2 AND is_used = FALSE AND expires_at > $3
			ORDER BY created_at DESC
			LIMIT 1
		)
		AND is_used = FALSE AND expires_at > $3
		RETURNING id, email, code_hash, is_used, expires_at, created_at
	`
	var o domain.OTP
	err := r.pool.QueryRow(ctx, query, email, codeHash, now).Scan(
		&o.ID,
		&o.Email,
		&o.CodeHash,
		&o.IsUsed,
		&o.ExpiresAt,
		&o.CreatedAt,
	)
	if err != nil {
		return domain.OTP{}, err
	}
	return o, nil
}
