package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"machikado-auth/internal/domain"
)

// LoginHistoryRepository persiste registros de auditoría de login.
type LoginHistoryRepository interface {
	Create(ctx context.Context, entry domain.LoginHistory) error
}

// PgLoginHistoryRepository implementa LoginHistoryRepository usando pgxpool.
type PgLoginHistoryRepository struct {
	pool *pgxpool.Pool
}

func NewPgLoginHistoryRepository(pool *pgxpool.Pool) *PgLoginHistoryRepository {
	return &PgLoginHistoryRepository{pool: pool}
}

func (r *PgLoginHistoryRepository) Create(ctx context.Context, entry domain.LoginHistory) error {
	const query = `
		INSERT INTO login_histories (id, user_id, session_id, ip_address, user_agent, outcome, created_at)
		VALUES ($1, NULLIF($2, '')::uuid, NULLIF($3, '')::uuid, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.UserID,
		entry.SessionID,
		entry.IPAddress,
		entry.UserAgent,
		entry.Outcome,
		entry.CreatedAt,
	)
	return err
}
