package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"machikado-auth/internal/domain"
)

// UserRepository define el contrato de persistencia para identidades.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByProviderSubject(ctx context.Context, providerID string) (domain.User, error)
	GetByOTPEmail(ctx context.Context, email string) (domain.User, error)
	UpdateSnapshot(ctx context.Context, id string, snapshot domain.ProviderSnapshot, syncLive bool) error
	UpdateProfile(ctx context.Context, id, displayName, bio, imageURL string) error
	SetUseOriginalData(ctx context.Context, id string, use bool) error
}

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

const userColumns = `
	id, display_name, email, image_url, bio, provider, provider_id,
	original_name, original_email, original_image,
	use_original_data, is_active, role, created_at, updated_at
`

func (r *PgUserRepository) Create(ctx context.Context, user domain.User) error {
	const query = `
		INSERT INTO users (
			id, display_name, email, image_url, bio, provider, provider_id,
			original_name, original_email, original_image,
			use_original_data, is_active, role, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
	`
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.DisplayName,
		user.Email,
		user.ImageURL,
		user.Bio,
		user.Provider,
		user.ProviderID,
		user.OriginalData.Name,
		user.OriginalData.Email,
		user.OriginalData.Image,
		user.UseOriginalData,
		user.IsActive,
		user.Role,
		user.CreatedAt,
	)
	return err
}

func (r *PgUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

func (r *PgUserRepository) GetByProviderSubject(ctx context.Context, providerID string) (domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE provider = 'line' AND provider_id = $1`
	return r.scanOne(ctx, query, providerID)
}

func (r *PgUserRepository) GetByOTPEmail(ctx context.Context, email string) (domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE provider = 'otp' AND email = $1`
	return r.scanOne(ctx, query, email)
}

// UpdateSnapshot refresca los datos originales del provider; con syncLive
// también sincroniza nombre e imagen visibles.
func (r *PgUserRepository) UpdateSnapshot(ctx context.Context, id string, snapshot domain.ProviderSnapshot, syncLive bool) error {
	if syncLive {
		const query = `
			UPDATE users
			SET original_name = $2, original_email = $3, original_image = $4,
				display_name = $2, image_url = $4, updated_at = now()
			WHERE id = $1
		`
		_, err := r.pool.Exec(ctx, query, id, snapshot.Name, snapshot.Email, snapshot.Image)
		return err
	}
	const query = `
		UPDATE users
		SET original_name = $2, original_email = $3, original_image = $4, updated_at = now()
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id, snapshot.Name, snapshot.Email, snapshot.Image)
	return err
}

func (r *PgUserRepository) UpdateProfile(ctx context.Context, id, displayName, bio, imageURL string) error {
	const query = `
		UPDATE users
		SET display_name = $2, bio = $3, image_url = $4, updated_at = now()
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id, displayName, bio, imageURL)
	return err
}

// SetUseOriginalData cambia la política de merge; al activarla vuelve a
// sincronizar los campos visibles desde el snapshot.
func (r *PgUserRepository) SetUseOriginalData(ctx context.Context, id string, use bool) error {
	if use {
		const query = `
			UPDATE users
			SET use_original_data = TRUE,
				display_name = original_name, image_url = original_image,
				updated_at = now()
			WHERE id = $1
		`
		_, err := r.pool.Exec(ctx, query, id)
		return err
	}
	const query = `
		UPDATE users SET use_original_data = FALSE, updated_at = now() WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

func (r *PgUserRepository) scanOne(ctx context.Context, query string, arg any) (domain.User, error) {
	var u domain.User
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID,
		&u.DisplayName,
		&u.Email,
		&u.ImageURL,
		&u.Bio,
		&u.Provider,
		&u.ProviderID,
		&u.OriginalData.Name,
		&u.OriginalData.Email,
		&u.OriginalData.Image,
		&u.UseOriginalData,
		&u.IsActive,
		&u.Role,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}
