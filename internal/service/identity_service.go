package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"machikado-auth/internal/domain"
	"machikado-auth/internal/repository"
)

// ExternalProfile es el snapshot de identidad que entrega el provider OAuth.
type ExternalProfile struct {
	Subject string
	Name    string
	Email   string
	Image   string
}

// IdentityService resuelve identidades para el path OAuth y administra la
// política de merge con los datos originales del provider.
type IdentityService struct {
	logger *zap.Logger
	users  repository.UserRepository
}

func NewIdentityService(logger *zap.Logger, users repository.UserRepository) *IdentityService {
	return &IdentityService{logger: logger, users: users}
}

// ResolveOrCreate busca la identidad por subject externo o la crea.
// En cada login el snapshot de datos originales se refresca sin condiciones;
// los campos visibles solo se sincronizan si use_original_data está activo.
func (s *IdentityService) ResolveOrCreate(ctx context.Context, profile ExternalProfile) (domain.User, error) {
	subject := strings.TrimSpace(profile.Subject)
	name := strings.TrimSpace(profile.Name)
	if subject == "" || name == "" {
		return domain.User{}, ErrIncompleteProfile
	}

	snapshot := domain.ProviderSnapshot{
		Name:  name,
		Email: normalizeEmail(profile.Email),
		Image: strings.TrimSpace(profile.Image),
	}

	user, err := s.users.GetByProviderSubject(ctx, subject)
	if err == nil {
		return s.refreshExisting(ctx, user, snapshot)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, err
	}

	now := time.Now().UTC()
	user = domain.User{
		ID:              uuid.NewString(),
		DisplayName:     snapshot.Name,
		Email:           snapshot.Email,
		ImageURL:        snapshot.Image,
		Provider:        domain.ProviderLine,
		ProviderID:      subject,
		OriginalData:    snapshot,
		UseOriginalData: true,
		IsActive:        true,
		Role:            domain.RoleUser,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// Dos callbacks concurrentes para un subject nuevo: el perdedor de
		// la carrera relee el registro del ganador en vez de fallar.
		if isUniqueViolation(err) {
			existing, lookupErr := s.users.GetByProviderSubject(ctx, subject)
			if lookupErr != nil {
				return domain.User{}, lookupErr
			}
			return s.refreshExisting(ctx, existing, snapshot)
		}
		return domain.User{}, err
	}
	return user, nil
}

func (s *IdentityService) refreshExisting(ctx context.Context, user domain.User, snapshot domain.ProviderSnapshot) (domain.User, error) {
	if !user.IsActive {
		return domain.User{}, ErrUserSuspended
	}
	if err := s.users.UpdateSnapshot(ctx, user.ID, snapshot, user.UseOriginalData); err != nil {
		return domain.User{}, err
	}
	user.OriginalData = snapshot
	if user.UseOriginalData {
		user.DisplayName = snapshot.Name
		user.ImageURL = snapshot.Image
	}
	return user, nil
}

// Get devuelve la identidad por id.
func (s *IdentityService) Get(ctx context.Context, id string) (domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

// CompleteProfile cierra el gate de usuario nuevo: fija nombre obligatorio
// más bio e imagen opcionales.
func (s *IdentityService) CompleteProfile(ctx context.Context, userID, displayName, bio, imageURL string) (domain.User, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return domain.User{}, ErrNameRequired
	}
	user, err := s.Get(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	if bio = strings.TrimSpace(bio); bio == "" {
		bio = user.Bio
	}
	if imageURL = strings.TrimSpace(imageURL); imageURL == "" {
		imageURL = user.ImageURL
	}
	if err := s.users.UpdateProfile(ctx, user.ID, displayName, bio, imageURL); err != nil {
		return domain.User{}, err
	}
	user.DisplayName = displayName
	user.Bio = bio
	user.ImageURL = imageURL
	return user, nil
}

// SetUseOriginalData cambia la política de merge. Al activarla los campos
// visibles vuelven a seguir el snapshot del provider de inmediato.
func (s *IdentityService) SetUseOriginalData(ctx context.Context, userID string, use bool) (domain.User, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	if err := s.users.SetUseOriginalData(ctx, user.ID, use); err != nil {
		return domain.User{}, err
	}
	user.UseOriginalData = use
	if use {
		user.DisplayName = user.OriginalData.Name
		user.ImageURL = user.OriginalData.Image
	}
	return user, nil
}
