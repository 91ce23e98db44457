package domain

import "time"

// Providers de identidad soportados.
const (
	ProviderOTP  = "otp"
	ProviderLine = "line"
)

// Roles disponibles para un usuario.
const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperadmin = "superadmin"
)

// ProviderSnapshot guarda los datos originales entregados por el provider OAuth.
type ProviderSnapshot struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Image string `json:"image,omitempty"`
}

// User es el registro de identidad: una fila por persona.
type User struct {
	ID              string           `json:"id"`
	DisplayName     string           `json:"display_name,omitempty"`
	Email           string           `json:"email,omitempty"`
	ImageURL        string           `json:"image_url,omitempty"`
	Bio             string           `json:"bio,omitempty"`
	Provider        string           `json:"provider"`
	ProviderID      string           `json:"-"`
	OriginalData    ProviderSnapshot `json:"original_data,omitempty"`
	UseOriginalData bool             `json:"use_original_data"`
	IsActive        bool             `json:"is_active"`
	Role            string           `json:"role"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// ProfileComplete indica si el usuario ya pasó el gate de perfil.
// Las identidades LINE siempre llegan con nombre; las OTP lo completan después.
func (u User) ProfileComplete() bool {
	return u.DisplayName != ""
}
