package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"machikado-auth/internal/domain"
	"machikado-auth/internal/service"
)

// ProfileHandler mantiene dependencias para los endpoints de perfil.
type ProfileHandler struct {
	logger     *zap.Logger
	identities *service.IdentityService
	sessions   *service.SessionService
}

func NewProfileHandler(logger *zap.Logger, identities *service.IdentityService, sessions *service.SessionService) *ProfileHandler {
	return &ProfileHandler{
		logger:     logger,
		identities: identities,
		sessions:   sessions,
	}
}

// Me maneja GET /profile/me. Acá sí se consulta la base: es la vía explícita
// para datos frescos cuando los claims del token no alcanzan.
func (h *ProfileHandler) Me(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	user, err := h.identities.Get(c.Request.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			// Usuario borrado con sesión viva: sign-out forzado.
			c.JSON(http.StatusUnauthorized, gin.H{"error": "session no longer valid"})
			return
		}
		h.logger.Error("profile fetch failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not fetch profile"})
		return
	}
	if !user.IsActive {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session no longer valid"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user, "is_new_user": claims.IsNewUser && !user.ProfileComplete()})
}

// CreateProfile maneja POST /profile/create: cierra el gate de usuario nuevo
// y reemite tokens con is_new_user limpio.
func (h *ProfileHandler) CreateProfile(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	if !claims.IsNewUser {
		c.JSON(http.StatusConflict, gin.H{"error": "profile already complete"})
		return
	}

	var req struct {
		DisplayName string `json:"display_name" binding:"required"`
		Bio         string `json:"bio"`
		ImageURL    string `json:"image_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid create profile request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	user, err := h.identities.CompleteProfile(c.Request.Context(), claims.UserID, req.DisplayName, req.Bio, req.ImageURL)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNameRequired):
			c.JSON(http.StatusBadRequest, gin.H{"error": "display name required"})
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "session no longer valid"})
		default:
			h.logger.Error("create profile failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create profile"})
		}
		return
	}

	tokens, err := h.sessions.IssuePair(user, false)
	if err != nil {
		h.logger.Error("token issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue tokens"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "tokens": tokens, "is_new_user": false})
}

// UseExternalData maneja POST /profile/use-external-data.
func (h *ProfileHandler) UseExternalData(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	if claims.Provider != domain.ProviderLine {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no external data for this account"})
		return
	}

	var req struct {
		UseOriginalData *bool `json:"use_original_data" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid use external data request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	user, err := h.identities.SetUseOriginalData(c.Request.Context(), claims.UserID, *req.UseOriginalData)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "session no longer valid"})
			return
		}
		h.logger.Error("use external data toggle failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update profile"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}
