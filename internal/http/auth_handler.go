package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"machikado-auth/internal/domain"
	"machikado-auth/internal/line"
	"machikado-auth/internal/metrics"
	"machikado-auth/internal/service"
)

// AuthHandler mantiene dependencias para los endpoints de autenticación.
type AuthHandler struct {
	logger     *zap.Logger
	otps       *service.OTPService
	identities *service.IdentityService
	sessions   *service.SessionService
	history    *service.LoginHistoryRecorder
	lineClient *line.Client
	states     line.StateStore
	collector  *metrics.Collector
}

func NewAuthHandler(
	logger *zap.Logger,
	otps *service.OTPService,
	identities *service.IdentityService,
	sessions *service.SessionService,
	history *service.LoginHistoryRecorder,
	lineClient *line.Client,
	states line.StateStore,
	collector *metrics.Collector,
) *AuthHandler {
	return &AuthHandler{
		logger:     logger,
		otps:       otps,
		identities: identities,
		sessions:   sessions,
		history:    history,
		lineClient: lineClient,
		states:     states,
		collector:  collector,
	}
}

func (h *AuthHandler) clientInfo(c *gin.Context) service.ClientInfo {
	return service.ClientInfo{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

// RequestOTP maneja POST /auth/otp/request.
func (h *AuthHandler) RequestOTP(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid otp request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.otps.RequestCode(c.Request.Context(), req.Email); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidEmail):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email"})
		case errors.Is(err, service.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		case errors.Is(err, service.ErrDeliveryFailure):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "code delivery unavailable, retry"})
		default:
			h.logger.Error("request otp failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not request code"})
		}
		return
	}

	if h.collector != nil {
		h.collector.RecordOTPIssued()
	}
	c.JSON(http.StatusOK, gin.H{"status": "otp_sent"})
}

// VerifyOTP maneja POST /auth/otp/verify.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
		Code  string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid otp verify request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	login, err := h.otps.VerifyCode(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		h.recordFailure(c, domain.ProviderOTP, "")
		switch {
		case errors.Is(err, service.ErrInvalidEmail), errors.Is(err, service.ErrInvalidCode):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		case errors.Is(err, service.ErrInvalidOrExpiredCode):
			// Mensaje genérico: no se revela si el email existe.
			c.JSON(http.StatusBadRequest, gin.H{"error": "code invalid or expired"})
		case errors.Is(err, service.ErrUserSuspended):
			c.JSON(http.StatusForbidden, gin.H{"error": "account suspended"})
		default:
			h.logger.Error("verify otp failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not verify code"})
		}
		return
	}

	h.finishSignIn(c, domain.ProviderOTP, login.User, login.IsNewUser)
}

// LineLogin maneja GET /auth/line/login.
func (h *AuthHandler) LineLogin(c *gin.Context) {
	if h.lineClient == nil || h.states == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "line login not configured"})
		return
	}

	state, err := line.NewState()
	if err != nil {
		h.logger.Error("state generation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start login"})
		return
	}
	if err := h.states.Save(c.Request.Context(), state); err != nil {
		h.logger.Error("state save failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start login"})
		return
	}

	c.Redirect(http.StatusFound, h.lineClient.LoginURL(state))
}

// LineCallback maneja GET /auth/line/callback.
func (h *AuthHandler) LineCallback(c *gin.Context) {
	if h.lineClient == nil || h.states == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "line login not configured"})
		return
	}

	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid callback"})
		return
	}

	ok, err := h.states.Consume(c.Request.Context(), state)
	if err != nil || !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state"})
		return
	}

	profile, err := h.lineClient.ExchangeCode(c.Request.Context(), code)
	if err != nil {
		h.logger.Warn("line exchange failed", zap.Error(err))
		h.recordFailure(c, domain.ProviderLine, "")
		c.JSON(http.StatusBadGateway, gin.H{"error": "login failed"})
		return
	}

	user, err := h.identities.ResolveOrCreate(c.Request.Context(), service.ExternalProfile{
		Subject: profile.UserID,
		Name:    profile.DisplayName,
		Email:   profile.Email,
		Image:   profile.PictureURL,
	})
	if err != nil {
		h.recordFailure(c, domain.ProviderLine, "")
		switch {
		case errors.Is(err, service.ErrIncompleteProfile):
			c.JSON(http.StatusBadRequest, gin.H{"error": "external profile incomplete"})
		case errors.Is(err, service.ErrUserSuspended):
			c.JSON(http.StatusForbidden, gin.H{"error": "account suspended"})
		default:
			h.logger.Error("line identity resolution failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		}
		return
	}

	// Las identidades LINE llegan con nombre y foto del provider: el gate de
	// perfil aplica solo al path OTP.
	h.finishSignIn(c, domain.ProviderLine, user, false)
}

// RefreshToken maneja POST /auth/refresh.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid refresh request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	tokens, err := h.sessions.RefreshPair(c.Request.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrStaleSession) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "session no longer valid"})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

// Logout maneja POST /auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid logout request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	_ = h.sessions.RevokeRefresh(req.RefreshToken)
	c.Status(http.StatusNoContent)
}

// finishSignIn converge ambos paths de login: historial, claims y tokens.
func (h *AuthHandler) finishSignIn(c *gin.Context, provider string, user domain.User, isNewUser bool) {
	if h.history != nil {
		h.history.Record(c.Request.Context(), user.ID, domain.LoginOutcomeSuccess, h.clientInfo(c))
	}
	if h.collector != nil {
		h.collector.RecordLoginAttempt(provider, domain.LoginOutcomeSuccess)
	}

	tokens, err := h.sessions.IssuePair(user, isNewUser)
	if err != nil {
		h.logger.Error("token issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue tokens"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "tokens": tokens, "is_new_user": isNewUser})
}

func (h *AuthHandler) recordFailure(c *gin.Context, provider, userID string) {
	if h.history != nil {
		h.history.Record(c.Request.Context(), userID, domain.LoginOutcomeFailed, h.clientInfo(c))
	}
	if h.collector != nil {
		h.collector.RecordLoginAttempt(provider, domain.LoginOutcomeFailed)
	}
	if h.collector != nil && provider == domain.ProviderOTP {
		h.collector.RecordOTPRejected()
	}
}
