package handlers

import (
	"fmt"
	"net/http"
	"time"

	"bridge-backend/internal/apperrors"
	"bridge-backend/internal/config"
	"bridge-backend/internal/metrics"
	"bridge-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"
)

const adminTokenTTL = 12 * time.Hour

// AdminClaims is the JWT payload of an admin session.
type AdminClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// ValidateAdminJWT parses and verifies an admin token.
func ValidateAdminJWT(tokenString string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(config.AppConfig.Admin.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Role != "admin" {
		return nil, fmt.Errorf("invalid admin token")
	}
	return claims, nil
}

// AdminHandler serves the operator endpoints.
type AdminHandler struct {
	orchestrator *services.ConversionOrchestrator
}

func NewAdminHandler(orchestrator *services.ConversionOrchestrator) *AdminHandler {
	return &AdminHandler{orchestrator: orchestrator}
}

type adminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	TOTPCode string `json:"totp_code" binding:"required"`
}

// Login handles POST /admin/login. Access requires the configured username
// and a valid TOTP code; there is no password, the TOTP secret is the
// credential.
func (h *AdminHandler) Login(c *gin.Context) {
	var req adminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.BadRequest(apperrors.CodeInvalidPayload, "invalid request body: %v", err))
		return
	}

	admin := config.AppConfig.Admin
	if req.Username != admin.Username || !totp.Validate(req.TOTPCode, admin.TOTPSecret) {
		logrus.WithField("username", req.Username).Warn("admin login rejected")
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "invalid credentials",
			"code":  "INVALID_CREDENTIALS",
		})
		return
	}

	now := time.Now()
	claims := &AdminClaims{
		Username: req.Username,
		Role:     "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(adminTokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(admin.JWTSecret))
	if err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.CodeInvalidPayload, "failed to sign admin token"))
		return
	}

	logrus.WithField("username", req.Username).Info("admin login")
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": now.Add(adminTokenTTL),
	})
}

// ExpireConversions handles POST /admin/conversions/expire, the manual
// trigger for the TTL sweep.
func (h *AdminHandler) ExpireConversions(c *gin.Context) {
	expired, err := h.orchestrator.ExpireConversions(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	metrics.ConversionsExpired.Add(float64(expired))
	c.JSON(http.StatusOK, gin.H{"expired": expired})
}
