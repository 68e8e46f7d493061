package handlers

import (
	"net/http"

	"bridge-backend/internal/apperrors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// respondError maps the error taxonomy onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)
	status := http.StatusInternalServerError

	switch apperrors.KindOf(err) {
	case apperrors.KindBadRequest:
		status = http.StatusBadRequest
		if code == apperrors.CodeConversionNotFound || code == apperrors.CodeTransactionNotFound {
			status = http.StatusNotFound
		}
	case apperrors.KindConflict:
		status = http.StatusConflict
	case apperrors.KindRetryable:
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		logrus.WithError(err).WithField("path", c.Request.URL.Path).Error("request failed")
		c.JSON(status, gin.H{
			"error": "internal server error",
			"code":  code,
		})
		return
	}

	c.JSON(status, gin.H{
		"error": err.Error(),
		"code":  code,
	})
}
