package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spigell/hr-intake/internal/auth"
)

const (
	identityKey = "identity"
	realm       = `Basic realm="hr-intake"`
)

// Authenticator verifies the credentials of a request.
type Authenticator interface {
	Authenticate(username, password string) (auth.Identity, error)
}

// BasicAuth rejects requests without valid HTTP basic credentials.
func BasicAuth(authenticator Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		username, password, ok := c.Request.BasicAuth()
		if !ok {
			c.Header("WWW-Authenticate", realm)
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "credentials are required")
			return
		}

		identity, err := authenticator.Authenticate(username, password)
		if err != nil {
			c.Header("WWW-Authenticate", realm)
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "invalid credentials")
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

func identityFrom(c *gin.Context) (auth.Identity, bool) {
	raw, ok := c.Get(identityKey)
	if !ok {
		return auth.Identity{}, false
	}
	identity, ok := raw.(auth.Identity)
	return identity, ok
}

// Logging writes one structured record per request.
func Logging(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if identity, ok := identityFrom(c); ok {
			fields = append(fields, zap.String("user", identity.Username))
		}
		if id := c.Param("id"); id != "" {
			fields = append(fields, zap.String("session_id", id))
		}

		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("request completed", fields...)
			return
		}
		logger.Info("request completed", fields...)
	}
}
