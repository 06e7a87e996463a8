package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	SourceKey      = "ingest_source"
	AdminKeyHeader = "X-Admin-Key"
)

// IngestAuth requires a valid ingest token as a Bearer header or a ?token=
// query parameter (browsers cannot set headers on WebSocket upgrades).
// An empty secret disables the check.
func IngestAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		tokenStr := c.Query("token")
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			tokenStr = strings.TrimPrefix(header, "Bearer ")
		}
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, err := ParseToken(tokenStr, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(SourceKey, claims.Source)
		c.Next()
	}
}

// GetSource returns the authenticated ingest source, or "" when auth is off.
func GetSource(c *gin.Context) string {
	return c.GetString(SourceKey)
}

// AdminKey guards admin routes with a shared key header. An empty key
// disables the admin routes.
func AdminKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(c.GetHeader(AdminKeyHeader)), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
