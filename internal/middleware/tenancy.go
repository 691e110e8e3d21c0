package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// OrganizationIDKey is the context key for storing the organization ID
	OrganizationIDKey ContextKey = "organization_id"

	// OrganizationIDHeader is the HTTP header carrying the organization ID
	OrganizationIDHeader = "X-Organization-ID"

	// organizationIDPattern defines allowed characters for organization IDs
	organizationIDPattern = `^[a-zA-Z0-9_-]+$`
)

var organizationIDRegex = regexp.MustCompile(organizationIDPattern)

// ValidOrganizationID reports whether id has an acceptable length and charset
func ValidOrganizationID(id string) bool {
	return len(id) >= 3 && len(id) <= 128 && organizationIDRegex.MatchString(id)
}

// TenancyMiddleware extracts the X-Organization-ID header and scopes the request to it.
// Returns 400 Bad Request if the header is missing or malformed.
func TenancyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := c.GetHeader(OrganizationIDHeader)

		if orgID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Missing organization identifier",
				"message": "X-Organization-ID header is required",
				"code":    "ORGANIZATION_ID_REQUIRED",
			})
			c.Abort()
			return
		}

		if !ValidOrganizationID(orgID) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid organization identifier",
				"message": "X-Organization-ID must be 3 to 128 alphanumeric characters, hyphens or underscores",
				"code":    "INVALID_ORGANIZATION_ID",
			})
			c.Abort()
			return
		}

		c.Set(string(OrganizationIDKey), orgID)
		ctx := context.WithValue(c.Request.Context(), OrganizationIDKey, orgID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetOrganizationID retrieves the organization ID from Gin context.
// Returns empty string if it is not set.
func GetOrganizationID(c *gin.Context) string {
	if v, exists := c.Get(string(OrganizationIDKey)); exists {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// GetOrganizationIDFromContext retrieves the organization ID from a standard context
func GetOrganizationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(OrganizationIDKey).(string); ok {
		return id
	}
	return ""
}

// MustGetOrganizationID retrieves the organization ID and panics if not found.
// Only use this in handlers mounted behind TenancyMiddleware.
func MustGetOrganizationID(c *gin.Context) string {
	id := GetOrganizationID(c)
	if id == "" {
		panic("organization ID not found in context - ensure TenancyMiddleware is applied to this route")
	}
	return id
}
