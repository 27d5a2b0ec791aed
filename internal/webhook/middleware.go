package webhook

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"leadflow_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

const (
	headerAPIKey     = "X-Webhook-API-Key"
	ctxSourceID      = "webhookSourceID"
	ctxSourceKey     = "webhookSourceKey"
	paramSourceKey   = "sourceKey"
	errMissingAPIKey = "missing API key"
	errInvalidAPIKey = "invalid API key"
)

// SourceAuthenticator resolves an API key hash to its source.
type SourceAuthenticator interface {
	GetByHash(ctx context.Context, keyHash string) (Source, error)
}

// APIKeyAuthMiddleware validates the X-Webhook-API-Key header against the
// :sourceKey path parameter and sets the source on the gin context.
func APIKeyAuthMiddleware(auth SourceAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := strings.TrimSpace(c.GetHeader(headerAPIKey))
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpkit.ErrorResponse{Error: errMissingAPIKey})
			return
		}

		src, err := auth.GetByHash(c.Request.Context(), HashKey(apiKey))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpkit.ErrorResponse{Error: errInvalidAPIKey})
			return
		}
		if !strings.EqualFold(src.SourceKey, c.Param(paramSourceKey)) {
			c.AbortWithStatusJSON(http.StatusForbidden, httpkit.ErrorResponse{Error: "API key does not belong to this source"})
			return
		}

		// Domain validation (if allowed_domains is configured)
		if len(src.AllowedDomains) > 0 {
			origin := c.GetHeader("Origin")
			if origin == "" {
				origin = c.GetHeader("Referer")
			}
			if !isDomainAllowed(origin, src.AllowedDomains) {
				c.AbortWithStatusJSON(http.StatusForbidden, httpkit.ErrorResponse{Error: "domain not allowed"})
				return
			}
		}

		c.Set(ctxSourceID, src.ID)
		c.Set(ctxSourceKey, src.SourceKey)
		c.Next()
	}
}

// isDomainAllowed checks if the origin matches any of the allowed domains.
// Supports exact match and wildcard subdomains (e.g., "*.example.com").
func isDomainAllowed(origin string, allowedDomains []string) bool {
	if origin == "" {
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return false
	}

	for _, domain := range allowedDomains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		switch {
		case domain == "*":
			return true
		case strings.HasPrefix(domain, "*."):
			if strings.HasSuffix(host, domain[1:]) || host == domain[2:] {
				return true
			}
		case host == domain:
			return true
		}
	}
	return false
}
