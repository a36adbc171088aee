package httpapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"horse.fit/stash/internal/auth"
)

// requireToken guards mutating endpoints with the configured bearer
// token. When no token hash is configured the API runs open, which is
// the expected mode for local single-user deployments.
func (s *Server) requireToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.opts.APITokenHash == "" {
			return next(c)
		}

		token := bearerToken(c.Request().Header.Get("Authorization"))
		if token == "" || !auth.VerifyToken(token, s.opts.APITokenHash) {
			return unauthorizedResponse(c)
		}
		return next(c)
	}
}

func bearerToken(header string) string {
	trimmed := strings.TrimSpace(header)
	if trimmed == "" {
		return ""
	}
	const prefix = "bearer "
	if len(trimmed) <= len(prefix) || !strings.EqualFold(trimmed[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(trimmed[len(prefix):])
}

func unauthorizedResponse(c echo.Context) error {
	return fail(c, http.StatusUnauthorized, "Authentication required", nil)
}
