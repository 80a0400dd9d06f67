package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/tutorline/server/internal/auth"
)

const claimsKey = "claims"

// requireRole rejects requests without a bearer token of role
func requireRole(issuer *auth.Issuer, role string, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c)
			if token == "" {
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "missing_token",
					Message: "JWT token is required in Authorization header",
				})
			}

			claims, err := issuer.ValidateRole(token, role)
			if err != nil {
				if errors.Is(err, auth.ErrWrongRole) {
					return c.JSON(http.StatusForbidden, ErrorResponse{
						Error:   "invalid_role",
						Message: "Token is not allowed here",
					})
				}
				logger.Debug("Rejected token", zap.String("path", c.Path()), zap.Error(err))
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "invalid_token",
					Message: "Invalid or expired JWT token",
				})
			}

			c.Set(claimsKey, claims)
			return next(c)
		}
	}
}

func claimsFrom(c echo.Context) *auth.JWTClaims {
	if claims, ok := c.Get(claimsKey).(*auth.JWTClaims); ok {
		return claims
	}
	return &auth.JWTClaims{}
}
