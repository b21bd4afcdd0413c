package authn

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Delfi2007/logisync-sub000/services/permissions"
)

// AdminRole bypasses ownership checks.
const AdminRole = "admin"

// RequireRoles composes after RequireAuth: the attached identity's role must
// be in the allow-list.
func RequireRoles(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := GetIdentity(c)
			if claims == nil {
				return reject(c, http.StatusUnauthorized, CodeAuthRequired, "Authentication required")
			}

			if _, ok := allowed[claims.Role]; !ok {
				return reject(c, http.StatusForbidden, CodeInsufficientPermissions, "Role not permitted for this operation")
			}

			return next(c)
		}
	}
}

// RequirePermission checks the identity's role grants against a dot-separated
// permission such as "orders.create"; wildcard grants like "orders.*" match.
func RequirePermission(perm string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := GetIdentity(c)
			if claims == nil {
				return reject(c, http.StatusUnauthorized, CodeAuthRequired, "Authentication required")
			}

			if !permissions.ForRole(claims.Role).Allows(perm) {
				return reject(c, http.StatusForbidden, CodeInsufficientPermissions, "Permission not granted")
			}

			return next(c)
		}
	}
}

// RequireOwnership allows the administrative role or the caller whose id
// matches the resource owner extracted from the request. Extraction failures
// deny by default.
func RequireOwnership(owner func(echo.Context) (uint, error)) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := GetIdentity(c)
			if claims == nil {
				return reject(c, http.StatusUnauthorized, CodeAuthRequired, "Authentication required")
			}

			if claims.Role == AdminRole {
				return next(c)
			}

			ownerID, err := owner(c)
			if err != nil || ownerID != claims.UserID {
				return reject(c, http.StatusForbidden, CodeForbidden, "Not the owner of this resource")
			}

			return next(c)
		}
	}
}
