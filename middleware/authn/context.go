package authn

import (
	"github.com/Delfi2007/logisync-sub000/services/token"
	"github.com/labstack/echo/v4"
)

const (
	identityKey        = "_auth_identity"
	refreshIdentityKey = "_auth_refresh_identity"
)

func GetIdentity(c echo.Context) *token.Claims {
	if claims, ok := c.Get(identityKey).(*token.Claims); ok {
		return claims
	}
	return nil
}

func GetUserID(c echo.Context) uint {
	if claims := GetIdentity(c); claims != nil {
		return claims.UserID
	}
	return 0
}

func GetRefreshIdentity(c echo.Context) *token.RefreshIdentity {
	if id, ok := c.Get(refreshIdentityKey).(*token.RefreshIdentity); ok {
		return id
	}
	return nil
}
