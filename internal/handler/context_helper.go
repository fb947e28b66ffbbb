package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/kpi-hub-api/internal/middleware"
	"github.com/noah-isme/kpi-hub-api/internal/models"
	"github.com/noah-isme/kpi-hub-api/internal/service"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// currentUser loads the full user record behind the request's JWT claims.
// Services that route approvals or scope aggregates need manager and
// department fields the token does not carry.
func currentUser(c *gin.Context, users *service.UserService) (*models.User, error) {
	claims := claimsFromContext(c)
	if claims == nil {
		return nil, nil
	}
	return users.Get(c.Request.Context(), claims.UserID)
}
