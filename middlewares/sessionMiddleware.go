package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nens/trs_backend/config"
	"github.com/nens/trs_backend/models"
	"github.com/nens/trs_backend/utils"
)

// SessionMiddleware resolves the single-sign-on session into the acting
// Person. The SSO service maintains the Token:<token> -> login_name
// mapping in redis; this backend only consumes it. Requests without a
// token proceed anonymously (read-only endpoints decide for themselves).
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Next()
			return
		}
		loginName, exists, err := config.GetRedisValue("Token:" + token)
		if err != nil || !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = utils.SetLoginNameInContext(ctx, loginName)

		// Resolve the login to a Person for added_by auditing and the
		// office-management override. An unknown login stays anonymous.
		if person, perr := models.GetPersonByLoginName(ctx, loginName); perr == nil && person != nil {
			ctx = utils.SetPersonIdInContext(ctx, person.ID)
			ctx = utils.SetPersonNameInContext(ctx, person.Name)
			ctx = utils.SetIsAdminInContext(ctx, utils.DereferencePtr(person.IsOfficeManagement))
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
