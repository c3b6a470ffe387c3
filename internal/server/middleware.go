package server

import (
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/smallbiznis/fundledger/internal/ledger/domain"
	obscontext "github.com/smallbiznis/fundledger/internal/observability/context"
)

const contextOrgIDKey = "org_id"

// OrgContext resolves the :org_id route parameter and injects it into the request context.
func OrgContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, err := parseSnowflakeID(c.Param("org_id"))
		if err != nil {
			AbortWithError(c, ledgerdomain.ErrInvalidOrganization)
			return
		}

		c.Set(contextOrgIDKey, orgID)
		c.Request = c.Request.WithContext(obscontext.WithOrgID(c.Request.Context(), orgID.String()))
		c.Next()
	}
}

func orgIDFromGin(c *gin.Context) snowflake.ID {
	value, ok := c.Get(contextOrgIDKey)
	if !ok {
		return 0
	}
	orgID, _ := value.(snowflake.ID)
	return orgID
}
