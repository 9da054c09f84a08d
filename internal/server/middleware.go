package server

import (
	"crypto/subtle"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

const ctxUserIDKey = "meridian.user_id"

// UserRequired resolves the caller from the X-User-Id header set by the
// upstream gateway. Identity verification happens there; this service only
// needs a stable user id to scope wallets and payouts.
func (s *Server) UserRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("X-User-Id"))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		userID, err := snowflake.ParseString(raw)
		if err != nil || userID == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Set(ctxUserIDKey, userID)
		c.Next()
	}
}

func (s *Server) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader("X-Admin-Token"))
		if s.cfg.AdminToken == "" || token == "" {
			AbortWithError(c, ErrForbidden)
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) != 1 {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

func currentUserID(c *gin.Context) snowflake.ID {
	value, ok := c.Get(ctxUserIDKey)
	if !ok {
		return 0
	}
	userID, ok := value.(snowflake.ID)
	if !ok {
		return 0
	}
	return userID
}
