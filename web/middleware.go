package web

import (
	"fmt"
	"net/http"
	"time"

	"TableDetFront/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Warn("request", fields...)
		default:
			log.Debug("request", fields...)
		}
	}
}

// sessions attaches the caller's session state, issuing a cookie for new or
// expired sessions.
func (s *server) sessions() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := c.Cookie(s.Cookie)
		st, created := s.Store.GetOrCreate(id)
		if created {
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(s.Cookie, st.ID, 0, "/", "", false, true)
		}
		c.Set(sessionKey, st)
		c.Next()
	}
}

// recovered turns a handler panic into a generic banner; the page stays
// usable.
func (s *server) recovered(c *gin.Context, err any) {
	s.log.Error(fmt.Sprintf("handler panic recovered: %v", err), zap.String("path", c.Request.URL.Path))
	if v, ok := c.Get(sessionKey); ok {
		s.Controller.Unexpected(v.(*session.State))
	}
	if c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON || c.Request.Method == http.MethodGet {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
	c.Abort()
}
