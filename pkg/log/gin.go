package log

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// roomParams are the route parameters that name a room.
var roomParams = []string{"room_id", "board_id"}

// GinMiddleware injects a request logger into the request context and logs
// the completed request together with the room and the authenticated user.
func GinMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		child, reqID := requestLogger(logger, c.Request, c.ClientIP())
		for _, p := range roomParams {
			if v := c.Param(p); v != "" {
				child = child.With().Str(FieldRoomID, v).Logger()
				break
			}
		}

		c.Header(headerRequestID, reqID)
		c.Request = c.Request.WithContext(WithLogger(c.Request.Context(), child))

		c.Next()

		evt := completed(&child, c.Request.URL.Path, c.Writer.Status(), start)
		// Set by the auth middleware, if it ran.
		if userID := c.GetString(FieldUserID); userID != "" {
			evt = evt.Str(FieldUserID, userID)
		}
		if len(c.Errors) > 0 {
			evt = evt.Str("errors", c.Errors.String())
		}
		evt.Msg("request completed")
	}
}
