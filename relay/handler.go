package relay

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"wellnest/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWS upgrades the connection and starts the client pumps. The bearer
// token is optional: a valid one tags the connection with a user id, an
// absent or invalid one leaves it anonymous.
func ServeWS(hub *Hub, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := ""
		if token := middleware.BearerToken(c); token != "" {
			if uid, err := middleware.ParseToken(token, jwtSecret); err == nil {
				userID = uid
			}
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("relay upgrade failed: %v", err)
			return
		}

		client := newClient(hub, conn, userID)
		hub.register <- client

		go client.writePump()
		go client.readPump()
	}
}
