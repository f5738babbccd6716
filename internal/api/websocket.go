package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; this is a trading API, not a browser app
	},
}

// streamHub is the narrow slice of realtime.Bus each route needs: subscribe
// to one keyed topic and get an unsubscribe func back.
type streamHub interface {
	Subscribe(key uuid.UUID) (<-chan []byte, func())
}

// serveStream upgrades a request to a websocket and pipes one keyed topic's
// events to it until a write fails (the client has gone away or the write
// deadline passed); the hub itself never removes a subscriber. It follows
// the teacher's write-deadline policy generalized from one global Hub to
// many per-subject topics.
func serveStream(hub streamHub, key uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("Failed to upgrade websocket: %v", err)
			return
		}
		defer conn.Close()

		events, unsubscribe := hub.Subscribe(key)
		defer unsubscribe()

		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for data := range events {
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("Websocket write error: %v", err)
				return
			}
		}
	}
}
