package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"attendance-insights-api/analytics"
	"attendance-insights-api/store"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StatusWebSocket pushes the load status every time it changes and closes
// once the load cycle has settled on READY or LOAD_FAILED.
func StatusWebSocket(svc *analytics.Service, interval time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("websocket upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		// Read pump: detect client disconnect
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last string
		var version uint64
		for {
			st := svc.Status()
			if st.State != last || st.SnapshotVersion != version {
				last, version = st.State, st.SnapshotVersion
				if err := conn.WriteJSON(gin.H{"type": "status", "data": st}); err != nil {
					log.Printf("ws write error: %v", err)
					return
				}
			}
			if st.State == string(store.StateReady) || st.State == string(store.StateLoadFailed) {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, st.State))
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}
}
