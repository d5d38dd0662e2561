package main

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/CodedInternet/gateway/onboard"
)

const STATE_PUSH_INTERVAL = 100 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StateSocketHandler streams a status snapshot every interval until the
// client goes away.
func StateSocketHandler(gw *onboard.Gateway, log zerolog.Logger, interval time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		defer conn.Close()

		// reads only exist to notice the close
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if err := conn.WriteJSON(NewStatusResponse(gw)); err != nil {
				log.Debug().Err(err).Msg("websocket write failed")
				return
			}
			select {
			case <-gone:
				return
			case <-r.Context().Done():
				return
			case <-ticker.C:
			}
		}
	}
}
