package transport

import (
	"net/http"

	"github.com/gorilla/websocket"
)

func httpHandlerFunc(fn func(*websocket.Conn), upgrader *websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		fn(c)
	}
}
