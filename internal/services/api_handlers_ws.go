package services

import (
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

func (a *Api) WsUpgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

// Notifications streams generate.* events for the clientId given in the query.
func (a *Api) Notifications() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {

		clientId := strings.TrimSpace(conn.Query("clientId"))
		if clientId == "" {
			_ = conn.WriteMessage(websocket.CloseMessage, []byte("missing clientId"))
			_ = conn.Close()
			return
		}

		client := NewWSClient(clientId, conn)
		a.hub.Add(client)
		log.Debug("websocket client connected", "component", "hub", "clientId", clientId)

		go client.writeLoop()
		readPump(conn, func() {
			a.hub.Remove(client)
			log.Debug("websocket client disconnected", "component", "hub", "clientId", clientId)
		})
	})
}
