package realtime

import (
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

const writeTimeout = 10 * time.Second

// Authenticator resolves an opaque credential into a user id.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Gateway upgrades HTTP requests to websocket connections and drives the
// presence registry from their lifecycle. A connection that fails handshake
// authentication is rejected before any board join can happen.
type Gateway struct {
	registry *Registry
	auth     Authenticator
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// NewGateway creates a websocket gateway feeding the given registry.
func NewGateway(registry *Registry, auth Authenticator, logger *log.Logger) *Gateway {
	return &Gateway{
		registry: registry,
		auth:     auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

type clientMessage struct {
	Event   string `json:"event"`
	BoardID string `json:"boardId"`
}

type serverMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Handle runs one websocket session: authenticate, then consume joinBoard
// messages until the peer goes away.
func (g *Gateway) Handle(c echo.Context) error {
	token := c.QueryParam("token")
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if auth == "" && token != "" {
		auth = "Bearer " + token
	}
	userID, err := g.auth.UserIDFromAuthHeader(auth)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}

	ws, err := g.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	conn := &wsConn{ws: ws}
	defer func() {
		g.registry.Disconnect(userID)
		_ = ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && g.logger != nil {
				g.logger.WithFields(log.Fields{"user": userID, "error": err.Error()}).Debug("websocket closed")
			}
			return nil
		}
		var msg clientMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Event == "joinBoard" && msg.BoardID != "" {
			g.registry.JoinBoard(conn, userID, msg.BoardID)
		}
	}
}

// wsConn serializes writes on one websocket connection; gorilla allows a
// single concurrent writer.
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *wsConn) Send(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(serverMessage{Event: event, Data: payload})
}
