package routes

import (
	"net/http"
	"time"

	"shepsigrad-server/utils"

	"github.com/gorilla/websocket"
	"github.com/kataras/iris/v12"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ConnectRealtime upgrades the request into a live channel session. The
// route sits behind the access-token verifier, so a connection is always
// bound to a verified user id; anonymous sockets never join the hub.
func ConnectRealtime(ctx iris.Context) {
	claims := utils.ClaimsFromContext(ctx)
	if claims == nil {
		utils.CreateError(iris.StatusUnauthorized, utils.CodeUnauthorized, "missing token", ctx)
		return
	}

	conn, err := upgrader.Upgrade(ctx.ResponseWriter(), ctx.Request(), nil)
	if err != nil {
		utils.CreateError(iris.StatusBadRequest, utils.CodeValidation, "upgrade failed", ctx)
		return
	}

	session := hub.Add(claims.ID, conn)

	// Reader loop: the server only pushes; inbound frames are pongs and
	// eventual close.
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		session.Touch()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
		session.Touch()
	}

	hub.Remove(session)
}
