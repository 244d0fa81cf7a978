// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/arcadehalls/relay/internal/middleware"
	"github.com/arcadehalls/relay/internal/protocol"
	"github.com/arcadehalls/relay/internal/session"
)

// WSHandler accepts a websocket, registers a session, greets it, and runs the
// read/write pumps until the connection dies. Lobby cleanup runs before the
// registry releases the session, so cleanup can still read its state.
func WSHandler(logger *logrus.Logger, srv *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"relay"},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "relay" {
			c.Close(BadSubprotocolError, "client must speak the relay subprotocol")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sess := session.New(cancel)
		srv.Sessions.Register(sess)
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		sess.Write(protocol.Welcome{
			Type:      protocol.TypeWelcome,
			SessionID: sess.ID.String(),
			Message:   "you are connected to notification server please subscribe",
		})

		go writePump(ctx, c, sess, logger)
		readPump(ctx, c, srv, sess, logger)

		// Order matters: lobby cleanup reads the session's state, release
		// destroys it.
		srv.Coord.DisconnectCleanup(context.Background(), sess.ID)
		srv.Sessions.Release(sess.ID)
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, nil)
	}
}

// readPump decodes inbound frames and routes them one at a time. Any read
// error or context cancellation ends the connection.
func readPump(ctx context.Context, c *websocket.Conn, srv *Server, sess *session.Session, logger *logrus.Logger) {
	for {
		typ, raw, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				logger.Infof("session %s: websocket closed normally", sess.ID)
			} else if !strings.Contains(err.Error(), "context canceled") {
				logger.Warnf("session %s: read error: %v", sess.ID, err)
				c.Close(ReadFailureError, "read failure")
			}
			return
		}
		if typ != websocket.MessageText {
			logger.Warnf("session %s: ignoring non-text message type %d", sess.ID, typ)
			continue
		}

		msg, err := protocol.Decode(raw)
		if err != nil {
			logger.Warnf("session %s: invalid json: %v", sess.ID, err)
			sess.Write(protocol.ErrorReply{Type: protocol.TypeError, Message: "Invalid JSON format"})
			continue
		}
		srv.Route(ctx, sess, msg)
	}
}

// writePump drains the session's outbound channel onto the socket and pings
// on an interval so half-open connections surface as errors.
func writePump(ctx context.Context, c *websocket.Conn, sess *session.Session, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-sess.Out:
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Warnf("session %s: failed to marshal outgoing message: %v", sess.ID, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("session %s: write failed: %v", sess.ID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("session %s: ping failed, assuming disconnect: %v", sess.ID, err)
				return
			}
		}
	}
}
