package chat

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tripchat/logger"
	midsec "tripchat/middleware/security"
	"tripchat/module/chat/model"
	chatsvc "tripchat/module/chat/service"
	"tripchat/service/storage"
	"tripchat/tools/safe"
)

const (
	readLimit    = 64 * 1024
	pongWait     = 75 * time.Second
	presenceTTL  = 2 * time.Minute
	handlerGrace = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the websocket gateway: it authenticates the upgrade, owns the
// room hub, and feeds inbound frames to the dispatcher.
type Server struct {
	nodeID string
	hub    *RoomHub
	disp   *Dispatcher
	svc    *chatsvc.ChatService
}

func NewServer(nodeID string, hub *RoomHub, svc *chatsvc.ChatService) *Server {
	s := &Server{
		nodeID: nodeID,
		hub:    hub,
		disp:   NewDispatcher(),
		svc:    svc,
	}
	s.registerHandlers()
	return s
}

func (s *Server) Hub() *RoomHub { return s.hub }

// HandleWS upgrades /chat. The session token rides the Authorization header
// or a token query parameter; an invalid token never upgrades.
func (s *Server) HandleWS(c *gin.Context) {
	claims, err := midsec.ParseToken(midsec.BearerToken(c))
	if err != nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[HandleWS] upgrade error: %v", err)
		return
	}

	conn := NewWsConn(claims.UserID, claims.Role, ws)
	s.hub.Attach(conn)
	safe.Go(conn.WritePump)

	ctx := context.Background()
	if err := storage.PresenceOnline(ctx, conn.UserID, s.nodeID, presenceTTL); err != nil {
		logger.Warnf("[HandleWS] presence online user=%s err=%v", conn.UserID, err)
	}

	ws.SetReadLimit(readLimit)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		_ = storage.PresenceOnline(ctx, conn.UserID, s.nodeID, presenceTTL)
		return nil
	})

	logger.Infof("[HandleWS] connected user=%s role=%s conn=%s remote=%s",
		conn.UserID, conn.Role, conn.ConnID, conn.Remote)

	s.readLoop(conn, ws)

	// teardown: presence, rooms, write pump
	if err := storage.PresenceOffline(ctx, conn.UserID); err != nil {
		logger.Warnf("[HandleWS] presence offline user=%s err=%v", conn.UserID, err)
	}
	s.hub.Detach(conn)
	conn.Close(websocket.CloseNormalClosure, "bye")
	logger.Infof("[HandleWS] disconnected user=%s conn=%s", conn.UserID, conn.ConnID)
}

// readLoop reads until the peer goes away. A handler error is logged and
// the loop keeps going; only transport errors end the session.
func (s *Server) readLoop(conn *WsConn, ws *websocket.Conn) {
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[WS] peer closed user=%s err=%v", conn.UserID, err)
			} else {
				logger.Infof("[WS] read err user=%s err=%v", conn.UserID, err)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))

		frame, perr := model.ParseFrame(data)
		if perr != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Infof("[WS] bad frame user=%s err=%v sample=%q", conn.UserID, perr, sample)
			continue
		}

		if err := s.disp.Dispatch(conn, frame); err != nil {
			logger.Infof("[WS] handler err user=%s type=%s err=%v", conn.UserID, frame.Type, err)
		}
	}
}
