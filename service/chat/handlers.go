package chat

import (
	"context"

	"tripchat/module/chat/model"
	"tripchat/tools/errs"
)

func (s *Server) registerHandlers() {
	s.disp.Register(model.EventJoinConversation, s.handleJoin)
	s.disp.Register(model.EventSendMessage, s.handleSend)
	s.disp.Register(model.EventMessagesSeen, s.handleSeen)
}

// handleJoin puts the connection into the conversation's room. Only a
// participant can join; joining leaves the previously watched room.
func (s *Server) handleJoin(conn *WsConn, f *model.Frame) error {
	p, err := model.DecodePayload[model.JoinPayload](f)
	if err != nil {
		return err
	}
	if p.ConversationID == "" {
		return errs.ErrArgs.WrapMsg("conversationId required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerGrace)
	defer cancel()

	cv, err := s.svc.Store().GetConversation(ctx, p.ConversationID)
	if err != nil {
		return err
	}
	if !cv.HasParticipant(conn.UserID) {
		return errs.ErrNoPermission.WrapMsg("join " + p.ConversationID)
	}

	s.hub.Join(p.ConversationID, conn)
	return nil
}

// handleSend persists and fans out. The conn's authenticated identity wins
// over whatever sender id the payload claims.
func (s *Server) handleSend(conn *WsConn, f *model.Frame) error {
	p, err := model.DecodePayload[model.SendPayload](f)
	if err != nil {
		return err
	}
	if p.SenderID != "" && p.SenderID != conn.UserID {
		return errs.ErrNoPermission.WrapMsg("sender mismatch")
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerGrace)
	defer cancel()

	_, err = s.svc.Send(ctx, p.ConversationID, conn.UserID, p.Content, p.ClientMsgID)
	return err
}

func (s *Server) handleSeen(conn *WsConn, f *model.Frame) error {
	p, err := model.DecodePayload[model.SeenPayload](f)
	if err != nil {
		return err
	}
	if p.ViewerID != "" && p.ViewerID != conn.UserID {
		return errs.ErrNoPermission.WrapMsg("viewer mismatch")
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerGrace)
	defer cancel()

	return s.svc.MarkSeen(ctx, p.ConversationID, conn.UserID)
}
