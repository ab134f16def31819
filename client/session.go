package client

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tripchat/logger"
	"tripchat/module/chat/model"
	"tripchat/tools/errs"
)

// SessionState is the lifecycle of the open conversation.
type SessionState int

const (
	StateIdle    SessionState = iota // nothing selected
	StateLoading                     // history fetch in flight
	StateActive                      // history loaded, room joined
)

// Capabilities parametrize one session controller across viewer roles
// instead of separate admin/user code paths.
type Capabilities struct {
	CanInitiate   bool // may open a conversation with an un-contacted user
	CanFilterList bool // may narrow the sidebar by role
}

func CapsForRole(role string) Capabilities {
	if role == model.RoleAdmin {
		return Capabilities{CanInitiate: true, CanFilterList: true}
	}
	return Capabilities{}
}

// LocalMessage is a message as the session holds it: the server's view plus
// the client-only failed marker for optimistic sends that timed out.
type LocalMessage struct {
	model.MessageView
	Failed bool `json:"failed,omitempty"`
}

type pendingSend struct {
	payload model.SendPayload
	timer   *time.Timer
}

const defaultSendTimeout = 10 * time.Second

// Session drives one open conversation: optimistic send, reconciliation
// with the server echo, and read-receipt emission. One instance per client,
// reused across conversation switches.
type Session struct {
	viewer model.User
	caps   Capabilities
	rest   *Rest
	conn   *Connection
	list   *ListController

	mu       sync.Mutex
	state    SessionState
	active   *model.ConversationView
	messages []*LocalMessage
	pending  map[string]*pendingSend // keyed by clientMsgId

	sendTimeout time.Duration
	now         func() int64 // unix ms
	onUpdate    func()
}

func NewSession(viewer model.User, rest *Rest, conn *Connection, list *ListController) *Session {
	s := &Session{
		viewer:      viewer,
		caps:        CapsForRole(viewer.Role),
		rest:        rest,
		conn:        conn,
		list:        list,
		pending:     make(map[string]*pendingSend),
		sendTimeout: defaultSendTimeout,
		now:         func() int64 { return time.Now().UnixMilli() },
	}
	conn.On(model.EventReceiveMessage, s.handleReceive)
	conn.On(model.EventUpdateSeenStatus, s.handleSeen)
	return s
}

func (s *Session) Caps() Capabilities { return s.caps }

// OnUpdate registers a callback fired after any state change, for the view
// layer to re-render on.
func (s *Session) OnUpdate(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = fn
}

// SetSendTimeout overrides how long an optimistic send may stay pending.
func (s *Session) SetSendTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendTimeout = d
}

// SetClock replaces the timestamp source.
func (s *Session) SetClock(now func() int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Active() *model.ConversationView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Messages returns the current local message list in order.
func (s *Session) Messages() []*LocalMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*LocalMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// SelectConversation opens a conversation: a placeholder entry is first
// promoted to a real row (privileged viewers only), then history is fetched,
// the room joined, and a seen-receipt emitted so the unread flag clears on
// both ends.
func (s *Session) SelectConversation(ctx context.Context, v *model.ConversationView) error {
	if v == nil {
		return errs.ErrArgs.WrapMsg("nil conversation")
	}

	if v.IsNew {
		if !s.caps.CanInitiate {
			return errs.ErrNoPermission.WrapMsg("cannot initiate conversations")
		}
		real, err := s.rest.CreateConversation(ctx, v.OtherParticipant(s.viewer.UserID))
		if err != nil {
			return err
		}
		s.list.Replace(v.OtherParticipant(s.viewer.UserID), real)
		v = real
	}

	s.mu.Lock()
	s.state = StateLoading
	s.active = v
	s.messages = nil
	s.mu.Unlock()
	s.notify()

	history, err := s.rest.ListMessages(ctx, v.ConversationID)
	if err != nil {
		s.mu.Lock()
		s.state = StateIdle
		s.active = nil
		s.mu.Unlock()
		s.notify()
		return err
	}

	if err := s.conn.Emit(model.EventJoinConversation, model.JoinPayload{ConversationID: v.ConversationID}); err != nil {
		logger.Warnf("[Session] join conv=%s err=%v", v.ConversationID, err)
	}
	if err := s.conn.Emit(model.EventMessagesSeen, model.SeenPayload{ConversationID: v.ConversationID, ViewerID: s.viewer.UserID}); err != nil {
		logger.Warnf("[Session] seen conv=%s err=%v", v.ConversationID, err)
	}

	s.mu.Lock()
	s.messages = make([]*LocalMessage, 0, len(history))
	for _, m := range history {
		lm := &LocalMessage{MessageView: *m}
		lm.AddReadBy(s.viewer.UserID) // mirrors the receipt just emitted
		s.messages = append(s.messages, lm)
	}
	s.state = StateActive
	s.mu.Unlock()

	s.list.ClearUnread(v.ConversationID)
	s.notify()
	return nil
}

// Deselect returns to Idle and drops the local message list. Pending sends
// are abandoned; the server copy, if it landed, shows on next open.
func (s *Session) Deselect() {
	s.mu.Lock()
	for id, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, id)
	}
	s.state = StateIdle
	s.active = nil
	s.messages = nil
	s.mu.Unlock()
	s.notify()
}

// SendMessage appends an optimistic local message and emits the send over
// the realtime channel. The returned id is the client token the server echo
// will carry back; reconciliation matches on it, never on content.
func (s *Session) SendMessage(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errs.ErrContentEmpty.Wrap()
	}

	s.mu.Lock()
	if s.state != StateActive || s.active == nil {
		s.mu.Unlock()
		return "", errs.ErrArgs.WrapMsg("no active conversation")
	}
	clientMsgID := uuid.NewString()
	convID := s.active.ConversationID

	temp := &LocalMessage{MessageView: model.MessageView{
		Message: model.Message{
			MessageID:      model.TempIDPrefix + clientMsgID,
			ConversationID: convID,
			SenderID:       s.viewer.UserID,
			ClientMsgID:    clientMsgID,
			Content:        text,
			ReadBy:         []string{s.viewer.UserID},
			CreatedAt:      s.now(),
		},
		Sender: s.viewer,
	}}
	s.messages = append(s.messages, temp)

	payload := model.SendPayload{
		ConversationID: convID,
		SenderID:       s.viewer.UserID,
		Content:        text,
		ClientMsgID:    clientMsgID,
	}
	s.pending[clientMsgID] = &pendingSend{
		payload: payload,
		timer:   time.AfterFunc(s.sendTimeout, func() { s.expirePending(clientMsgID) }),
	}
	s.mu.Unlock()

	s.list.Touch(&temp.MessageView, convID)
	s.notify()

	if err := s.conn.Emit(model.EventSendMessage, payload); err != nil {
		s.expirePending(clientMsgID)
		return clientMsgID, err
	}
	return clientMsgID, nil
}

// Retry re-emits a send whose optimistic message was marked failed.
func (s *Session) Retry(clientMsgID string) error {
	s.mu.Lock()
	p, ok := s.pending[clientMsgID]
	if !ok {
		s.mu.Unlock()
		return errs.ErrRecordNotFound.WrapMsg("no pending send " + clientMsgID)
	}
	for _, m := range s.messages {
		if m.ClientMsgID == clientMsgID {
			m.Failed = false
			m.CreatedAt = s.now()
		}
	}
	p.timer = time.AfterFunc(s.sendTimeout, func() { s.expirePending(clientMsgID) })
	payload := p.payload
	s.mu.Unlock()
	s.notify()

	return s.conn.Emit(model.EventSendMessage, payload)
}

// expirePending marks an unconfirmed optimistic message failed so the view
// can offer retry. The pending entry stays so Retry can find the payload.
func (s *Session) expirePending(clientMsgID string) {
	s.mu.Lock()
	if _, ok := s.pending[clientMsgID]; !ok {
		s.mu.Unlock()
		return
	}
	marked := false
	for _, m := range s.messages {
		if m.ClientMsgID == clientMsgID && m.IsTemp() && !m.Failed {
			m.Failed = true
			marked = true
		}
	}
	s.mu.Unlock()
	if marked {
		logger.Warnf("[Session] send unconfirmed clientMsgId=%s", clientMsgID)
		s.notify()
	}
}

// handleReceive applies a receive_message broadcast. Our own echo resolves
// the optimistic message carrying the same client token; anyone else's
// message in the active conversation appends and triggers a seen-receipt.
// Events for other conversations only touch the sidebar.
func (s *Session) handleReceive(f *model.Frame) {
	m, err := model.DecodeJSONPayload[model.MessageView](f)
	if err != nil {
		logger.Infof("[Session] bad receive_message err=%v", err)
		return
	}

	s.mu.Lock()
	activeID := ""
	if s.active != nil {
		activeID = s.active.ConversationID
	}

	emitSeen := false
	if s.state == StateActive && m.ConversationID == activeID {
		switch {
		case s.resolvePendingLocked(m):
			// own echo, reconciled in place
		case s.hasMessageLocked(m.MessageID):
			// duplicate delivery
		default:
			s.messages = append(s.messages, &LocalMessage{MessageView: *m})
			emitSeen = m.SenderID != s.viewer.UserID
		}
	}
	s.mu.Unlock()

	s.list.Touch(m, activeID)
	if emitSeen {
		if err := s.conn.Emit(model.EventMessagesSeen, model.SeenPayload{ConversationID: m.ConversationID, ViewerID: s.viewer.UserID}); err != nil {
			logger.Warnf("[Session] seen conv=%s err=%v", m.ConversationID, err)
		}
	}
	s.notify()
}

// resolvePendingLocked swaps the optimistic message whose client token
// matches the echo for the authoritative copy. Returns false for messages
// that are not an echo of ours.
func (s *Session) resolvePendingLocked(m *model.MessageView) bool {
	if m.SenderID != s.viewer.UserID || m.ClientMsgID == "" {
		return false
	}
	p, ok := s.pending[m.ClientMsgID]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(s.pending, m.ClientMsgID)
	for i, lm := range s.messages {
		if lm.ClientMsgID == m.ClientMsgID && lm.IsTemp() {
			s.messages[i] = &LocalMessage{MessageView: *m}
			return true
		}
	}
	// temp copy already gone (deselect raced the echo); append the real one
	s.messages = append(s.messages, &LocalMessage{MessageView: *m})
	return true
}

func (s *Session) hasMessageLocked(messageID string) bool {
	for _, lm := range s.messages {
		if lm.MessageID == messageID {
			return true
		}
	}
	return false
}

// handleSeen unions the reported viewer into every local message's read-by
// set when the broadcast targets the active conversation.
func (s *Session) handleSeen(f *model.Frame) {
	st, err := model.DecodePayload[model.SeenStatus](f)
	if err != nil {
		logger.Infof("[Session] bad update_seen_status err=%v", err)
		return
	}

	s.mu.Lock()
	if s.active != nil && s.active.ConversationID == st.ConversationID {
		for _, m := range s.messages {
			m.AddReadBy(st.ViewerID)
		}
	}
	s.mu.Unlock()

	if st.ViewerID == s.viewer.UserID {
		s.list.ClearUnread(st.ConversationID)
	}
	s.notify()
}

func (s *Session) notify() {
	s.mu.Lock()
	fn := s.onUpdate
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}
