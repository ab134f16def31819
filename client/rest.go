package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tripchat/module/chat/model"
	"tripchat/tools/errs"
)

// Rest talks to the chat REST endpoints. The realtime channel is separate,
// see Connection.
type Rest struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewRest(baseURL, token string) *Rest {
	return &Rest{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// ListConversations GET /conversations for the authenticated viewer.
func (r *Rest) ListConversations(ctx context.Context) ([]*model.ConversationView, error) {
	var out []*model.ConversationView
	if err := r.do(ctx, http.MethodGet, "/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateConversation POST /conversations. Privileged callers only; used by
// the session controller to promote a placeholder entry into a real row.
func (r *Rest) CreateConversation(ctx context.Context, recipientID string) (*model.ConversationView, error) {
	body := map[string]string{"recipientId": recipientID}
	var out model.ConversationView
	if err := r.do(ctx, http.MethodPost, "/conversations", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListMessages GET /messages/:conversationId in chronological order.
func (r *Rest) ListMessages(ctx context.Context, conversationID string) ([]*model.MessageView, error) {
	var out []*model.MessageView
	if err := r.do(ctx, http.MethodGet, "/messages/"+conversationID, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// do issues the request and unwraps the {"data": ...} envelope. Error
// responses carry the server's CodeError body and come back as one.
func (r *Rest) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errs.Wrap(err)
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.BaseURL+path, rd)
	if err != nil {
		return errs.Wrap(err)
	}
	req.Header.Set("Authorization", "Bearer "+r.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.HTTP.Do(req)
	if err != nil {
		return errs.ErrTransientIO.WrapMsg(err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.ErrTransientIO.WrapMsg(err.Error())
	}

	if resp.StatusCode != http.StatusOK {
		var ce errs.CodeError
		if jerr := json.Unmarshal(raw, &ce); jerr == nil && ce.Code != 0 {
			return &ce
		}
		return errs.ErrInternalServer.WrapMsg(fmt.Sprintf("%s %s: status %d", method, path, resp.StatusCode))
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return errs.ErrArgs.WrapMsg("bad response body: " + err.Error())
	}
	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return errs.ErrArgs.WrapMsg("bad response data: " + err.Error())
	}
	return nil
}
