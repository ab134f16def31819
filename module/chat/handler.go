package chat

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tripchat/logger"
	midsec "tripchat/middleware/security"
	"tripchat/module/chat/model"
	chatsvc "tripchat/module/chat/service"
	"tripchat/service/storage"
	"tripchat/tools/errs"
)

// Handler serves the REST side of the chat subsystem. The realtime side
// lives in the gateway; both share one ChatService.
type Handler struct {
	svc *chatsvc.ChatService
}

func NewHandler(svc *chatsvc.ChatService) *Handler {
	return &Handler{svc: svc}
}

// ListConversations GET /conversations
func (h *Handler) ListConversations(c *gin.Context) {
	viewerID, role := midsec.Identity(c)

	views, err := h.svc.ListConversations(c.Request.Context(), viewerID, role)
	if err != nil {
		abortWith(c, err)
		return
	}
	h.decoratePresence(c, viewerID, views)
	c.JSON(http.StatusOK, gin.H{"data": views})
}

type createConversationReq struct {
	RecipientID string `json:"recipientId" binding:"required"`
}

// CreateConversation POST /conversations (privileged)
func (h *Handler) CreateConversation(c *gin.Context) {
	callerID, role := midsec.Identity(c)

	var req createConversationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, errs.ErrArgs.WrapMsg(err.Error()))
		return
	}

	view, err := h.svc.OpenConversation(c.Request.Context(), callerID, role, req.RecipientID)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

// ListMessages GET /messages/:conversationId
func (h *Handler) ListMessages(c *gin.Context) {
	viewerID, _ := midsec.Identity(c)
	conversationID := c.Param("conversationId")

	msgs, err := h.svc.History(c.Request.Context(), viewerID, conversationID)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": msgs})
}

// decoratePresence fills IsOnline for each entry's other participant.
// Presence is best effort; a redis hiccup never fails the list.
func (h *Handler) decoratePresence(c *gin.Context, viewerID string, views []*model.ConversationView) {
	if !storage.Enabled() || len(views) == 0 {
		return
	}
	others := make([]string, 0, len(views))
	for _, v := range views {
		for _, p := range v.Participants {
			if p.UserID != viewerID {
				others = append(others, p.UserID)
			}
		}
	}
	online, err := storage.PresenceLookupMany(c.Request.Context(), others)
	if err != nil {
		logger.Warnf("[ChatHandler] presence lookup err=%v", err)
		return
	}
	for _, v := range views {
		for _, p := range v.Participants {
			if p.UserID != viewerID && online[p.UserID] {
				v.IsOnline = true
			}
		}
	}
}

func abortWith(c *gin.Context, err error) {
	code, ok := errs.CodeOf(err)
	if !ok {
		code = errs.ErrInternalServer
	}
	c.AbortWithStatusJSON(httpStatus(code.Code), code)
}

func httpStatus(code int) int {
	switch code {
	case errs.RecordNotFound:
		return http.StatusNotFound
	case errs.NoPermission:
		return http.StatusForbidden
	case errs.ArgsError, errs.ContentEmpty:
		return http.StatusBadRequest
	case errs.TokenExpired, errs.TokenInvalid:
		return http.StatusUnauthorized
	case errs.TransientIO, errs.ChannelNotReady:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
