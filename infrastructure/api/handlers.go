package api

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/services"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

type Handler struct {
	log       *slog.Logger
	directory services.IChatDirectory
	health    HealthFunc
}

type createChatResponse struct {
	ChatID       string    `json:"chatId"`
	Participants [2]string `json:"participants"`
}

type messagesResponse struct {
	Messages []domain.Message `json:"messages"`
	Cursor   *string          `json:"cursor"`
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.health())
}

// ListChats returns the chats of the user given in the path.
func (h *Handler) ListChats(c *gin.Context) {
	chats, err := h.directory.ListChats(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, chats)
}

func (h *Handler) CreateChat(c *gin.Context) {
	var cmd domain.CreateChatCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		h.fail(c, errors.Validation("body must be a JSON object with participants"))
		return
	}
	chat, err := h.directory.CreateChat(c.Request.Context(), cmd)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, createChatResponse{ChatID: chat.ID, Participants: chat.Participants})
}

// ListMessages pages through a chat history, newest first.
func (h *Handler) ListMessages(c *gin.Context) {
	var cursor *string
	if value, ok := c.GetQuery("cursor"); ok && value != "" {
		cursor = lo.ToPtr(value)
	}
	messages, next, err := h.directory.History(c.Request.Context(), c.Param("id"), cursor)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, messagesResponse{Messages: messages, Cursor: next})
}

func (h *Handler) fail(c *gin.Context, err error) {
	kind := errors.KindOf(err)
	if kind == errors.KindStore {
		h.log.Error("gateway store failure", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(statusOf(kind), domain.Failure{Kind: string(kind), Message: errors.MessageOf(err)})
}

func statusOf(kind errors.Kind) int {
	switch kind {
	case errors.KindValidation:
		return http.StatusBadRequest
	case errors.KindNotFound:
		return http.StatusNotFound
	case errors.KindAuthorization:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
