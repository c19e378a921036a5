package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"wellnest/models"
	"wellnest/relay"
	"wellnest/store"
)

// ChatHandler serves the conversation and message REST endpoints. It writes
// through the same store as the relay so both views stay consistent.
type ChatHandler struct {
	store    store.Store
	hub      Broadcaster
	notifier *Notifier
}

func NewChatHandler(st store.Store, hub Broadcaster, notifier *Notifier) *ChatHandler {
	return &ChatHandler{store: st, hub: hub, notifier: notifier}
}

func (h *ChatHandler) GetOrCreateConversation(c *gin.Context) {
	var req struct {
		OtherParticipantID string `json:"otherParticipantId" binding:"required"`
		Type               string `json:"type"`
		Title              string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user ID"})
		return
	}

	otherID, err := primitive.ObjectIDFromHex(req.OtherParticipantID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid participant ID"})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if _, err := h.store.GetUserByID(ctx, otherID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown participant"})
			return
		}
		respondError(c, err)
		return
	}

	conv, created, err := h.store.GetOrCreateConversation(ctx, userID, otherID, req.Type, req.Title)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, conv)
}

func (h *ChatHandler) ListConversations(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user ID"})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	convs, err := h.store.ListConversationsForUser(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	c.JSON(http.StatusOK, convs)
}

func (h *ChatHandler) GetMessages(c *gin.Context) {
	convID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation ID"})
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user ID"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	ctx, cancel := requestContext(c)
	defer cancel()

	conv, err := h.store.GetConversation(ctx, convID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !canAccess(c, conv, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied to conversation"})
		return
	}

	msgs, err := h.store.ListMessages(ctx, convID, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req struct {
		ConversationID string   `json:"conversationId" binding:"required"`
		Content        string   `json:"content" binding:"required"`
		Attachments    []string `json:"attachments"`
		Role           string   `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user ID"})
		return
	}

	convID, err := primitive.ObjectIDFromHex(req.ConversationID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation ID"})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	conv, err := h.store.GetConversation(ctx, convID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !canAccess(c, conv, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied to conversation"})
		return
	}

	msg, err := h.store.AppendMessage(ctx, convID, &userID, req.Role, req.Content, req.Attachments)
	if err != nil {
		respondError(c, err)
		return
	}

	// Live clients in the room hear REST-sent messages too.
	if h.hub != nil {
		h.hub.BroadcastEvent(convID.Hex(), relay.EventReceived, msg)
	}
	h.notifier.NotifyNewMessage(msg)

	c.JSON(http.StatusCreated, msg)
}

func (h *ChatHandler) MarkRead(c *gin.Context) {
	msgID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message ID"})
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user ID"})
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	msg, err := h.store.GetMessage(ctx, msgID)
	if err != nil {
		respondError(c, err)
		return
	}

	conv, err := h.store.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !canAccess(c, conv, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied to conversation"})
		return
	}

	if err := h.store.MarkRead(ctx, msgID, userID); err != nil {
		respondError(c, err)
		return
	}

	if h.hub != nil {
		h.hub.BroadcastEvent(conv.ID.Hex(), relay.EventRead, gin.H{
			"messageId": msgID.Hex(),
			"userId":    userID.Hex(),
		})
	}

	c.JSON(http.StatusOK, gin.H{"message": "Marked as read"})
}
