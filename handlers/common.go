package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"wellnest/llm"
	"wellnest/models"
	"wellnest/store"
)

const requestTimeout = 10 * time.Second

// Broadcaster fans relay events out to a conversation's room. The relay hub
// implements it; tests inject a recording fake.
type Broadcaster interface {
	BroadcastEvent(room, eventType string, payload interface{})
}

func requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

func currentUserID(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.GetString("userId"))
	if err != nil {
		return primitive.NilObjectID, false
	}
	return id, true
}

// canAccess allows listed participants and administrators.
func canAccess(c *gin.Context, conv *models.Conversation, userID primitive.ObjectID) bool {
	return conv.HasParticipant(userID) || c.GetString("userRole") == models.UserRoleAdmin
}

// respondError maps errors onto the HTTP taxonomy: validation 400, missing
// resource 404, provider failure 502/504, anything else a generic 500 with
// no internal detail leaked.
func respondError(c *gin.Context, err error) {
	var verr *store.ValidationError
	var uerr *llm.UpstreamError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, llm.ErrTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Provider timed out"})
	case errors.As(err, &uerr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":          "Provider error",
			"providerStatus": uerr.Status,
			"providerBody":   uerr.Body,
		})
	default:
		log.Printf("internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
