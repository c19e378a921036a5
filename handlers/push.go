package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"wellnest/models"
	"wellnest/store"
)

// PushHandler manages Web Push subscriptions.
type PushHandler struct {
	store          store.PushStore
	vapidPublicKey string
}

func NewPushHandler(st store.PushStore, vapidPublicKey string) *PushHandler {
	return &PushHandler{store: st, vapidPublicKey: vapidPublicKey}
}

func (h *PushHandler) VapidPublicKey(c *gin.Context) {
	if h.vapidPublicKey == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Push notifications not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"publicKey": h.vapidPublicKey})
}

func (h *PushHandler) Subscribe(c *gin.Context) {
	var req struct {
		Endpoint string `json:"endpoint" binding:"required"`
		Keys     struct {
			P256dh string `json:"p256dh" binding:"required"`
			Auth   string `json:"auth" binding:"required"`
		} `json:"keys" binding:"required"`
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

	ctx, cancel := requestContext(c)
	defer cancel()

	sub := models.PushSubscription{
		UserID: userID,
		Sub: webpush.Subscription{
			Endpoint: req.Endpoint,
			Keys: webpush.Keys{
				P256dh: req.Keys.P256dh,
				Auth:   req.Keys.Auth,
			},
		},
		CreatedAt: time.Now().UnixMilli(),
	}

	if err := h.store.SaveSubscription(ctx, &sub); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Subscribed"})
}

// Notifier pushes new-message notifications to every participant other than
// the sender. Best-effort: failures are logged, never surfaced.
type Notifier struct {
	store           store.Store
	vapidPublicKey  string
	vapidPrivateKey string
	subscriber      string
}

func NewNotifier(st store.Store, vapidPublicKey, vapidPrivateKey, subscriber string) *Notifier {
	if subscriber == "" {
		subscriber = "mailto:support@wellnest.app"
	}
	return &Notifier{
		store:           st,
		vapidPublicKey:  vapidPublicKey,
		vapidPrivateKey: vapidPrivateKey,
		subscriber:      subscriber,
	}
}

func (n *Notifier) NotifyNewMessage(msg *models.Message) {
	if n == nil || n.vapidPrivateKey == "" || msg == nil {
		return
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("panic in push notification: %v", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		conv, err := n.store.GetConversation(ctx, msg.ConversationID)
		if err != nil {
			log.Printf("push notify: conversation lookup: %v", err)
			return
		}

		title := "New message"
		if msg.SenderID != nil {
			if sender, err := n.store.GetUserByID(ctx, *msg.SenderID); err == nil && sender.Name != "" {
				title = sender.Name + " sent a message"
			}
		}

		payload, _ := json.Marshal(map[string]string{
			"title":          title,
			"body":           msg.Content,
			"conversationId": msg.ConversationID.Hex(),
		})

		for _, participant := range conv.Participants {
			if msg.SenderID != nil && participant == *msg.SenderID {
				continue
			}

			subs, err := n.store.SubscriptionsForUser(ctx, participant)
			if err != nil {
				log.Printf("push notify: subscriptions for %s: %v", participant.Hex(), err)
				continue
			}

			for i := range subs {
				resp, err := webpush.SendNotification(payload, &subs[i].Sub, &webpush.Options{
					Subscriber:      n.subscriber,
					VAPIDPublicKey:  n.vapidPublicKey,
					VAPIDPrivateKey: n.vapidPrivateKey,
					TTL:             30,
				})
				if err != nil {
					log.Printf("push notify: send to %s: %v", participant.Hex(), err)
					continue
				}
				resp.Body.Close()
			}
		}
	}()
}
