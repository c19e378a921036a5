package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"wellnest/models"
	"wellnest/relay"
	"wellnest/store"
)

type recordedEvent struct {
	room      string
	eventType string
	payload   interface{}
}

type fakeBroadcaster struct {
	events []recordedEvent
}

func (f *fakeBroadcaster) BroadcastEvent(room, eventType string, payload interface{}) {
	f.events = append(f.events, recordedEvent{room: room, eventType: eventType, payload: payload})
}

// asUser fakes the auth middleware: requests carry the given identity without
// a real token.
func asUser(userID primitive.ObjectID, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userId", userID.Hex())
		c.Set("userRole", role)
		c.Next()
	}
}

func newTestUser(t *testing.T, st *store.MemoryStore, name string) *models.User {
	t.Helper()
	user := &models.User{
		ID:        primitive.NewObjectID(),
		Email:     fmt.Sprintf("%s@example.com", name),
		Name:      name,
		Role:      models.UserRoleMember,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := st.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return user
}

func newChatRouter(st *store.MemoryStore, hub Broadcaster, userID primitive.ObjectID, role string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewChatHandler(st, hub, nil)

	r := gin.New()
	api := r.Group("/api", asUser(userID, role))
	api.POST("/conversations/get-or-create", h.GetOrCreateConversation)
	api.GET("/conversations", h.ListConversations)
	api.GET("/conversations/:id/messages", h.GetMessages)
	api.POST("/conversations/messages", h.SendMessage)
	api.POST("/messages/:id/read", h.MarkRead)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetOrCreateConversationIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	alice := newTestUser(t, st, "alice")
	bob := newTestUser(t, st, "bob")

	r := newChatRouter(st, nil, alice.ID, models.UserRoleMember)
	body := gin.H{"otherParticipantId": bob.ID.Hex()}

	w := doJSON(t, r, http.MethodPost, "/api/conversations/get-or-create", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("first call status = %d, want 201: %s", w.Code, w.Body.String())
	}
	var first models.Conversation
	if err := json.Unmarshal(w.Body.Bytes(), &first); err != nil {
		t.Fatalf("decode first: %v", err)
	}

	w = doJSON(t, r, http.MethodPost, "/api/conversations/get-or-create", body)
	if w.Code != http.StatusOK {
		t.Fatalf("second call status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var second models.Conversation
	if err := json.Unmarshal(w.Body.Bytes(), &second); err != nil {
		t.Fatalf("decode second: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("repeat call returned a new conversation: %s vs %s", first.ID.Hex(), second.ID.Hex())
	}

	// Same pair from bob's side resolves to the same conversation.
	rb := newChatRouter(st, nil, bob.ID, models.UserRoleMember)
	w = doJSON(t, rb, http.MethodPost, "/api/conversations/get-or-create", gin.H{"otherParticipantId": alice.ID.Hex()})
	if w.Code != http.StatusOK {
		t.Fatalf("swapped call status = %d, want 200: %s", w.Code, w.Body.String())
	}
}

func TestGetOrCreateConversationUnknownParticipant(t *testing.T) {
	st := store.NewMemoryStore()
	alice := newTestUser(t, st, "alice")

	r := newChatRouter(st, nil, alice.ID, models.UserRoleMember)
	w := doJSON(t, r, http.MethodPost, "/api/conversations/get-or-create", gin.H{
		"otherParticipantId": primitive.NewObjectID().Hex(),
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
}

func TestGetMessagesAccessControl(t *testing.T) {
	st := store.NewMemoryStore()
	alice := newTestUser(t, st, "alice")
	bob := newTestUser(t, st, "bob")
	eve := newTestUser(t, st, "eve")
	admin := newTestUser(t, st, "admin")

	conv, _, err := st.GetOrCreateConversation(context.Background(), alice.ID, bob.ID, "", "")
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	path := "/api/conversations/" + conv.ID.Hex() + "/messages"

	tests := []struct {
		name   string
		userID primitive.ObjectID
		role   string
		want   int
	}{
		{"participant", alice.ID, models.UserRoleMember, http.StatusOK},
		{"outsider", eve.ID, models.UserRoleMember, http.StatusForbidden},
		{"admin", admin.ID, models.UserRoleAdmin, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newChatRouter(st, nil, tt.userID, tt.role)
			w := doJSON(t, r, http.MethodGet, path, nil)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}

	t.Run("unknown conversation", func(t *testing.T) {
		r := newChatRouter(st, nil, alice.ID, models.UserRoleMember)
		w := doJSON(t, r, http.MethodGet, "/api/conversations/"+primitive.NewObjectID().Hex()+"/messages", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404: %s", w.Code, w.Body.String())
		}
	})
}

func TestSendMessagePersistsAndBroadcasts(t *testing.T) {
	st := store.NewMemoryStore()
	alice := newTestUser(t, st, "alice")
	bob := newTestUser(t, st, "bob")

	conv, _, err := st.GetOrCreateConversation(context.Background(), alice.ID, bob.ID, "", "")
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}

	hub := &fakeBroadcaster{}
	r := newChatRouter(st, hub, alice.ID, models.UserRoleMember)

	w := doJSON(t, r, http.MethodPost, "/api/conversations/messages", gin.H{
		"conversationId": conv.ID.Hex(),
		"content":        "hello there",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	var msg models.Message
	if err := json.Unmarshal(w.Body.Bytes(), &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if msg.Content != "hello there" {
		t.Errorf("content = %q, want %q", msg.Content, "hello there")
	}
	if msg.SenderID == nil || *msg.SenderID != alice.ID {
		t.Errorf("senderId = %v, want %s", msg.SenderID, alice.ID.Hex())
	}

	if len(hub.events) != 1 {
		t.Fatalf("broadcast events = %d, want 1", len(hub.events))
	}
	ev := hub.events[0]
	if ev.room != conv.ID.Hex() || ev.eventType != relay.EventReceived {
		t.Errorf("broadcast = (%s, %s), want (%s, %s)", ev.room, ev.eventType, conv.ID.Hex(), relay.EventReceived)
	}

	msgs, err := st.ListMessages(context.Background(), conv.ID, 1, 10)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 1 {
		t.Errorf("stored messages = %d, want 1", len(msgs))
	}
}

func TestSendMessageForbiddenForOutsider(t *testing.T) {
	st := store.NewMemoryStore()
	alice := newTestUser(t, st, "alice")
	bob := newTestUser(t, st, "bob")
	eve := newTestUser(t, st, "eve")

	conv, _, err := st.GetOrCreateConversation(context.Background(), alice.ID, bob.ID, "", "")
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}

	hub := &fakeBroadcaster{}
	r := newChatRouter(st, hub, eve.ID, models.UserRoleMember)
	w := doJSON(t, r, http.MethodPost, "/api/conversations/messages", gin.H{
		"conversationId": conv.ID.Hex(),
		"content":        "let me in",
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403: %s", w.Code, w.Body.String())
	}
	if len(hub.events) != 0 {
		t.Errorf("broadcast events = %d, want 0", len(hub.events))
	}
}

func TestMessagePaginationQuery(t *testing.T) {
	st := store.NewMemoryStore()
	alice := newTestUser(t, st, "alice")
	bob := newTestUser(t, st, "bob")

	ctx := context.Background()
	conv, _, err := st.GetOrCreateConversation(ctx, alice.ID, bob.ID, "", "")
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	for i := 1; i <= 5; i++ {
		if _, err := st.AppendMessage(ctx, conv.ID, &alice.ID, "", fmt.Sprintf("m%d", i), nil); err != nil {
			t.Fatalf("append m%d: %v", i, err)
		}
	}

	r := newChatRouter(st, nil, alice.ID, models.UserRoleMember)
	w := doJSON(t, r, http.MethodGet, "/api/conversations/"+conv.ID.Hex()+"/messages?page=2&limit=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var msgs []models.Message
	if err := json.Unmarshal(w.Body.Bytes(), &msgs); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("page size = %d, want 2", len(msgs))
	}
	// Page 2 of 2 holds the middle slice, oldest first within the page.
	if msgs[0].Content != "m2" || msgs[1].Content != "m3" {
		t.Errorf("page = [%s, %s], want [m2, m3]", msgs[0].Content, msgs[1].Content)
	}
}

func TestMarkReadFlow(t *testing.T) {
	st := store.NewMemoryStore()
	alice := newTestUser(t, st, "alice")
	bob := newTestUser(t, st, "bob")

	ctx := context.Background()
	conv, _, err := st.GetOrCreateConversation(ctx, alice.ID, bob.ID, "", "")
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	msg, err := st.AppendMessage(ctx, conv.ID, &alice.ID, "", "unread", nil)
	if err != nil {
		t.Fatalf("append message: %v", err)
	}

	hub := &fakeBroadcaster{}
	r := newChatRouter(st, hub, bob.ID, models.UserRoleMember)

	for i := 0; i < 2; i++ {
		w := doJSON(t, r, http.MethodPost, "/api/messages/"+msg.ID.Hex()+"/read", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("call %d status = %d, want 200: %s", i+1, w.Code, w.Body.String())
		}
	}

	got, err := st.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if len(got.ReadBy) != 1 || got.ReadBy[0] != bob.ID {
		t.Errorf("readBy = %v, want exactly [%s]", got.ReadBy, bob.ID.Hex())
	}

	if len(hub.events) != 2 {
		t.Fatalf("broadcast events = %d, want 2", len(hub.events))
	}
	if hub.events[0].eventType != relay.EventRead {
		t.Errorf("event type = %s, want %s", hub.events[0].eventType, relay.EventRead)
	}

	t.Run("unknown message", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/api/messages/"+primitive.NewObjectID().Hex()+"/read", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404: %s", w.Code, w.Body.String())
		}
	})
}
