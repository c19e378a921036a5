package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"wellnest/llm"
)

func newChatProxyRouter(client *llm.Client) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/chat", NewLLMHandler(client).Chat)
	return r
}

func postChat(t *testing.T, r *gin.Engine, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("encode body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/chat", &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestChatProxyReturnsReply(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "take a deep breath"}},
			},
		})
	}))
	defer upstream.Close()

	client := llm.New(llm.Config{APIURL: upstream.URL, APIKey: "k", Timeout: 5 * time.Second})
	r := newChatProxyRouter(client)

	w := postChat(t, r, gin.H{"messages": []gin.H{{"role": "user", "content": "I feel anxious"}}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var result llm.Result
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Reply != "take a deep breath" {
		t.Errorf("reply = %q, want %q", result.Reply, "take a deep breath")
	}
}

func TestChatProxyRejectsEmptyTurns(t *testing.T) {
	client := llm.New(llm.Config{APIURL: "http://127.0.0.1:0", APIKey: "k", Timeout: time.Second})
	r := newChatProxyRouter(client)

	w := postChat(t, r, gin.H{"messages": []gin.H{}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
}

func TestChatProxyMapsProviderFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer upstream.Close()

	client := llm.New(llm.Config{APIURL: upstream.URL, APIKey: "k", Timeout: 5 * time.Second})
	r := newChatProxyRouter(client)

	w := postChat(t, r, gin.H{"messages": []gin.H{{"role": "user", "content": "hi"}}})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502: %s", w.Code, w.Body.String())
	}

	var body struct {
		ProviderStatus int    `json:"providerStatus"`
		ProviderBody   string `json:"providerBody"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.ProviderStatus != http.StatusTooManyRequests {
		t.Errorf("providerStatus = %d, want 429", body.ProviderStatus)
	}
}
