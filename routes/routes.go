package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"wellnest/handlers"
	"wellnest/llm"
	"wellnest/middleware"
	"wellnest/relay"
	"wellnest/store"
)

// Deps carries everything the router wires together.
type Deps struct {
	Store          store.Store
	Hub            *relay.Hub
	LLM            *llm.Client
	Notifier       *handlers.Notifier
	JWTSecret      string
	ClientOrigins  []string
	VapidPublicKey string
	CloudinaryURL  string
}

func SetupRouter(deps Deps) *gin.Engine {
	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	if len(deps.ClientOrigins) > 0 {
		corsConfig.AllowOrigins = deps.ClientOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization", "X-Api-Key")
	router.Use(cors.New(corsConfig))

	authHandler := handlers.NewAuthHandler(deps.Store, deps.JWTSecret)
	chatHandler := handlers.NewChatHandler(deps.Store, deps.Hub, deps.Notifier)
	llmHandler := handlers.NewLLMHandler(deps.LLM)
	pushHandler := handlers.NewPushHandler(deps.Store, deps.VapidPublicKey)
	uploadHandler := handlers.NewUploadHandler(deps.CloudinaryURL)

	chatLimiter := middleware.NewIPRateLimiter(20, time.Minute)

	// Public surface.
	router.POST("/api/signup", authHandler.Signup)
	router.POST("/api/login", authHandler.Login)
	router.GET("/api/vapid-public-key", pushHandler.VapidPublicKey)
	router.POST("/api/chat", middleware.RateLimit(chatLimiter), llmHandler.Chat)

	// Everything else requires a valid token.
	api := router.Group("/api", middleware.RequireAuth(deps.Store, deps.JWTSecret))
	{
		api.GET("/me", authHandler.Me)
		api.POST("/conversations/get-or-create", chatHandler.GetOrCreateConversation)
		api.GET("/conversations", chatHandler.ListConversations)
		api.GET("/conversations/:id/messages", chatHandler.GetMessages)
		api.POST("/conversations/messages", chatHandler.SendMessage)
		api.POST("/messages/:id/read", chatHandler.MarkRead)
		api.POST("/subscribe", pushHandler.Subscribe)
		api.POST("/upload", uploadHandler.Upload)
	}

	router.GET("/ws", relay.ServeWS(deps.Hub, deps.JWTSecret))

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Route not found"})
	})

	return router
}
