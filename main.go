package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"wellnest/database"
	"wellnest/handlers"
	"wellnest/llm"
	"wellnest/relay"
	"wellnest/routes"
	"wellnest/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}
	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		log.Fatal("MONGODB_URI is required")
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "wellnest"
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	db := database.New(mongoURI, dbName)
	var connectErr error
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		connectErr = db.Connect(ctx)
		cancel()
		if connectErr == nil {
			break
		}
		log.Printf("MongoDB connection attempt %d failed: %v", attempt, connectErr)
		time.Sleep(time.Duration(attempt) * 2 * time.Second)
	}
	if connectErr != nil {
		log.Fatalf("Could not connect to MongoDB: %v", connectErr)
	}
	log.Println("Connected to MongoDB")

	st := store.NewMongoStore(db)

	var bridge relay.Bridge
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rb := relay.NewRedisBridge(addr)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rb.Ping(ctx); err != nil {
			log.Printf("Redis unreachable, running single-instance: %v", err)
		} else {
			bridge = rb
			log.Println("Redis bridge enabled")
		}
		cancel()
	}

	hub := relay.NewHub(st, bridge)
	go hub.Run()

	vapidPublic := os.Getenv("VAPID_PUBLIC_KEY")
	vapidPrivate := os.Getenv("VAPID_PRIVATE_KEY")
	if vapidPublic == "" || vapidPrivate == "" {
		priv, pub, err := webpush.GenerateVAPIDKeys()
		if err != nil {
			log.Printf("Could not generate VAPID keys, push disabled: %v", err)
		} else {
			vapidPrivate, vapidPublic = priv, pub
			log.Println("Generated ephemeral VAPID keys; set VAPID_PUBLIC_KEY/VAPID_PRIVATE_KEY to persist subscriptions across restarts")
		}
	}

	notifier := handlers.NewNotifier(st, vapidPublic, vapidPrivate, os.Getenv("VAPID_SUBSCRIBER"))
	hub.SetMessageHook(notifier.NotifyNewMessage)

	llmClient := llm.New(llm.Config{
		APIURL:  os.Getenv("LLM_API_URL"),
		APIKey:  os.Getenv("LLM_API_KEY"),
		Model:   os.Getenv("LLM_MODEL"),
		Timeout: 30 * time.Second,
	})

	var origins []string
	if raw := os.Getenv("CLIENT_ORIGINS"); raw != "" {
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}

	router := routes.SetupRouter(routes.Deps{
		Store:          st,
		Hub:            hub,
		LLM:            llmClient,
		Notifier:       notifier,
		JWTSecret:      jwtSecret,
		ClientOrigins:  origins,
		VapidPublicKey: vapidPublic,
		CloudinaryURL:  os.Getenv("CLOUDINARY_URL"),
	})

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "wellnest"})
	})
	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "up"})
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server listening on :%s", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
	if err := db.Disconnect(ctx); err != nil {
		log.Printf("MongoDB disconnect: %v", err)
	}
	log.Println("Stopped")
}
