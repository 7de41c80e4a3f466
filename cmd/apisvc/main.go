package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"
	natsio "github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	config "github.com/woprlabs/wopr-services/configs"
	"github.com/woprlabs/wopr-services/internal/comm"
	"github.com/woprlabs/wopr-services/internal/gamesvc/db"
	handlers "github.com/woprlabs/wopr-services/internal/gamesvc/handlers"
	"github.com/woprlabs/wopr-services/internal/gamesvc/service"
	"github.com/woprlabs/wopr-services/internal/gamesvc/store"
	"github.com/woprlabs/wopr-services/internal/hub"
	nats "github.com/woprlabs/wopr-services/internal/nats"
)

const SERVICE_NAME = "api"

var instanceId string

func init() {
	instanceId = config.CreateUniqueInstance(SERVICE_NAME)
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
	config.LoadEnv(SERVICE_NAME)
}

func main() {

	// pg connection
	dbpool, err := db.Connect()
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer db.ClosePool()
	log.Printf("pg connection established successfully")

	if err := db.Migrate(context.Background(), dbpool); err != nil {
		log.Fatalf("Failed to migrate schema: %v", err)
	}

	gameStore := store.NewGameStore(dbpool)
	captureStore := store.NewCaptureStore(dbpool)
	jobStore := store.NewJobStore(dbpool)
	eventStore := store.NewEventStore(dbpool)
	snapshotStore := store.NewSnapshotStore(dbpool)
	sessionStore := store.NewSessionStore(dbpool)

	// Connect to NATS
	n, err := nats.Connect(SERVICE_NAME + "-" + instanceId)
	if err != nil {
		log.Errorf("Error: unable to connect to NATS server %v", err)
		os.Exit(0)
	}
	defer n.Conn.Close()
	log.Printf("NATS connection established successfully %s", n.Url)

	// idempotency cache is optional, captures still work without it
	var idem *service.Idempotency
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		redisOpts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		idem = service.NewIdempotency(redis.NewClient(redisOpts))
		log.Printf("redis idempotency cache enabled")
	} else {
		log.Warnf("REDIS_URL not set, capture idempotency keys are ignored")
	}

	gameService := service.NewGameService(gameStore, snapshotStore, eventStore)
	captureService := service.NewCaptureService(gameStore, captureStore, jobStore, eventStore, n.Conn, idem)
	jobService := service.NewJobService(jobStore, eventStore)
	sessionService := service.NewSessionService(sessionStore, n.Conn)

	// relay worker notices into the live stream hub
	notifyHub := hub.New()
	noticeSub, err := n.Conn.Subscribe(comm.TopicGameNotify, func(msg *natsio.Msg) {
		notice := comm.GameNotice{}
		if err := json.Unmarshal(msg.Data, &notice); err != nil {
			log.Errorf("Error decoding game notice %s", err)
			return
		}
		notifyHub.Publish(notice.GameID, hub.Message{Event: notice.Event, Data: notice.Data})
	})
	if err != nil {
		log.Errorf("Error: unable to subscribe to queue %v", err)
		os.Exit(0)
	}

	// Setup router
	r := chi.NewRouter()
	c := config.CORS()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(c.Handler)

	// to protect the service api from any over requests
	rateLimitStr := os.Getenv("RATE_LIMIT")
	rateLimit, err := strconv.Atoi(rateLimitStr)
	if err != nil {
		log.Fatalf("Invalid RATE_LIMIT value: %v", err)
	}
	r.Use(httprate.LimitByIP(rateLimit, 1*time.Minute))

	// Init handlers and routes
	h := handlers.NewHandler(gameService, captureService, jobService, sessionService, notifyHub)
	h.InitAuth()
	h.SetRoutes(r)

	// Create server with timeout settings. WriteTimeout would cut SSE
	// streams off, idle streams are kept alive by the handler itself.
	server := &http.Server{
		Addr:        ":" + os.Getenv("SERVICE_PORT"),
		Handler:     r,
		ReadTimeout: 60 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	log.Infof("%s service running at port %s", SERVICE_NAME, server.Addr)

	// Wait for interrupt signal to gracefully shutdown the server
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	noticeSub.Unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
