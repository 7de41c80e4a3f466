package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	config "github.com/woprlabs/wopr-services/configs"
	"github.com/woprlabs/wopr-services/internal/gamesvc/archive"
	"github.com/woprlabs/wopr-services/internal/gamesvc/db"
	"github.com/woprlabs/wopr-services/internal/gamesvc/store"
	"github.com/woprlabs/wopr-services/internal/gamesvc/worker"
	nats "github.com/woprlabs/wopr-services/internal/nats"
	"github.com/woprlabs/wopr-services/internal/safefs"
)

const SERVICE_NAME = "work"

// every 5 minutes, retries CLOSING sessions whose archive run failed
const archiveSweepSpec = "*/5 * * * *"

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

	// processing endpoints; the stub keeps the pipeline runnable on a
	// laptop without the vision models
	var proc worker.Processor
	visionURL, validateURL := os.Getenv("VISION_URL"), os.Getenv("VALIDATE_URL")
	if visionURL != "" && validateURL != "" {
		proc = worker.NewHTTPProcessor(visionURL, validateURL)
		log.Printf("processing captures via %s and %s", visionURL, validateURL)
	} else {
		proc = worker.StubProcessor{}
		log.Warnf("VISION_URL/VALIDATE_URL not set, using stub processor")
	}

	w := worker.New(jobStore, captureStore, eventStore, snapshotStore, n.Conn, proc)
	jobSubs, err := w.Subscribe(n.Conn)
	if err != nil {
		log.Errorf("Error: unable to subscribe to queue %v", err)
		os.Exit(0)
	}

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "./data"
	}
	fs, err := safefs.New(dataDir)
	if err != nil {
		log.Fatalf("Failed to open data dir %s: %v", dataDir, err)
	}

	archiver := archive.New(sessionStore, eventStore, fs, n.Conn)
	archiveSub, err := archiver.Subscribe(n.Conn)
	if err != nil {
		log.Errorf("Error: unable to subscribe to queue %v", err)
		os.Exit(0)
	}

	c := cron.New()
	_, err = c.AddFunc(archiveSweepSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		if err := archiver.Sweep(ctx); err != nil {
			log.Errorf("Error running archive sweep %s", err)
		}
	})
	if err != nil {
		log.Fatalf("Invalid sweep schedule: %v", err)
	}
	c.Start()

	log.Infof("%s service consuming job queues", SERVICE_NAME)

	// Wait for interrupt signal to gracefully stop the worker
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	for _, sub := range jobSubs {
		sub.Unsubscribe()
	}
	archiveSub.Unsubscribe()

	cronCtx := c.Stop()
	select {
	case <-cronCtx.Done():
	case <-time.After(15 * time.Second):
		log.Warnf("sweep still running at shutdown deadline")
	}

	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
