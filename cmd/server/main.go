package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"botfleet/backend/internal/broadcast"
	"botfleet/backend/internal/config"
	"botfleet/backend/internal/db"
	"botfleet/backend/internal/device/repository"
	"botfleet/backend/internal/qr"
	"botfleet/backend/internal/realtime"
	"botfleet/backend/internal/server"
	"botfleet/backend/internal/session"
	"botfleet/backend/internal/telemetry"
	telemetryotel "botfleet/backend/internal/telemetry/otel"
	"botfleet/backend/internal/telemetry/producer"
	"botfleet/backend/internal/waclient"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	var (
		devices  session.DeviceRepo
		database *sql.DB
	)
	if cfg.DatabaseURL != "" {
		database, err = db.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db: %v", err)
		}
		defer database.Close()
		devices = repository.NewPostgresRepository(database)
		log.Println("device records: postgres")
	} else {
		devices = repository.NewFileRepository(afero.NewOsFs(), cfg.DataDir)
		log.Printf("device records: file store under %s", cfg.DataDir)
	}

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, "botfleet-server", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()

	metrics, err := telemetry.NewMetrics(providers.MeterProvider)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}

	var kafkaProducer producer.Producer
	if brokers := cfg.KafkaBrokersList(); len(brokers) > 0 {
		kp, err := producer.NewKafkaProducer(brokers, cfg.EventsKafkaTopic)
		if err != nil {
			log.Fatalf("kafka: %v", err)
		}
		defer kp.Close()
		kafkaProducer = kp
		log.Printf("event pipeline: kafka topic %s", cfg.EventsKafkaTopic)
	}

	hub := broadcast.NewHub(cfg.ObserverQueueSize)
	hub.Subscribe(telemetry.NewSink(kafkaProducer, telemetryotel.NewEventEmitter(providers.LoggerProvider), metrics))

	manager := session.NewManager(waclient.NewWhatsmeowFactory(), devices, hub, session.Options{
		DataDir:   cfg.DataDir,
		QueueSize: cfg.SessionQueueSize,
		Policy:    session.NewReconnectPolicy(cfg.ReconnectDelayDuration(), nil),
		RenderQR:  qr.DataURL,
		Metrics:   metrics,
	})

	go func() {
		if err := manager.Bootstrap(ctx); err != nil {
			log.Printf("bootstrap: %v", err)
		}
	}()

	var pinger server.Pinger
	if database != nil {
		pinger = database
	}
	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.New(manager, pinger).Router(realtime.Handler(hub)),
	}
	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	manager.Shutdown(shutdownCtx)
	hub.Close()

	// Give in-flight async event emits time to reach the exporters.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
	log.Println("server stopped")
}
