package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/fieldpresence/internal/api"
	"example.com/fieldpresence/internal/auth"
	"example.com/fieldpresence/internal/collector"
	"example.com/fieldpresence/internal/config"
	"example.com/fieldpresence/internal/observability"
	"example.com/fieldpresence/internal/presence"
	httptransport "example.com/fieldpresence/internal/transport/http"
)

func main() {
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.TracingEnabled,
		ServiceName: cfg.TracingServiceName,
	})
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer observability.ShutdownWithTimeout(shutdownTracing)

	client := collector.NewClient(cfg.CollectorBaseURL,
		auth.NewAuthorizer(cfg.AuthScheme, auth.StaticToken(cfg.AuthToken)),
		collector.WithTimeout(cfg.CollectorTimeout),
	)

	cache := presence.NewCache(cfg.PresenceCacheSize)
	poller := presence.NewPoller(client,
		presence.WithCache(cache),
		presence.WithIntervals(cfg.PollSingleInterval, cfg.PollAllInterval),
	)

	stream := presence.NewBroadcaster()
	poller.Subscribe(stream)

	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		defer pool.Close()

		store := presence.NewPostgresStore(pool)
		if records, err := store.Load(ctx, cfg.PresenceCacheSize); err != nil {
			log.Printf("presence warm-up skipped: %v", err)
		} else {
			cache.ReplaceAll(records, time.Now())
			log.Printf("presence cache warmed with %d agents", len(records))
		}
		poller.Subscribe(store)
	}

	followFeed := cfg.PresenceSource == "kafka"
	if followFeed && len(cfg.KafkaBrokers) == 0 {
		log.Fatalf("PRESENCE_SOURCE=kafka requires KAFKA_BROKERS")
	}

	if len(cfg.KafkaBrokers) > 0 && !followFeed {
		sink := presence.NewKafkaSink(cfg.KafkaBrokers, cfg.PresenceKafkaTopic)
		defer sink.Close()
		poller.Subscribe(sink)
	}

	if cfg.MQTTBroker != "" {
		mqttClient, err := presence.DialMQTT(cfg.MQTTBroker, "livemap-"+uuid.NewString())
		if err != nil {
			log.Fatalf("failed to connect to mqtt: %v", err)
		}
		defer mqttClient.Disconnect(250)
		poller.Subscribe(presence.NewMQTTSink(mqttClient, cfg.PresenceMQTTTopic))
	}

	feedDone := make(chan struct{})
	if followFeed {
		reader := presence.NewKafkaReader(cfg.KafkaBrokers, cfg.PresenceKafkaTopic, cfg.PresenceFeedGroup)
		defer reader.Close()
		feed := presence.NewFeed(reader, cache, []presence.Sink{stream})
		go func() {
			defer close(feedDone)
			if err := feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("presence feed stopped: %v", err)
			}
		}()
	} else {
		close(feedDone)
		poller.StartAll(ctx)
	}
	if cfg.AgentID != "" {
		if err := poller.StartSingle(ctx, cfg.AgentID); err != nil {
			log.Fatalf("failed to focus agent: %v", err)
		}
	}

	handler := api.NewHandler(api.WithPresence(poller), api.WithStream(stream))
	server := httptransport.NewServer(httptransport.ServerConfig{
		Address: cfg.StatusAddress,
	}, handler.Routes())

	log.Printf("livemap listening on %s", cfg.StatusAddress)
	if err := server.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
	poller.StopAll()
	poller.StopSingle()
	poller.Wait()
	<-feedDone
}
