package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"example.com/fieldpresence/internal/api"
	"example.com/fieldpresence/internal/auth"
	"example.com/fieldpresence/internal/collector"
	"example.com/fieldpresence/internal/config"
	"example.com/fieldpresence/internal/domain"
	"example.com/fieldpresence/internal/geo"
	"example.com/fieldpresence/internal/observability"
	"example.com/fieldpresence/internal/provider"
	"example.com/fieldpresence/internal/punch"
	"example.com/fieldpresence/internal/tracking"
	httptransport "example.com/fieldpresence/internal/transport/http"
	"example.com/fieldpresence/internal/uplink"
)

func main() {
	onDuty := flag.Bool("on-duty", false, "resume an open duty shift and start tracking immediately")
	flag.Parse()

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

	agentID := cfg.AgentID
	if agentID == "" {
		if agentID, err = auth.AgentFromToken(cfg.AuthToken); err != nil {
			log.Fatalf("AGENT_ID is not set and the auth token carries no agent: %v", err)
		}
	}

	route, err := provider.LoadRoute(cfg.RouteFile)
	if err != nil {
		log.Fatalf("failed to load route: %v", err)
	}
	device, err := provider.NewSimulated(route)
	if err != nil {
		log.Fatalf("failed to build location provider: %v", err)
	}

	accuracy, err := tracking.ParseAccuracy(cfg.SampleAccuracy)
	if err != nil {
		log.Fatalf("invalid SAMPLE_ACCURACY: %v", err)
	}

	client := collector.NewClient(cfg.CollectorBaseURL,
		auth.NewAuthorizer(cfg.AuthScheme, auth.StaticToken(cfg.AuthToken)),
		collector.WithTimeout(cfg.CollectorTimeout),
	)

	up := uplink.New(client, uplink.WithRateLimit(cfg.UplinkMaxPerSecond, 1), uplink.WithSendTimeout(cfg.CollectorTimeout))
	sampler := tracking.NewSampler(device, up, tracking.WatchOptions{
		Accuracy:          accuracy,
		MinInterval:       cfg.SampleMinInterval,
		MinDistanceMeters: cfg.SampleMinDistanceMeters,
	})

	machine := punch.NewMachine(agentID, client, device,
		punch.WithAcquisitionDeadline(cfg.AcquisitionDeadline),
		punch.WithTracker(sampler),
	)

	if *onDuty {
		if err := machine.MirrorSession(domain.TrackingSession{AgentID: agentID, State: domain.DutyOn, Since: time.Now().UTC()}); err != nil {
			log.Fatalf("failed to restore duty state: %v", err)
		}
		if err := sampler.Start(ctx); err != nil {
			log.Printf("location tracking not started: %v", err)
		}
	}

	var targets api.TargetLookup
	if loaded, err := geo.LoadTargets(cfg.GeofenceTargetsFile, cfg.GeofenceRadiusMeters); err != nil {
		log.Printf("store visits disabled: %v", err)
	} else {
		targets = loaded
	}

	handler := api.NewHandler(api.WithTracker(sampler), api.WithPunch(machine, targets))
	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.StatusAddress,
		WriteTimeout: 10 * time.Second,
	}, handler.Routes())

	log.Printf("fieldagent %s listening on %s", agentID, cfg.StatusAddress)
	if err := server.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}

	sampler.Stop()
	up.Wait()
}
