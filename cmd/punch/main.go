// Command punch drives a check-in, check-out or store visit through a running
// fieldagent, so duty transitions start and stop that agent's location tracking.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"example.com/fieldpresence/internal/config"
)

func main() {
	cfg := config.Load()

	kind := flag.String("kind", "check_in", "punch kind: check_in, check_out or store_visit")
	photoPath := flag.String("photo", "", "path to the evidence photo")
	storeID := flag.String("store", "", "store id for store visits")
	retries := flag.Int("retries", 1, "location retries after an acquisition timeout")
	agentURL := flag.String("agent", agentBaseURL(cfg.StatusAddress), "base URL of the fieldagent API")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := newAgentClient(*agentURL, cfg.CollectorTimeout+cfg.AcquisitionDeadline)
	if err := run(ctx, client, *kind, *photoPath, *storeID, *retries); err != nil {
		log.Fatalf("punch failed: %v", err)
	}
}

func run(ctx context.Context, client *agentClient, kind, photoPath, storeID string, retries int) error {
	photo, err := os.ReadFile(photoPath)
	if photoPath == "" || err != nil {
		return fmt.Errorf("-photo must name a readable file: %v", err)
	}

	view, err := client.begin(ctx, kind, storeID)
	if err != nil {
		return err
	}
	if view.Bundle != nil {
		log.Printf("punch %s started (%s)", view.Bundle.ID, view.State)
	}

	// Leave the agent idle if this punch does not complete.
	completed := false
	defer func() {
		if !completed {
			abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if _, err := client.abort(abortCtx); err != nil {
				log.Printf("abort punch: %v", err)
			}
		}
	}()

	view, err = client.attachPhoto(ctx, photoPath, photo)
	for attempt := 0; hasType(err, "acquisition_timeout") && attempt < retries; attempt++ {
		log.Printf("location timed out, retrying (%d/%d)", attempt+1, retries)
		view, err = client.retryLocation(ctx)
	}
	if err != nil {
		return err
	}
	if view.DistanceMeters != nil && view.Bundle != nil && view.Bundle.Target != nil {
		log.Printf("%.0fm from %s (radius %.0fm)", *view.DistanceMeters, view.Bundle.Target.ID, view.Bundle.Target.RadiusMeters)
	}

	view, err = client.submit(ctx)
	if err != nil {
		var failure *agentError
		if errors.As(err, &failure) && failure.view.DistanceMeters != nil && failure.view.RadiusMeters != nil {
			return fmt.Errorf("you are %.0fm from the store, move within %.0fm and try again",
				*failure.view.DistanceMeters, *failure.view.RadiusMeters)
		}
		return err
	}
	completed = true

	receipt := ""
	if view.Receipt != nil {
		receipt = view.Receipt.ID
	}
	log.Printf("%s accepted (receipt=%s, now %s)", kind, receipt, view.State)
	if view.TrackingError != "" {
		log.Printf("location tracking did not start: %s", view.TrackingError)
	}
	return nil
}

func agentBaseURL(statusAddress string) string {
	if strings.HasPrefix(statusAddress, ":") {
		return "http://127.0.0.1" + statusAddress
	}
	return "http://" + statusAddress
}
