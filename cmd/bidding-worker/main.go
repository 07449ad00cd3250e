// Package main is the bidding engine worker process: outbox relay, expiry
// reaper, and the domain-event consumer.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"porterdispatch/internal/app/bootstrap"
)

// Worker process entrypoint.
// Data flow:
// 1) Load config.
// 2) Build app wiring.
// 3) Run consumers/schedulers until signalled to stop.
func main() {
	log.Println("bidding-worker starting")
	app, err := bootstrap.BuildBiddingWorker()
	if err != nil {
		log.Fatalf("bootstrap bidding worker failed: %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Printf("bidding worker shutdown close failed: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("bidding worker stopped with error: %v", err)
	}
}
