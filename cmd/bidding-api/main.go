// Package main is the bidding engine API process.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"porterdispatch/internal/app/bootstrap"
)

// API process entrypoint.
// Data flow:
// 1) Load config.
// 2) Build app wiring (ports + adapters + use cases).
// 3) Start HTTP server until signalled to stop.
func main() {
	log.Println("bidding-api starting")
	app, err := bootstrap.BuildBiddingAPI()
	if err != nil {
		log.Fatalf("bootstrap bidding api failed: %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Printf("bidding api shutdown close failed: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("bidding api stopped with error: %v", err)
	}
}
