// Package main is the realtime gateway process: WebSocket hub, the
// order-lifecycle event consumer, and the job-offer expiry sweep.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"porterdispatch/internal/app/bootstrap"
)

// Gateway process entrypoint.
// Data flow:
// 1) Load config.
// 2) Build app wiring (ports + adapters + use cases).
// 3) Run the HTTP/WebSocket server, event consumer, and expiry sweep until
//    signalled to stop.
func main() {
	log.Println("gateway-api starting")
	app, err := bootstrap.BuildGatewayAPI()
	if err != nil {
		log.Fatalf("bootstrap gateway api failed: %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Printf("gateway api shutdown close failed: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("gateway api stopped with error: %v", err)
	}
}
