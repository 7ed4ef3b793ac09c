package main

import (
	"context"
	"log"

	"note-editor-core/internal/bootstrap"
	"note-editor-core/internal/config"
	"note-editor-core/internal/server"
	"note-editor-core/internal/tracer"
)

func main() {
	// 0. Initialize Tracer (no-op unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer()
	defer shutdownTracer(context.Background())

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(cfg)

	// 3. Start Background Services
	go func() {
		log.Println("Background: Starting Notification Dispatcher...")
		if err := container.DispatcherService.Start(context.Background()); err != nil {
			log.Printf("Background Dispatcher Error: %v", err)
		}
	}()

	// 4. Initialize Server
	srv := server.New(cfg, container)

	// 5. Run Server
	log.Fatal(srv.Run())
}
