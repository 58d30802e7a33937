package main

import (
	"context"
	"log"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"

	"github.com/example/chat-engine/config"
	"github.com/example/chat-engine/modules/api"
	"github.com/example/chat-engine/modules/broadcast"
	"github.com/example/chat-engine/modules/chat"
)

func main() {
	log.Println("=== Chat Engine - Fiber WebSocket + EventBus ===")

	cfg := config.Load()

	logLevel := mono.LogLevelInfo
	switch cfg.LogLevel {
	case "info":
	case "error":
		logLevel = mono.LogLevelError
	default:
		log.Printf("Unsupported LOG_LEVEL %q, using info", cfg.LogLevel)
	}

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.ShutdownTimeout),
		mono.WithLogLevel(logLevel),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	logger := app.Logger()

	// Create modules
	chatModule := chat.NewModule(logger, chat.Config{
		Options: chat.Options{
			TypingTTL:   cfg.TypingTTL,
			JoinHistory: cfg.RoomJoinHistory,
		},
		Sweeper: chat.SweeperConfig{
			Interval:  cfg.PresenceSweepInterval,
			Retention: cfg.PresenceRetention,
			BatchSize: cfg.PresenceSweepBatch,
		},
	})
	broadcastModule := broadcast.NewModule(logger)
	apiModule := api.NewModule(api.Config{
		Port:            cfg.Port,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		SendBuffer:      cfg.WSSendBuffer,
		MaxMessageBytes: cfg.WSMaxMessageBytes,
		Debug:           !cfg.IsProduction(),
	}, logger)

	// The hub and the dispatcher are not exposed via ServiceContainer, so
	// they are wired here.
	chatModule.SetEmitter(broadcastModule.GetHub())
	apiModule.SetHub(broadcastModule.GetHub())
	apiModule.SetGateway(chatModule.Dispatcher())

	// Register modules with the framework.
	// Order: independent modules first, then modules with dependencies
	// - chat: Core domain (ServiceProviderModule + EventEmitterModule)
	// - broadcast: WebSocket hub + event consumer
	// - api: Driving adapter (Fiber HTTP/WebSocket server, depends on chat)
	app.Register(chatModule)
	app.Register(broadcastModule)
	app.Register(apiModule)

	// Start application
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(cfg)

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo(cfg *config.Config) {
	log.Println("")
	log.Println("Application started successfully!")
	log.Printf("  Environment: %s", cfg.Env)
	log.Printf("  Typing TTL: %s, presence retention: %s", cfg.TypingTTL, cfg.PresenceRetention)
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost:%s):", cfg.Port)
	log.Println("  GET    /health                          - Health check")
	log.Println("  GET    /api/v1/users/:userId/rooms      - Rooms of a user")
	log.Println("  GET    /api/v1/users/active             - Online users")
	log.Println("  POST   /api/v1/rooms                    - Create a room")
	log.Println("  GET    /api/v1/rooms/:roomId            - Room details")
	log.Println("  GET    /api/v1/rooms/:roomId/messages   - Message history")
	log.Println("  POST   /api/v1/rooms/:roomId/users      - Add a member")
	log.Println("  DELETE /api/v1/rooms/:roomId/users      - Remove a member")
	log.Println("  POST   /api/v1/rooms/:roomId/broadcast  - Emit an event to a room")
	log.Println("  POST   /api/v1/messages/direct          - Admin direct message")
	log.Println("")
	log.Printf("WebSocket Endpoint (ws://localhost:%s/ws):", cfg.Port)
	log.Println("  Frames: {\"event\": \"...\", \"data\": {...}}")
	log.Println("  Start with user:join, then message:send, message:read, room:join,")
	log.Println("  room:leave, typing:start, typing:stop")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
