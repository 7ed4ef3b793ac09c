package bootstrap

import (
	"log"
	"time"

	"note-editor-core/internal/asset"
	"note-editor-core/internal/config"
	"note-editor-core/internal/controller"
	"note-editor-core/internal/pkg/logger"
	"note-editor-core/internal/registry"
	"note-editor-core/internal/service"
	"note-editor-core/internal/storage"
	dbstorage "note-editor-core/internal/storage/database"
	"note-editor-core/internal/storage/filesystem"
	"note-editor-core/pkg/database"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type Container struct {
	// Controllers
	SessionController      controller.ISessionController
	NotificationController controller.INotificationController

	// Background Services (Exposed for main.go to run)
	DispatcherService service.IDispatcherService
}

func NewContainer(cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Storage Provider
	var provider storage.Provider
	switch cfg.Storage.Driver {
	case "postgres":
		gormDB, err := database.NewGormDBFromDSN(cfg.Database.Connection)
		if err != nil {
			log.Fatalf("[FATAL] Unable to connect to GORM DB: %v", err)
		}
		p, err := dbstorage.New(gormDB)
		if err != nil {
			log.Fatalf("[FATAL] Failed to initialize database storage: %v", err)
		}
		provider = p
		log.Printf("[INFO] Using Storage Driver: POSTGRES")
	default:
		p, err := filesystem.New(cfg.Storage.Root)
		if err != nil {
			log.Fatalf("[FATAL] Failed to initialize filesystem storage: %v", err)
		}
		provider = p
		log.Printf("[INFO] Using Storage Driver: FILESYSTEM (%s)", cfg.Storage.Root)
	}

	// 3. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	notifierService := service.NewNotifierService(cfg.Session.NotificationTopic, pubSub)

	notifLogger := logger.NewIsolatedLogger("logs/notification.log")
	dispatcherService := service.NewDispatcherService(pubSub, cfg.Session.NotificationTopic, notifLogger)

	// 4. Session Machinery
	fetcher := asset.NewHTTPFetcher(time.Duration(cfg.Session.AssetFetchTimeoutMs) * time.Millisecond)
	debounce := time.Duration(cfg.Session.AutosaveDebounceMs) * time.Millisecond
	fetchTimeout := time.Duration(cfg.Session.AssetFetchTimeoutMs) * time.Millisecond

	sessionFactory := func() service.ISessionService {
		return service.NewSessionService(
			provider,
			fetcher,
			notifierService,
			sysLogger,
			debounce,
			fetchTimeout,
			cfg.Session.LastCollectionHandle,
			cfg.Session.LastCollectionName,
			cfg.Session.LastDocumentPath,
		)
	}

	sessionRegistry := registry.NewSessionRegistry(
		time.Duration(cfg.Session.SessionIdleTTLMin)*time.Minute,
		sessionFactory,
		sysLogger,
	)

	// 5. Controllers
	return &Container{
		SessionController:      controller.NewSessionController(sessionRegistry),
		NotificationController: controller.NewNotificationController(dispatcherService),

		DispatcherService: dispatcherService,
	}
}
