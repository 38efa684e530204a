package pkg

import (
	"context"
	"errors"
	"net/http"

	"Fly8Backend/internal/auth"
	"Fly8Backend/internal/bootstrap"
	"Fly8Backend/internal/config"
	"Fly8Backend/internal/messaging"
	"Fly8Backend/internal/metrics"
	"Fly8Backend/internal/notification"
	"Fly8Backend/internal/realtime"
	"Fly8Backend/pkg/middleware"

	"github.com/casbin/casbin/v2"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var EchoModules = fx.Module("echo",
	fx.Provide(config.NewAppConfig),
	fx.Provide(bootstrap.NewLogger),
	fx.Provide(metrics.New),
	fx.Provide(NewStorage),
	fx.Provide(config.NewRedisClient),
	fx.Provide(notification.NewUnreadCache),
	fx.Provide(auth.NewTokenVerifier),
	fx.Provide(middleware.NewEnforcer),
	fx.Provide(realtime.NewHub),
	fx.Provide(messagingBroadcaster, notificationBroadcaster),
	fx.Provide(messaging.NewService),
	fx.Provide(messaging.NewMessageHandler),
	fx.Provide(notification.NewNotificationService),
	fx.Provide(notification.NewNotificationHandler),
	fx.Provide(notification.NewAdminHandler),
	fx.Provide(notification.NewReaper),
	fx.Provide(realtime.NewDispatcher),
	fx.Provide(realtime.NewHandler),
	fx.Provide(NewEchoServer),
	fx.Invoke(startBackground),
	fx.Invoke(RegisterRoutes))

// Storage is every durable dependency, chosen by STORAGE_BACKEND.
type Storage struct {
	fx.Out

	Messages      messaging.Store
	Notifications notification.Store
	Directory     auth.Directory
}

func NewStorage(lc fx.Lifecycle, cfg *config.AppConfig, log *zap.Logger) (Storage, error) {
	if cfg.StorageBackend == config.StorageMemory {
		log.Warn("using in-memory storage, data is lost on restart")
		return Storage{
			Messages:      messaging.NewMemoryStore(),
			Notifications: notification.NewMemoryStore(),
			Directory:     auth.NewOpenDirectory(),
		}, nil
	}

	mongoClient, err := config.NewMongoDBClient(lc, cfg, log)
	if err != nil {
		return Storage{}, err
	}
	messages, err := messaging.NewMessageRepository(mongoClient.Database)
	if err != nil {
		return Storage{}, err
	}
	notifications, err := notification.NewNotificationRepository(mongoClient.Database)
	if err != nil {
		return Storage{}, err
	}
	return Storage{
		Messages:      messages,
		Notifications: notifications,
		Directory:     auth.NewMongoDirectory(mongoClient.Database),
	}, nil
}

func messagingBroadcaster(h *realtime.Hub) messaging.Broadcaster { return h }

func notificationBroadcaster(h *realtime.Hub) notification.Broadcaster { return h }

func NewEchoServer(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg *config.AppConfig, log *zap.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: true,
	}))
	e.Use(middleware.RequestLogger(log, m))

	addr := ":" + cfg.Port
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Server running", zap.String("addr", addr), zap.String("storage", cfg.StorageBackend))
			go func() {
				if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("Failed to start the server", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down the server ...")
			return e.Shutdown(ctx)
		},
	})
	return e
}

func startBackground(lc fx.Lifecycle, hub *realtime.Hub, reaper *notification.Reaper) error {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			hub.Shutdown()
			return nil
		},
	})
	return reaper.Start(lc)
}

func RegisterRoutes(
	e *echo.Echo,
	log *zap.Logger,
	m *metrics.Metrics,
	verifier *auth.TokenVerifier,
	enforcer *casbin.Enforcer,
	messageHandler *messaging.MessageHandler,
	notificationHandler *notification.NotificationHandler,
	adminHandler *notification.AdminHandler,
	socketHandler *realtime.Handler,
) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(m.Handler()))
	e.GET("/ws", socketHandler.Serve)

	protected := e.Group("/api")
	protected.Use(middleware.JWTMiddleware(verifier, log))
	protected.Use(middleware.CasbinMiddleware(enforcer, log))

	protected.GET("/conversations", messageHandler.ListConversations)
	protected.GET("/conversations/:id/messages", messageHandler.ListMessages)
	protected.POST("/messages", messageHandler.SendMessage)
	protected.GET("/messages/search", messageHandler.SearchMessages)
	protected.GET("/messages/:id", messageHandler.GetMessage)
	protected.PUT("/messages/:id/read", messageHandler.MarkRead)
	protected.PUT("/messages/:id/delivered", messageHandler.MarkDelivered)
	protected.DELETE("/messages/:id", messageHandler.DeleteMessage)

	protected.GET("/notifications", notificationHandler.ListNotifications)
	protected.GET("/notifications/unread-count", notificationHandler.UnreadCount)
	protected.GET("/notifications/:id", notificationHandler.GetNotification)
	protected.PUT("/notifications/read-all", notificationHandler.MarkAllRead)
	protected.PUT("/notifications/:id/read", notificationHandler.MarkRead)
	protected.PUT("/notifications/:id/archive", notificationHandler.Archive)
	protected.DELETE("/notifications/:id", notificationHandler.DeleteNotification)

	admin := protected.Group("/admin/notifications")
	admin.GET("", notificationHandler.ListNotifications)
	admin.GET("/student/:studentId", adminHandler.StudentNotifications)
	admin.POST("", adminHandler.Send)
	admin.POST("/bulk", adminHandler.SendBulk)
	admin.POST("/all", adminHandler.SendAll)
	admin.DELETE("/:id", adminHandler.Delete)
}
