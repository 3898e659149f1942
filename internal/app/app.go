package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"ragchat/client/internal/config"
	"ragchat/client/internal/database"
	"ragchat/client/internal/interfaces"
	"ragchat/client/internal/remote"
	"ragchat/client/internal/repository"
	"ragchat/client/internal/service"
)

// App holds the wired client. Commands use the interface fields; the
// concrete handles are kept for shutdown.
type App struct {
	Config *config.Config
	DB     *sql.DB
	Redis  *redis.Client
	Store  repository.Store
	Client *remote.Client

	Session       interfaces.SessionService
	Conversations interfaces.ConversationService
	Monitor       interfaces.ConnectionMonitor
	Projection    interfaces.Projection
	Dispatcher    interfaces.Dispatcher
}

// NewApp opens the state store and wires the services. The connection
// monitor is running when it returns; Close stops it.
func NewApp(cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	a.Store = store

	a.Client = remote.NewClient(cfg.APIBaseURL)

	session := service.NewSessionManager(store, a.Client, cfg.FreeChatLimit, cfg.RequestTimeout)
	conversations := service.NewConversationCache(a.Client, session, cfg.RequestTimeout)
	session.OnLogout(conversations.Reset)

	monitor := service.NewConnectionMonitor(a.Client, service.MonitorOptions{
		Debounce:      cfg.ProbeDebounce,
		RetryInterval: cfg.RetryInterval,
		ProbeTimeout:  cfg.ProbeTimeout,
	})

	a.Session = session
	a.Conversations = conversations
	a.Monitor = monitor
	a.Projection = service.NewMessageProjection(conversations)
	a.Dispatcher = service.NewSendDispatcher(a.Client, session, monitor, conversations, service.DispatcherOptions{
		FreeChatLimit:    cfg.FreeChatLimit,
		MaxMessageLength: cfg.MaxMessageLength,
		ChatTimeout:      cfg.ChatTimeout,
	})
	return a, nil
}

func (a *App) openStore() (repository.Store, error) {
	switch strings.ToLower(a.Config.StorageDriver) {
	case config.DriverSQLite, "":
		db, err := database.InitDB(a.Config.StatePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize state database: %w", err)
		}
		a.DB = db
		slog.Debug("Using SQLite state store.", "path", a.Config.StatePath)
		return repository.NewSQLiteStore(db), nil

	case config.DriverRedis:
		rdb := redis.NewClient(&redis.Options{Addr: a.Config.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", a.Config.RedisAddr, err)
		}
		a.Redis = rdb
		slog.Debug("Using Redis state store.", "addr", a.Config.RedisAddr)
		return repository.NewRedisStore(rdb), nil

	case config.DriverMemory:
		return repository.NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", a.Config.StorageDriver)
	}
}

// Start restores a persisted session, points the monitor at the configured
// endpoint, and waits for the first probe. A restored session also loads the
// conversation list. Only a broken state store is an error.
func (a *App) Start(ctx context.Context) error {
	if err := a.Session.RestoreSession(ctx); err != nil {
		return err
	}

	a.Monitor.SetEndpoint(a.Config.APIBaseURL)
	state := a.Monitor.Probe(ctx)
	slog.Debug("Initial connection probe finished.", "status", state.Status, "endpoint", state.Endpoint)

	if a.Session.IsAuthenticated() {
		if _, err := a.Conversations.ListConversations(ctx); err != nil {
			slog.Warn("Could not load conversations.", "error", err)
		}
	}
	return nil
}

// SetEndpoint switches the service every component talks to.
func (a *App) SetEndpoint(endpoint string) {
	a.Config.APIBaseURL = remote.NormalizeBaseURL(endpoint)
	a.Client.SetBaseURL(endpoint)
	a.Monitor.SetEndpoint(endpoint)
}

// Close stops the monitor and releases the state store.
func (a *App) Close() error {
	a.Monitor.Close()

	var errs []error
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close state database: %w", err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis client: %w", err))
		}
	}
	return errors.Join(errs...)
}

// LogConfigSource reports where the configuration came from.
func LogConfigSource() {
	configFileUsed := viper.ConfigFileUsed()
	if configFileUsed != "" {
		slog.Debug("Successfully loaded configuration from file.", "file", configFileUsed)
	} else {
		slog.Debug("Configuration file not found. Using environment variables and defaults.")
	}
}

// SetupLogger installs a JSON slog logger writing to w at the named level.
func SetupLogger(logLevel string, w io.Writer) {
	var level slog.Level
	switch strings.ToUpper(logLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}
