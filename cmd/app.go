package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/hr-intake/internal/ai/gemini"
	"github.com/spigell/hr-intake/internal/auth"
	"github.com/spigell/hr-intake/internal/document"
	"github.com/spigell/hr-intake/internal/events"
	"github.com/spigell/hr-intake/internal/export"
	"github.com/spigell/hr-intake/internal/intake"
	"github.com/spigell/hr-intake/internal/secrets"
	"github.com/spigell/hr-intake/internal/storage"
)

const driverPostgres = "postgres"

// application owns every long-lived collaborator of the intake service.
type application struct {
	service   *intake.Service
	documents *document.Processor
	closers   []func() error
	logger    *zap.Logger
}

func newApplication(ctx context.Context, config *Config, logger *zap.Logger) (*application, error) {
	a := &application{logger: logger}

	store, err := a.buildStore(ctx, config)
	if err != nil {
		a.Close()
		return nil, err
	}

	runtime, err := newRuntime(ctx, config.AI, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	maxTokens := 0
	if config.Document != nil {
		maxTokens = config.Document.MaxTokens
	}
	a.documents = document.NewProcessor(runtime, maxTokens, logger)

	deps := intake.Deps{
		Store:     store,
		Runtime:   runtime,
		Documents: a.documents,
		Logger:    logger,
	}

	if err := a.wireExport(ctx, config.Export, &deps); err != nil {
		a.Close()
		return nil, err
	}

	a.service, err = intake.New(deps)
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("closing resource", zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *application) buildStore(ctx context.Context, config *Config) (storage.Store, error) {
	var store storage.Store = storage.NewMemoryStore()

	if config.Storage != nil && strings.EqualFold(config.Storage.Driver, driverPostgres) {
		db, err := openDatabase(ctx, config.Storage)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)

		if config.Storage.Migrate {
			if err := storage.Migrate(ctx, db); err != nil {
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
			a.logger.Info("database migrations applied")
		}

		store = storage.NewPGStore(db)
	}

	if config.Redis != nil && strings.TrimSpace(config.Redis.Addr) != "" {
		password, err := secrets.LoadOptional(secrets.Source{
			Name:  "redis password",
			Value: config.Redis.Password,
			File:  config.Redis.PasswordFile,
		})
		if err != nil {
			return nil, err
		}

		client, err := storage.NewRedisClient(ctx, storage.RedisOptions{
			Addr:     config.Redis.Addr,
			Password: password,
			DB:       config.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)

		store = storage.NewCachedStore(store, client, config.Redis.TTL, a.logger)
		a.logger.Info("thread cache enabled", zap.String("addr", config.Redis.Addr))
	}

	return store, nil
}

func (a *application) wireExport(ctx context.Context, config *ExportConfig, deps *intake.Deps) error {
	if config == nil {
		a.logger.Warn("profile export is not configured")
		return nil
	}

	if config.Sheets != nil && strings.TrimSpace(config.Sheets.SpreadsheetID) != "" {
		exporter, err := export.NewSheetsExporter(ctx, export.SheetsConfig{
			SpreadsheetID:   config.Sheets.SpreadsheetID,
			Worksheet:       config.Sheets.Worksheet,
			CredentialsFile: config.Sheets.CredentialsFile,
		}, a.logger)
		if err != nil {
			return err
		}
		deps.Exporter = exporter
	} else {
		a.logger.Warn("profile export is not configured")
	}

	if config.Kafka != nil && len(config.Kafka.Brokers) > 0 {
		publisher, err := events.NewKafkaPublisher(config.Kafka.Brokers, config.Kafka.Topic, a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, publisher.Close)
		deps.Publisher = publisher
	}

	return nil
}

func openDatabase(ctx context.Context, config *StorageConfig) (*sql.DB, error) {
	databaseURL, err := secrets.Load(secrets.Source{
		Name:  "database url",
		Value: config.DatabaseURL,
		File:  config.DatabaseURLFile,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set storage.database-url or DATABASE_URL)", err)
	}

	return storage.Connect(ctx, databaseURL)
}

func newRuntime(ctx context.Context, config *AIConfig, logger *zap.Logger) (*gemini.Runtime, error) {
	if config == nil {
		config = &AIConfig{}
	}

	provider := strings.TrimSpace(strings.ToLower(config.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", config.Provider)
	}

	gc := config.Gemini
	if gc == nil {
		gc = &GeminiConfig{}
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: gc.APIKey,
		File:  gc.APIKeyFile,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
	}

	return gemini.New(ctx, gemini.Config{
		APIKey:        apiKey,
		Model:         gc.Model,
		MaxRetries:    gc.MaxRetries,
		MaxToolRounds: gc.MaxToolRounds,
		MaxLogLength:  gc.MaxLogLength,
	}, logger)
}

// newAuthenticator hashes the configured plain passwords once at startup.
func newAuthenticator(config *AuthConfig) (*auth.Authenticator, error) {
	if config == nil {
		config = &AuthConfig{}
	}

	users := make([]auth.User, 0, len(config.Users)+1)
	if strings.TrimSpace(config.Username) != "" {
		users = append(users, auth.User{Username: config.Username, Password: config.Password})
	}

	for _, u := range config.Users {
		password, err := secrets.LoadOptional(secrets.Source{
			Name:  "password of " + u.Username,
			Value: u.Password,
			File:  u.PasswordFile,
		})
		if err != nil {
			return nil, err
		}
		users = append(users, auth.User{
			Username:     u.Username,
			Password:     password,
			PasswordHash: u.PasswordHash,
			Role:         u.Role,
		})
	}

	if len(users) == 0 {
		return nil, fmt.Errorf("no users configured (set auth.users or HR_INTAKE_USERNAME and HR_INTAKE_PASSWORD)")
	}

	return auth.New(users, 0)
}
