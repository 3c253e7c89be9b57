package cli

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/threadsync/internal/blob"
	"github.com/raphaelgruber/threadsync/internal/config"
	"github.com/raphaelgruber/threadsync/internal/db"
	"github.com/raphaelgruber/threadsync/internal/discord"
	"github.com/raphaelgruber/threadsync/internal/llm"
	"github.com/raphaelgruber/threadsync/internal/lock"
	"github.com/raphaelgruber/threadsync/internal/notion"
	"github.com/raphaelgruber/threadsync/internal/postgres"
	"github.com/raphaelgruber/threadsync/internal/service"
	"github.com/raphaelgruber/threadsync/internal/source"
	"github.com/raphaelgruber/threadsync/internal/store"
)

// backends holds the opened knowledge store and ledger.
type backends struct {
	store  store.KnowledgeStore
	ledger store.Ledger
}

// openBackends opens the configured store and, when needLedger is set, the
// ledger. Backends of the same kind share one connection.
func openBackends(ctx context.Context, needLedger bool) (backends, error) {
	var (
		b       backends
		notionC *notion.Client
		surreal *db.Client
		memory  *store.Memory
	)

	notionClient := func() *notion.Client {
		if notionC == nil {
			notionC = notion.New(notion.Options{
				APIKey:           cfg.NotionAPIKey,
				BaseURL:          cfg.NotionBaseURL,
				FormDatabaseID:   cfg.FormDatabaseID,
				AssetsDatabaseID: cfg.AssetsDatabaseID,
				DoneDatabaseID:   cfg.DoneDatabaseID,
				Metrics:          collector,
				Logger:           logger,
			})
		}
		return notionC
	}
	surrealClient := func() (*db.Client, error) {
		if surreal != nil {
			return surreal, nil
		}
		c, err := db.NewClient(ctx, db.ConfigFrom(cfg, collector), logger)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		closers = append(closers, func() {
			if err := c.Close(context.Background()); err != nil {
				logger.Warn("close database", "error", err)
			}
		})
		if err := c.InitSchema(ctx); err != nil {
			return nil, fmt.Errorf("initialize schema: %w", err)
		}
		surreal = c
		return c, nil
	}
	memoryStore := func() *store.Memory {
		if memory == nil {
			logger.Warn("using the in-memory backend, nothing is persisted")
			memory = store.NewMemory()
		}
		return memory
	}

	switch cfg.StoreBackend {
	case config.BackendNotion:
		b.store = notionClient()
	case config.BackendSurreal:
		c, err := surrealClient()
		if err != nil {
			return b, err
		}
		b.store = c
	case config.BackendMemory:
		b.store = memoryStore()
	default:
		return b, fmt.Errorf("unsupported store backend: %s", cfg.StoreBackend)
	}

	if !needLedger {
		return b, nil
	}

	switch cfg.Ledger() {
	case config.BackendNotion:
		b.ledger = notionClient()
	case config.BackendSurreal:
		c, err := surrealClient()
		if err != nil {
			return b, err
		}
		b.ledger = c
	case config.BackendPostgres:
		pg, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return b, err
		}
		closers = append(closers, pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			return b, err
		}
		b.ledger = postgres.NewLedger(pg)
	case config.BackendMemory:
		b.ledger = memoryStore()
	default:
		return b, fmt.Errorf("unsupported ledger backend: %s", cfg.Ledger())
	}
	return b, nil
}

// newRelocator returns the configured blob relocator.
func newRelocator(ctx context.Context) (service.Relocator, error) {
	opts := blob.Options{Prefix: cfg.BlobPrefix, Metrics: collector, Logger: logger}

	switch cfg.BlobBackend {
	case config.BlobS3:
		s3, err := blob.NewS3Store(ctx, blob.S3Config{
			Bucket:        cfg.BlobBucket,
			Region:        cfg.Region(),
			Endpoint:      cfg.BlobEndpoint,
			PublicBaseURL: cfg.BlobPublicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		return blob.NewRelocator(s3, opts), nil
	case config.BlobGCS:
		gcs, err := blob.NewGCSStore(ctx, blob.GCSConfig{
			Bucket:        cfg.BlobBucket,
			PublicBaseURL: cfg.BlobPublicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		closers = append(closers, func() { _ = gcs.Close() })
		return blob.NewRelocator(gcs, opts), nil
	case config.BlobNone:
		logger.Warn("BLOB_BACKEND=none: attachments keep their source URLs, which may expire")
		return blob.Passthrough{}, nil
	case "":
		return blob.Passthrough{}, nil
	default:
		return nil, fmt.Errorf("unsupported blob backend: %s", cfg.BlobBackend)
	}
}

// newCompleter creates the completion service client.
func newCompleter(ctx context.Context) (llm.Completer, error) {
	model, err := llm.NewModel(ctx, cfg, collector, logger)
	if err != nil {
		return nil, fmt.Errorf("init model: %w", err)
	}
	return model, nil
}

// newLocker returns the Redis run lock, or the noop locker when no Redis
// URL is configured.
func newLocker() (lock.Locker, error) {
	if cfg.RedisURL == "" {
		return lock.Noop{}, nil
	}
	l, err := lock.NewRedis(cfg.RedisURL, cfg.LockTTL())
	if err != nil {
		return nil, err
	}
	closers = append(closers, func() { _ = l.Close() })
	return l, nil
}

// newEventSource creates the Discord collector. The bot's own messages are
// filtered by the configured self id, or the id of the token's user.
func newEventSource(ctx context.Context) *source.Collector {
	provider := discord.New(discord.Options{
		Token:   cfg.DiscordToken,
		BaseURL: cfg.DiscordBaseURL,
		Logger:  logger,
	})

	selfID := cfg.DiscordSelfID
	if selfID == "" {
		id, err := provider.CurrentUserID(ctx)
		if err != nil {
			logger.Warn("look up bot user, own messages are not filtered", "error", err)
		}
		selfID = id
	}
	return source.NewCollector(provider, selfID, collector, logger)
}
