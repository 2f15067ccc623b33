package knowledged

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/synaptiq/knowledged/internal/knowledged/biz"
	"github.com/synaptiq/knowledged/internal/knowledged/handler"
	"github.com/synaptiq/knowledged/internal/knowledged/store"
	"github.com/synaptiq/knowledged/pkg/component/milvus"
	"github.com/synaptiq/knowledged/pkg/component/sqlite"
	"github.com/synaptiq/knowledged/pkg/llm"
	"github.com/synaptiq/knowledged/pkg/llm/resilience"

	// Register model providers.
	_ "github.com/synaptiq/knowledged/pkg/llm/ollama"
	_ "github.com/synaptiq/knowledged/pkg/llm/openai"
)

// Name is the service name, used in logs and metadata.
const Name = "knowledged"

// Config is the completed, validated runtime configuration.
type Config struct {
	*Options
}

// Server holds the assembled service and the resources it owns.
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	closers         []func()
}

// NewServer assembles the service from the configuration: logger, metadata
// store, vector store, cache, model providers, business services, and the
// HTTP surface. Resources acquired along the way are released by Run on
// shutdown.
func (cfg *Config) NewServer(ctx context.Context) (*Server, error) {
	// 1. Global logger.
	cfg.Log.AddInitialField("service.name", Name)
	if err := cfg.Log.Init(); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	srv := &Server{shutdownTimeout: cfg.ShutdownTimeout}

	// 2. Metadata store.
	sqliteClient, err := sqlite.New(cfg.SQLite)
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	srv.closers = append(srv.closers, func() { _ = sqliteClient.Close() })
	if err := sqliteClient.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	factory, err := store.NewFactory(sqliteClient)
	if err != nil {
		return nil, fmt.Errorf("create store factory: %w", err)
	}

	// 3. Vector store.
	milvusClient, err := milvus.New(cfg.Milvus)
	if err != nil {
		return nil, fmt.Errorf("connect milvus: %w", err)
	}
	srv.closers = append(srv.closers, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = milvusClient.Close(closeCtx)
	})

	vectors := store.NewMilvusStore(milvusClient)
	if err := vectors.EnsureCollection(ctx, &store.CollectionConfig{
		Name:        cfg.Pipeline.Collection,
		Description: "document chunks with flat tenant metadata",
		Dimension:   cfg.Pipeline.EmbeddingDim,
	}); err != nil {
		return nil, fmt.Errorf("ensure collection: %w", err)
	}

	// 4. Query cache. Redis being down disables the cache rather than
	// failing startup.
	var redisClient *goredis.Client
	cacheConfig := &biz.QueryCacheConfig{
		Enabled:   cfg.Cache.Enabled,
		TTL:       cfg.Cache.TTL,
		KeyPrefix: cfg.Cache.KeyPrefix,
	}
	if cfg.Cache.Enabled {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         fmt.Sprintf("%s:%d", cfg.Cache.Redis.Host, cfg.Cache.Redis.Port),
			Password:     cfg.Cache.Redis.Password,
			DB:           cfg.Cache.Redis.Database,
			MaxRetries:   cfg.Cache.Redis.MaxRetries,
			PoolSize:     cfg.Cache.Redis.PoolSize,
			MinIdleConns: cfg.Cache.Redis.MinIdleConns,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warnw("failed to connect to redis, cache will be disabled", "error", err.Error())
			_ = redisClient.Close()
			redisClient = nil
			cacheConfig.Enabled = false
		} else {
			srv.closers = append(srv.closers, func() { _ = redisClient.Close() })
		}
	}
	cache := biz.NewQueryCache(redisClient, cacheConfig)

	// 5. Model providers. Only embedding calls are wrapped with retries;
	// chat streams are never replayed.
	embedProvider, err := llm.NewEmbeddingProvider(cfg.Embedding.Provider, cfg.Embedding.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("create embedding provider: %w", err)
	}
	resilientEmbed := resilience.NewResilientEmbeddingProvider(
		embedProvider, resilience.DefaultRetryConfig(), resilience.DefaultCircuitBreakerConfig())

	chatProvider, err := llm.NewChatProvider(cfg.Chat.Provider, cfg.Chat.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("create chat provider: %w", err)
	}

	// 6. Embedding worker pool.
	pool, err := ants.NewPool(cfg.Pipeline.Workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	srv.closers = append(srv.closers, pool.Release)

	// 7. Business services.
	ingestor := biz.NewIngestor(vectors, factory, resilientEmbed, pool, &biz.IngestorConfig{
		Collection:     cfg.Pipeline.Collection,
		ChunkSize:      cfg.Pipeline.ChunkSize,
		ChunkOverlap:   cfg.Pipeline.ChunkOverlap,
		EmbeddingDim:   cfg.Pipeline.EmbeddingDim,
		EmbedBatchSize: cfg.Pipeline.EmbedBatchSize,
		DataDir:        cfg.Pipeline.DataDir,
	})
	retriever := biz.NewRetriever(vectors, resilientEmbed, &biz.RetrieverConfig{
		Collection: cfg.Pipeline.Collection,
		TopK:       cfg.Pipeline.TopK,
	})
	generator := biz.NewGenerator(chatProvider)
	chat := biz.NewChatService(retriever, generator, cache, factory, vectors,
		cfg.Pipeline.Collection, resilientEmbed, chatProvider)
	documents := biz.NewDocumentService(vectors, factory, cfg.Pipeline.Collection)

	// 8. HTTP surface.
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	h := handler.New(chat, ingestor, documents, retriever, factory.Orgs())
	h.InstallRoutes(engine)

	srv.httpServer = &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	logger.Infow("server assembled",
		"addr", cfg.HTTP.Addr,
		"collection", cfg.Pipeline.Collection,
		"embedding_provider", cfg.Embedding.Provider,
		"chat_provider", cfg.Chat.Provider,
		"cache_enabled", cacheConfig.Enabled,
	)

	return srv, nil
}

// Run serves HTTP until the context is cancelled, then shuts down
// gracefully and releases resources in reverse acquisition order.
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		for i := len(s.closers) - 1; i >= 0; i-- {
			s.closers[i]()
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Infow("shutting down", "timeout", s.shutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
