package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/docvault/docvault/handlers"
	"github.com/docvault/docvault/internal/access"
	"github.com/docvault/docvault/internal/config"
	"github.com/docvault/docvault/internal/database"
	"github.com/docvault/docvault/internal/delivery"
	"github.com/docvault/docvault/internal/document/repository"
	"github.com/docvault/docvault/internal/document/service"
	"github.com/docvault/docvault/internal/feed"
	"github.com/docvault/docvault/internal/lock"
	"github.com/docvault/docvault/internal/oidc"
	"github.com/docvault/docvault/internal/revision"
	"github.com/docvault/docvault/internal/routing"
	"github.com/docvault/docvault/internal/sessions"
	"github.com/docvault/docvault/internal/storage"
	"github.com/docvault/docvault/internal/tokens"
	"github.com/docvault/docvault/internal/users"
	"github.com/docvault/docvault/pkg/logger"
	"github.com/docvault/docvault/pkg/metrics"
	"github.com/docvault/docvault/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// log level is controlled with LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: oidc=%v mongo=%v redis=%v", cfg.OIDC.IssuerURL != "", cfg.MongoDB.URI != "", cfg.Redis.Host != "")

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// Lightweight CORS middleware for dev/test: set common headers and respond
	// to OPTIONS. Production should use a stricter policy.
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Disposition, ETag")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	})
	r.Use(gin.Logger(), gin.Recovery())

	ctx := context.Background()

	// Redis first: the rate limiter, the revision index cache, locks and the
	// token blacklist all prefer it when available.
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
		} else {
			redisClient = client
			sessions.SetBlacklistClient(redisClient)
			logger.Infof("connected to Redis at %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
	}
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && redisClient != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	// Storage backend for attachment files.
	var blobs storage.BlobStore
	switch cfg.Storage.Backend {
	case "minio":
		s, err := storage.NewMinIOStore(cfg.Storage.MinIO)
		if err != nil {
			logger.Fatalf("failed to initialize MinIO storage: %v", err)
		}
		blobs = s
	default:
		s, err := storage.NewLocalStore(cfg.Storage.BaseDir)
		if err != nil {
			logger.Fatalf("failed to initialize local storage: %v", err)
		}
		blobs = s
	}

	// MongoDB with retry/backoff to tolerate startup races; memory repos keep
	// dev and test environments runnable without it.
	var mongoClient *mongo.Client
	if cfg.MongoDB.URI != "" {
		const maxAttempts = 5
		backoff := time.Second
		var errConn error
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			mongoClient, errConn = database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
			if errConn == nil {
				break
			}
			logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, maxAttempts, errConn)
			if attempt < maxAttempts {
				time.Sleep(backoff)
				backoff *= 2
			}
		}
		if errConn != nil {
			logger.Warnf("could not connect to MongoDB after %d attempts: %v", maxAttempts, errConn)
			mongoClient = nil
		}
	}

	var docRepo repository.Repository
	var userRepo users.UserRepository
	var sessionsSvc *sessions.Service
	if mongoClient != nil {
		defer func() { _ = mongoClient.Disconnect(ctx) }()
		db := mongoClient.Database(cfg.MongoDB.Database)
		docRepo = repository.NewMongoRepo(db)
		userRepo = users.NewMongoUserRepository(db.Collection("users"))
		if redisClient == nil {
			srepo := sessions.NewMongoRepository(db.Collection("sessions"))
			if err := srepo.EnsureIndexes(ctx); err != nil {
				logger.Warnf("session indexes: %v", err)
			}
			sessionsSvc = sessions.NewService(srepo)
		}
	} else {
		logger.Warn("MongoDB unavailable, using in-memory repositories")
		docRepo = repository.NewMemoryRepo()
		userRepo = users.NewMemoryUserRepository()
	}
	if redisClient != nil {
		sessionsSvc = sessions.NewService(sessions.NewRedisRepository(redisClient, "session:"))
	}

	usersSvc := users.NewService(userRepo, cfg.Feed.KeyLength)

	// Revision index cache: Redis when available, in-process otherwise.
	var revCache revision.Store
	if redisClient != nil {
		revCache = revision.NewRedisStore(redisClient, "docvault:")
	} else {
		revCache = revision.NewMemoryStore()
	}
	index := revision.NewIndex(docRepo, revCache)
	resolver := revision.NewResolver(docRepo, revCache, index)
	docsSvc := service.NewService(docRepo, blobs, index)

	auth := access.New(cfg.Access.DocumentReadUsesRead)

	var lockStore lock.Store
	if redisClient != nil {
		lockStore = lock.NewRedisStore(redisClient, "lock:")
	} else {
		lockStore = lock.NewMemoryStore()
	}
	var notifier lock.Notifier
	if cfg.Lock.SendNotice && cfg.Lock.SMTPAddr != "" {
		notifier = lock.NewSMTPNotifier(cfg.Lock.SMTPAddr, cfg.Lock.SMTPFrom, cfg.Lock.SiteName, usersSvc)
	}
	locksSvc := lock.NewService(lockStore, auth, notifier, cfg.Lock.TTL)

	// Token verifier: OIDC provider when configured, locally issued HS256
	// tokens otherwise. ALLOW_INSECURE_TOKEN=true is for integration tests
	// only.
	var verifier middleware.Verifier
	if cfg.OIDC.IssuerURL != "" && cfg.OIDC.ClientID != "" {
		ver, err := oidc.NewVerifier(ctx, cfg.OIDC.IssuerURL, cfg.OIDC.ClientID)
		if err != nil {
			logger.Warnf("failed to initialize OIDC verifier: %v", err)
		} else {
			verifier = ver
		}
	}
	if verifier == nil && cfg.JWT.Secret != "" {
		verifier = tokens.NewHMACVerifier(cfg.JWT.Secret)
	}
	if verifier == nil {
		if strings.EqualFold(strings.TrimSpace(os.Getenv("ALLOW_INSECURE_TOKEN")), "true") {
			logger.Warn("enabling insecure token verifier (integration mode)")
			verifier = oidc.NewInsecureVerifier()
		} else {
			logger.Fatalf("no token verifier configured: set OIDC_ISSUER_URL or JWT_SECRET")
		}
	}

	permalink := routing.NewPermalinker(cfg.Server.BaseURL, cfg.Storage.Slug, cfg.Storage.Permalink)
	rules := routing.NewRules(cfg.Storage.Slug)
	engine := delivery.NewEngine(blobs, resolver, auth, delivery.Config{
		UploadDir:         cfg.Storage.UploadDir,
		BaseDir:           cfg.Storage.BaseDir,
		DispositionInline: true,
	}, delivery.Hooks{})
	feedAuth := feed.NewAuth(usersSvc, cfg.Feed.KeyLength)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// readiness: 200 only when critical dependencies are available
	r.GET("/ready", func(c *gin.Context) {
		ready := true
		deps := map[string]bool{
			"storage": blobs != nil,
			"redis":   true,
			"mongo":   true,
		}
		if cfg.Redis.Host != "" && redisClient == nil {
			deps["redis"] = false
			ready = false
		}
		if cfg.MongoDB.URI != "" && mongoClient == nil {
			deps["mongo"] = false
			ready = false
		}
		status := gin.H{"deps": deps, "uptime": time.Since(startTime).String()}
		if !ready {
			status["status"] = "not_ready"
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		status["status"] = "ready"
		c.JSON(http.StatusOK, status)
	})

	if sessionsSvc != nil {
		handlers.NewAuthHandler(cfg, usersSvc, sessionsSvc).Register(r.Group("/"))
	} else {
		logger.Warn("auth endpoints not registered: no session store available")
	}
	handlers.NewDocumentHandler(cfg, docsSvc, resolver, index, auth, locksSvc, usersSvc, permalink).
		Register(r.Group("/api/v1"), verifier)
	handlers.NewServeHandler(cfg, docsSvc, resolver, engine, rules, permalink, auth, feedAuth, usersSvc).
		Register(r, verifier)
	handlers.RegisterSwagger(r)

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("starting document service on %s", addr)
	if err := r.Run(addr); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}
