package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"rekorcheck/internal/config"
	"rekorcheck/internal/domain"
	"rekorcheck/internal/infra/cachemem"
	"rekorcheck/internal/infra/cacheredis"
	"rekorcheck/internal/infra/checkpointfile"
	"rekorcheck/internal/infra/crypto"
	"rekorcheck/internal/infra/db"
	"rekorcheck/internal/infra/merkle"
	"rekorcheck/internal/infra/ratelimit"
	"rekorcheck/internal/infra/rekor"
	"rekorcheck/internal/usecase"
)

type Server struct {
	cfg    config.Config
	store  *db.Store
	r      *gin.Engine
	logger *slog.Logger
	redis  *redis.Client

	rekor       usecase.RekorClient
	merkle      usecase.MerkleService
	checkpoints usecase.CheckpointStore
	inclusionUC *usecase.VerifyInclusion
	consistUC   *usecase.VerifyConsistency

	rateLimiter         domain.RateLimiter
	rateLimitRequests   int
	rateLimitWindow     time.Duration
	rateLimitFailClosed bool
}

// NewServer wires the verification API from configuration. Entries are
// cached in Redis when REDIS_ADDR is set and in process otherwise; verified
// checkpoints go to Postgres, then to CHECKPOINT_FILE, then nowhere.
func NewServer(cfg config.Config, store *db.Store, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{cfg: cfg, store: store, r: newEngine(logger), logger: logger}
	if err := s.initDeps(); err != nil {
		s.Close()
		return nil, err
	}
	s.initRateLimit(nil)
	s.routes()
	return s, nil
}

type ServerDeps struct {
	Rekor       usecase.RekorClient
	Merkle      usecase.MerkleService
	Checkpoints usecase.CheckpointStore
	Inclusion   *usecase.VerifyInclusion
	Consistency *usecase.VerifyConsistency
	RateLimiter domain.RateLimiter
	Store       *db.Store
	Logger      *slog.Logger
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		cfg:         cfg,
		store:       deps.Store,
		r:           newEngine(logger),
		logger:      logger,
		rekor:       deps.Rekor,
		merkle:      deps.Merkle,
		checkpoints: deps.Checkpoints,
		inclusionUC: deps.Inclusion,
		consistUC:   deps.Consistency,
	}
	if s.merkle == nil {
		s.merkle = merkle.NewService()
	}
	s.initRateLimit(deps.RateLimiter)
	s.routes()
	return s
}

const requestIDHeader = "X-Request-ID"

func newEngine(logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))
	return r
}

// requestLogger tags every request with an ID, echoed in the response, and
// logs it once it completes.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		start := time.Now()
		c.Next()
		logger.DebugContext(c.Request.Context(), "request",
			"request_id", id,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}

func (s *Server) initDeps() error {
	var httpClient *http.Client
	if timeout := s.cfg.RekorTimeout(); timeout > 0 {
		httpClient = &http.Client{Timeout: timeout}
	}
	var limiter *rate.Limiter
	if s.cfg.RekorRequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.RekorRequestsPerSecond), max(s.cfg.RekorBurst, 1))
	}
	client, err := rekor.NewClient(s.cfg.RekorURL, httpClient, limiter, s.logger)
	if err != nil {
		return err
	}
	s.rekor = client
	s.merkle = merkle.NewService()

	if s.cfg.RedisAddr != "" {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     s.cfg.RedisAddr,
			Password: s.cfg.RedisPassword,
			DB:       s.cfg.RedisDB,
		})
	}

	var cache usecase.EntryCache
	if s.redis != nil {
		redisCache, err := cacheredis.New(s.redis, "", 0)
		if err != nil {
			return err
		}
		cache = redisCache
	} else {
		memCache, err := cachemem.New(s.cfg.EntryCacheSize)
		if err != nil {
			return err
		}
		cache = memCache
	}

	switch {
	case s.store.Enabled():
		s.checkpoints = s.store.Checkpoints()
	case s.cfg.CheckpointFile != "":
		fileStore, err := checkpointfile.New(s.cfg.CheckpointFile)
		if err != nil {
			return err
		}
		s.checkpoints = fileStore
	}

	s.inclusionUC = &usecase.VerifyInclusion{
		Rekor:      s.rekor,
		Cache:      cache,
		Decoder:    rekor.Decoder{},
		Signatures: crypto.NewService(),
		Merkle:     s.merkle,
		Logger:     s.logger,
	}
	s.consistUC = &usecase.VerifyConsistency{
		Rekor:  s.rekor,
		Store:  s.checkpoints,
		Merkle: s.merkle,
		Logger: s.logger,
	}
	return nil
}

func (s *Server) initRateLimit(override domain.RateLimiter) {
	if override != nil {
		s.rateLimiter = override
	}
	if s.rateLimiter == nil && s.cfg.RateLimitRequests > 0 {
		if s.redis != nil {
			if limiter, err := ratelimit.NewRedisLimiter(s.redis, "", nil); err == nil {
				s.rateLimiter = limiter
			}
		}
		if s.rateLimiter == nil {
			s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{
				MaxKeys: s.cfg.RateLimitMaxKeys,
			})
		}
	}
	s.rateLimitRequests = s.cfg.RateLimitRequests
	s.rateLimitWindow = s.cfg.RateLimitWindow()
	if s.rateLimitWindow <= 0 {
		s.rateLimitWindow = time.Minute
	}
	s.rateLimitFailClosed = s.cfg.RateLimitFailClosed
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		mode := "no-db"
		if s.store.Enabled() {
			mode = "db"
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": mode})
	})

	v1 := s.r.Group("/v1")
	{
		v1.GET("/log/checkpoint", s.handleLatestCheckpoint)
	}

	s.r.NoRoute(s.handleNoRoute)
}

// Monitor returns the background consistency monitor, or nil when the
// interval is zero or no checkpoint store is configured.
func (s *Server) Monitor() *usecase.Monitor {
	interval := s.cfg.MonitorInterval()
	if interval <= 0 || s.checkpoints == nil || s.consistUC == nil {
		return nil
	}
	return &usecase.Monitor{
		Rekor:       s.rekor,
		Store:       s.checkpoints,
		Consistency: s.consistUC,
		Interval:    interval,
		Logger:      s.logger,
	}
}

func (s *Server) Handler() http.Handler {
	return s.r
}

func (s *Server) Run() error {
	return s.r.Run(s.cfg.HTTPAddr)
}

// Close releases the Redis connection pool. The database store is owned by
// the caller.
func (s *Server) Close() error {
	if s.redis == nil {
		return nil
	}
	if err := s.redis.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}
