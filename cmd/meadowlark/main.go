package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meadowlark/meadowlark/backend/go-services/internal/config"
	"github.com/meadowlark/meadowlark/backend/go-services/internal/document/handler"
	"github.com/meadowlark/meadowlark/backend/go-services/internal/document/service"
	"github.com/meadowlark/meadowlark/backend/go-services/internal/oidc"
	"github.com/meadowlark/meadowlark/backend/go-services/internal/tokens"
	"github.com/meadowlark/meadowlark/backend/go-services/pkg/logger"
	"github.com/meadowlark/meadowlark/backend/go-services/pkg/metrics"
	"github.com/meadowlark/meadowlark/backend/go-services/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

var startTime = time.Now()

func main() {
	// initialize logging early so config errors are visible; LOG_LEVEL is re-read from config below
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.LogLevel)
	defer logger.Sync()
	logger.Infof("config loaded: backend=%s redis=%v oidc=%v jwt_secret_set=%v", cfg.Store.Backend, cfg.Redis.Host != "", cfg.OIDC.IssuerURL != "", cfg.JWT.Secret != "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisConn := redisShared(cfg)
	be, err := openBackend(ctx, cfg, redisConn, 5, time.Second)
	if err != nil {
		logger.Fatalf("failed to open %s document store: %v", cfg.Store.Backend, err)
	}
	defer func() {
		if err := be.close(context.Background()); err != nil {
			logger.Warnf("closing document store: %v", err)
		}
	}()

	// Redis for the shared rate limiter and token revocations, when configured
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		if c, err := redisConn.Get(ctx); err == nil {
			redisClient = c
			defer func() { _ = redisConn.Close(context.Background()) }()
		} else {
			logger.Warnf("failed to connect to Redis (%s): %v", cfg.Redis.Addr(), err)
		}
	}

	verifier := newVerifier(ctx, cfg)

	r := gin.New()
	r.Use(cors(), gin.Logger(), gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	// readiness: 200 only when the store and the token verifier are available
	r.GET("/ready", func(c *gin.Context) {
		deps := map[string]bool{
			"store":    be.store != nil,
			"verifier": verifier != nil,
			"redis":    !(cfg.RateLimit.Enabled && cfg.RateLimit.UseRedis) || redisClient != nil,
		}
		status := http.StatusOK
		for _, ok := range deps {
			if !ok {
				status = http.StatusServiceUnavailable
			}
		}
		label := "ready"
		if status != http.StatusOK {
			label = "not_ready"
		}
		c.JSON(status, gin.H{"status": label, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if verifier == nil {
		logger.Warnf("document routes not registered: no token verifier configured (set JWT_SECRET or OIDC_ISSUER_URL)")
	} else {
		pre := []gin.HandlerFunc{middleware.AuthMiddleware(verifier, tokens.NewRevocations(redisClient, cfg.Redis.Prefix))}
		if cfg.RateLimit.Enabled {
			if cfg.RateLimit.UseRedis && redisClient != nil {
				win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
				pre = append(pre, middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
			} else {
				pre = append(pre, middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
			}
		}
		h := handler.New(service.New(be.store), be.store, handler.EnvelopeExtractor{}, handler.Options{
			ReferenceValidation: cfg.Validation.ReferenceValidation,
			AllowBypass:         cfg.Validation.AllowBypass,
			Catalog:             handler.NewDescriptorSet(cfg.Validation.DescriptorResources...),
		})
		h.Register(r.Group("/api"), pre...)
	}

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("Starting meadowlark on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("graceful shutdown: %v", err)
	}
}

// newVerifier prefers an OIDC provider, then locally signed client tokens,
// then (opt-in) unsigned tokens.
func newVerifier(ctx context.Context, cfg *config.Config) middleware.Verifier {
	if cfg.OIDC.IssuerURL != "" {
		issuer := strings.TrimRight(cfg.OIDC.IssuerURL, "/")
		ver, err := oidc.NewVerifier(ctx, issuer, cfg.OIDC.ClientID)
		if err == nil {
			return ver
		}
		logger.Warnf("failed to initialize OIDC verifier: %v", err)
	}
	if cfg.JWT.Secret != "" {
		return tokens.NewHMACVerifier(cfg.JWT)
	}
	if cfg.OIDC.AllowInsecure {
		logger.Warn("enabling insecure token verifier (integration mode)")
		return oidc.NewInsecureVerifier()
	}
	return nil
}

// cors is a permissive policy for dev/test: common headers plus OPTIONS short-circuit.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, reference-validation, X-Trace-Id")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length, Location, X-Trace-Id")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}
