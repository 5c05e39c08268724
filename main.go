package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"todo-api/api"
	"todo-api/domain"
	"todo-api/events"
	"todo-api/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.New()

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}()

	store, publisher := buildStorage(logger)

	pool := events.NewPool(publisher, logger, events.Config{
		Workers:        envInt("EVENT_POOL_WORKERS", 0),
		Buffer:         envInt("EVENT_POOL_BUFFER", 0),
		PublishTimeout: envDuration("EVENT_PUBLISH_TIMEOUT", 0),
		HandoffTimeout: envDuration("EVENT_HANDOFF_TIMEOUT", 0),
	})
	defer pool.Shutdown()

	svc := domain.NewTaskService(store, pool)

	var deduper api.Deduper
	if rc := buildRedis(); rc != nil {
		ttl := 24 * time.Hour
		if v := os.Getenv("DEDUPER_TTL"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				log.Fatalf("invalid DEDUPER_TTL: %v", err)
			}
			ttl = d
		}
		deduper = api.NewRedisDeduper(rc, ttl)

		cacheTTL := 30 * time.Second
		if v := os.Getenv("LIST_CACHE_TTL"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d < 0 {
				log.Fatalf("invalid LIST_CACHE_TTL: %v", err)
			}
			cacheTTL = d
		}
		svc = domain.NewTaskService(storage.NewCache(store, rc, cacheTTL), pool)
	}

	auth := buildAuth()

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(api.GzipRequestMiddleware())
	e.Use(echoprometheus.NewMiddleware("todo_api"))
	e.GET("/metrics", echoprometheus.NewHandler())

	api.Register(e, svc, auth, deduper, logger, api.ListDefaults{
		PageSize:    envInt("TASKS_PAGE_SIZE", 0),
		MaxPageSize: envInt("TASKS_MAX_PAGE_SIZE", 0),
	})

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

// buildStorage selects the task store. Without a connection string the
// service runs on the in-memory store, which suits local development only.
func buildStorage(logger *log.Logger) (domain.Store, domain.EventPublisher) {
	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	if connStr == "" {
		logger.Warn("STORAGE_CONNECTION_STRING not set, using in-memory store")
		return storage.NewMemStore(), noopPublisher{}
	}
	tasksTable := os.Getenv("TASKS_TABLE")
	eventsQueue := os.Getenv("EVENTS_QUEUE")
	if tasksTable == "" || eventsQueue == "" {
		log.Fatal("missing storage config")
	}
	ts, err := storage.New(connStr, tasksTable, eventsQueue)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	return ts, ts
}

func buildRedis() *redis.Client {
	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(redisConn)
	if err != nil {
		parts := strings.Split(redisConn, ",")
		redisOpts = &redis.Options{Addr: parts[0]}
		for _, p := range parts[1:] {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				continue
			}
			switch strings.ToLower(kv[0]) {
			case "password":
				redisOpts.Password = kv[1]
			case "ssl":
				if strings.ToLower(kv[1]) == "true" {
					redisOpts.TLSConfig = &tls.Config{}
				}
			}
		}
	}
	return redis.NewClient(redisOpts)
}

func buildAuth() *api.Auth {
	if strings.EqualFold(os.Getenv("LOCAL_AUTH_MODE"), "hs256") {
		return api.NewAuth(nil, "", "")
	}
	jwtAudience := os.Getenv("AUTH_AUDIENCE")
	authDomain := os.Getenv("AUTH_DOMAIN")
	if jwtAudience == "" || authDomain == "" {
		log.Fatal("missing auth config")
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", authDomain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
	if err != nil {
		log.Fatalf("jwks: %v", err)
	}
	return api.NewAuth(jwks, jwtAudience, "https://"+authDomain+"/")
}

func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Fatalf("invalid %s: %q", name, v)
	}
	return n
}

func envDuration(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Fatalf("invalid %s: %q", name, v)
	}
	return d
}

// noopPublisher drops events when the service runs without the queue-backed
// store.
type noopPublisher struct{}

func (noopPublisher) PublishEvents(ctx context.Context, userID string, evs []domain.Event) error {
	return nil
}
