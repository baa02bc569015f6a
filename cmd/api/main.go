package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/support-desk/client/internal/config"
	"github.com/zhouzirui/support-desk/client/internal/handler"
	"github.com/zhouzirui/support-desk/client/internal/service/backend"
	"github.com/zhouzirui/support-desk/client/internal/service/chat"
	"github.com/zhouzirui/support-desk/client/internal/service/choice"
	"github.com/zhouzirui/support-desk/client/internal/service/history"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	client := backend.New(cfg.Backend.BaseURL, cfg.Backend.Timeout)
	parser := choice.New(cfg.Protocol.StartMarker, cfg.Protocol.EndMarker, cfg.Protocol.FieldDelimiter)

	opts := []chat.Option{
		chat.WithParser(parser),
		chat.WithTimeout(cfg.Backend.Timeout),
	}

	// Session summary cache is optional
	if cfg.Cache.Enabled() {
		rdb, err := newRedisClient(ctx, cfg.Cache.RedisURL)
		if err != nil {
			log.Printf("warning: failed to connect to redis: %v", err)
			log.Println("continuing without session cache")
		} else {
			defer rdb.Close()
			opts = append(opts, chat.WithSummaryCache(history.NewRedisCache(rdb, cfg.Cache.TTL)))
			log.Printf("session cache enabled (ttl=%s)", cfg.Cache.TTL)
		}
	} else {
		log.Println("REDIS_URL 未配置，跳过会话缓存")
	}

	chatService := chat.NewService(client, opts...)

	if err := client.Health(ctx); err != nil {
		log.Printf("warning: support backend %s not reachable yet: %v", client.BaseURL(), err)
	}

	router := handler.NewRouter(chatService, client.Health)

	startServer(ctx, cfg.Server, router)
}

func newRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("support client gateway listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
