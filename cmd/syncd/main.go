// Command syncd is the demo server wiring doc, persistence, and sync
// together: one HTTP/websocket process broadcasting and durably storing
// every Document's updates, the deployable shape of the teacher's own
// cmd/server plus CollabText's Redis-backed main.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/synix/crdtengine/persistence"
	"github.com/synix/crdtengine/sync"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON config file (optional)")
	flag.Parse()

	cfg := Default()
	if *configPath != "" {
		loaded, err := Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "syncd: failed to load config:", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	cfg.Normalize()
	applyEnvOverrides(&cfg)

	log := newLogger(cfg.LogLevel)
	defer log.Sync()

	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatal("could not connect to redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	log.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

	store, err := persistence.New(rdb, persistence.Options{KeyPrefix: cfg.KeyPrefix}, log)
	if err != nil {
		log.Fatal("failed to construct persistence store", zap.Error(err))
	}

	hub := sync.New(rdb, store, sync.Options{ChannelPrefix: cfg.ChannelPrefix}, log)
	server := sync.NewServer(hub, log)

	log.Info("syncd starting", zap.String("addr", cfg.ListenAddr))
	if err := http.ListenAndServe(cfg.ListenAddr, server.Router()); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

// applyEnvOverrides lets REDIS_ADDR and LISTEN_ADDR override the config
// file or defaults, the same os.Getenv-with-fallback pattern CollabText's
// main uses for its own REDIS_ADDR/DATABASE_URL.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
}

func newLogger(level string) *zap.Logger {
	var zl zapcore.Level
	if err := zl.Set(level); err != nil {
		zl = zapcore.InfoLevel
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(zl)
	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
