// Package config provides runtime configuration values for the service.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds configuration knobs for the HTTP server, the change
// watcher, the broadcast throttler, and the socket gateway.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration

	// AuthToken gates socket handshakes. Empty disables auth (dev only).
	AuthToken string

	// MongoURI switches the watcher to a MongoDB change stream when set;
	// empty runs against the embedded store's change feed.
	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	ThrottleWindow    time.Duration
	SnapshotInterval  time.Duration
	SubscribeDebounce time.Duration

	WatchBackoff time.Duration

	SendBuffer   int
	WriteTimeout time.Duration
	PongTimeout  time.Duration
	PingInterval time.Duration
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func durenvms(key string, defMs int) time.Duration {
	ms := atoienv(key, defMs)
	return time.Duration(ms) * time.Millisecond
}

func durenvs(key string, defSec int) time.Duration {
	sec := atoienv(key, defSec)
	return time.Duration(sec) * time.Second
}

// Load collects configuration from environment with defaults.
func Load() Config {
	return Config{
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		ShutdownTimeout:   durenvs("SHUTDOWN_TIMEOUT", 15),
		AuthToken:         getenv("AUTH_TOKEN", ""),
		MongoURI:          getenv("MONGO_URI", ""),
		MongoDatabase:     getenv("MONGO_DATABASE", "marketplace"),
		MongoCollection:   getenv("MONGO_COLLECTION", "categories"),
		ThrottleWindow:    durenvms("THROTTLE_WINDOW_MS", 500),
		SnapshotInterval:  durenvms("SNAPSHOT_INTERVAL_MS", 1000),
		SubscribeDebounce: durenvms("SUBSCRIBE_DEBOUNCE_MS", 100),
		WatchBackoff:      durenvs("WATCH_BACKOFF_SEC", 5),
		SendBuffer:        atoienv("SEND_BUFFER", 64),
		WriteTimeout:      durenvs("WS_WRITE_TIMEOUT", 10),
		PongTimeout:       durenvs("WS_PONG_TIMEOUT", 60),
		PingInterval:      durenvs("WS_PING_INTERVAL", 54),
	}
}
