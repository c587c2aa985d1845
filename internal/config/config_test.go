package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("SHUTDOWN_TIMEOUT", "")
	t.Setenv("AUTH_TOKEN", "")
	t.Setenv("MONGO_URI", "")
	t.Setenv("THROTTLE_WINDOW_MS", "")
	t.Setenv("SNAPSHOT_INTERVAL_MS", "")
	t.Setenv("SUBSCRIBE_DEBOUNCE_MS", "")
	t.Setenv("WATCH_BACKOFF_SEC", "")
	t.Setenv("SEND_BUFFER", "")
	c := Load()
	if c.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr default")
	}
	if c.ShutdownTimeout != 15*time.Second {
		t.Fatalf("ShutdownTimeout default")
	}
	if c.AuthToken != "" || c.MongoURI != "" {
		t.Fatalf("auth/mongo defaults")
	}
	if c.ThrottleWindow != 500*time.Millisecond {
		t.Fatalf("ThrottleWindow default")
	}
	if c.SnapshotInterval != time.Second {
		t.Fatalf("SnapshotInterval default")
	}
	if c.SubscribeDebounce != 100*time.Millisecond {
		t.Fatalf("SubscribeDebounce default")
	}
	if c.WatchBackoff != 5*time.Second {
		t.Fatalf("WatchBackoff default")
	}
	if c.SendBuffer != 64 {
		t.Fatalf("SendBuffer default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("SHUTDOWN_TIMEOUT", "2")
	t.Setenv("AUTH_TOKEN", "s3cret")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("MONGO_DATABASE", "shopdb")
	t.Setenv("THROTTLE_WINDOW_MS", "250")
	t.Setenv("SNAPSHOT_INTERVAL_MS", "2000")
	t.Setenv("SUBSCRIBE_DEBOUNCE_MS", "50")
	t.Setenv("WATCH_BACKOFF_SEC", "1")
	t.Setenv("SEND_BUFFER", "16")
	c := Load()
	if c.HTTPAddr != ":9090" {
		t.Fatalf("HTTPAddr env")
	}
	if c.ShutdownTimeout != 2*time.Second {
		t.Fatalf("ShutdownTimeout env")
	}
	if c.AuthToken != "s3cret" {
		t.Fatalf("AuthToken env")
	}
	if c.MongoURI != "mongodb://localhost:27017" || c.MongoDatabase != "shopdb" {
		t.Fatalf("mongo env")
	}
	if c.ThrottleWindow != 250*time.Millisecond {
		t.Fatalf("ThrottleWindow env")
	}
	if c.SnapshotInterval != 2*time.Second {
		t.Fatalf("SnapshotInterval env")
	}
	if c.SubscribeDebounce != 50*time.Millisecond {
		t.Fatalf("SubscribeDebounce env")
	}
	if c.WatchBackoff != time.Second {
		t.Fatalf("WatchBackoff env")
	}
	if c.SendBuffer != 16 {
		t.Fatalf("SendBuffer env")
	}
	_ = os.Unsetenv("HTTP_ADDR")
}
