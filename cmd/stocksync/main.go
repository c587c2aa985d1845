// Package main boots the stock synchronization service.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/recyclemart/stocksync/internal/config"
	"github.com/recyclemart/stocksync/internal/gateway"
	httpapi "github.com/recyclemart/stocksync/internal/http"
	"github.com/recyclemart/stocksync/internal/obs"
	"github.com/recyclemart/stocksync/internal/store"
	"github.com/recyclemart/stocksync/internal/throttle"
	"github.com/recyclemart/stocksync/internal/watch"
)

func main() {
	cfg := config.Load()
	obs.InitLogger()
	obs.Logger.Info("service_starting")

	var (
		source   watch.Source
		snaps    gateway.SnapshotProvider
		embedded *store.Store
	)
	if cfg.MongoURI != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		client, err := mongo.Connect(ctx, mongooptions.Client().ApplyURI(cfg.MongoURI))
		cancel()
		if err != nil {
			obs.Logger.Error("mongo_connect_error", "error", err)
			os.Exit(1)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(ctx)
		}()
		coll := client.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection)
		source = watch.NewMongoSource(coll)
		snaps = watch.NewMongoCatalog(coll)
		obs.Logger.Info("store_mode", "mode", "mongo", "database", cfg.MongoDatabase, "collection", cfg.MongoCollection)
	} else {
		embedded = store.New()
		source = embedded
		snaps = embedded
		obs.Logger.Info("store_mode", "mode", "embedded")
	}

	auth := gateway.InsecureAuth()
	if cfg.AuthToken != "" {
		auth = gateway.TokenAuth(cfg.AuthToken)
	}
	gw := gateway.New(gateway.Options{
		Auth:              auth,
		Snapshots:         snaps,
		Limiter:           throttle.NewSnapshotLimiter(cfg.SnapshotInterval),
		SubscribeDebounce: cfg.SubscribeDebounce,
		SendBuffer:        cfg.SendBuffer,
		WriteTimeout:      cfg.WriteTimeout,
		PongTimeout:       cfg.PongTimeout,
		PingInterval:      cfg.PingInterval,
	})
	th := throttle.New(cfg.ThrottleWindow, gw.Emit)
	watcher := watch.New(source, th.SubmitStock, cfg.WatchBackoff)
	watcher.OnReconnect = gw.BroadcastFullState

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
			obs.Logger.Error("watch_run_error", "error", err)
		}
	}()

	app := httpapi.NewApp(cfg, embedded, snaps, gw, th)
	mux := httpapi.NewRouter(app)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		obs.Logger.Info("http_listen", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			obs.Logger.Error("http_server_error", "error", err)
			os.Exit(1)
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigc
	obs.Logger.Info("shutdown_signal", "signal", s.String())

	app.StartShutdown()
	if embedded != nil {
		embedded.Close()
	}
	cancel()
	select {
	case <-watchDone:
	case <-time.After(cfg.ShutdownTimeout):
		obs.Logger.Warn("shutdown_watch_timeout")
	}
	th.Stop()
	gw.Close()

	ctxSrv, cancelSrv := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelSrv()
	if err := srv.Shutdown(ctxSrv); err != nil {
		obs.Logger.Error("http_shutdown_error", "error", err)
	}
	obs.Logger.Info("service_stopped")
}
