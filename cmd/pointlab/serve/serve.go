package serve

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pointlab/pointlab/internal/archive"
	"github.com/pointlab/pointlab/internal/cache"
	"github.com/pointlab/pointlab/internal/config"
	"github.com/pointlab/pointlab/internal/logging"
	"github.com/pointlab/pointlab/pkg/api"
	"github.com/pointlab/pointlab/pkg/objectstore"
)

func Run(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	addr := fs.String("addr", "", "Listen address (overrides config)")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *addr != "" {
		cfg.ListenAddr = *addr
	}

	logger := logging.NewWithLevel(os.Stdout, logging.ParseLevel(cfg.LogLevel))

	var arc *archive.Archive
	if cfg.Archive.Enabled {
		arc, err = openArchive(cfg, logger)
		if err != nil {
			log.Fatalf("Failed to open run archive: %v", err)
		}
		defer arc.Close()
		fmt.Printf("Archiving runs to %s object store (%s)\n", storeType(cfg), cfg.Archive.GetCompression())
	}

	router := api.NewRouterWithArchive(cfg, logger, arc)

	clusterTimeout := time.Duration(cfg.Timeout.GetClusterTimeout()) * time.Millisecond
	writeTimeout := clusterTimeout + 5*time.Second
	if writeTimeout < 30*time.Second {
		writeTimeout = 30 * time.Second
	}

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		fmt.Printf("Starting pointlab server on %s\n", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	fmt.Println("\nShutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
		return
	}
	fmt.Println("Server stopped")
}

func openArchive(cfg *config.Config, logger *logging.Logger) (*archive.Archive, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := objectstore.New(ctx, objectstore.Config{
		Type:      cfg.ObjectStore.Type,
		Endpoint:  cfg.ObjectStore.Endpoint,
		Bucket:    cfg.ObjectStore.Bucket,
		AccessKey: cfg.ObjectStore.AccessKey,
		SecretKey: cfg.ObjectStore.SecretKey,
		Region:    cfg.ObjectStore.Region,
		UseSSL:    cfg.ObjectStore.UseSSL,
		RootPath:  cfg.ObjectStore.RootPath,
	})
	if err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}

	codec, err := archive.ParseCodec(string(cfg.Archive.GetCompression()))
	if err != nil {
		return nil, err
	}
	arc, err := archive.New(store, codec, logger)
	if err != nil {
		return nil, err
	}
	if n := cfg.Archive.CacheBytes(); n > 0 {
		arc.UseCache(cache.NewMemoryCache(cache.MemoryCacheConfig{MaxBytes: n}))
	}
	return arc, nil
}

func storeType(cfg *config.Config) string {
	if cfg.ObjectStore.Type == "" {
		return "memory"
	}
	return cfg.ObjectStore.Type
}
