// Package main implements the hrload service binary: the HTTP API and,
// optionally, the gRPC loader service over one SQLite store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/hrload/hrload/internal/app"
	"github.com/hrload/hrload/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

type flags struct {
	configFile string
	envFile    string
	dataDir    string
	httpAddr   string
	grpcAddr   string
	dbPath     string
	enableGRPC bool
}

func main() {
	var (
		f           flags
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&f.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&f.envFile, "env-file", ".env", "Env file loaded before HRLOAD_* variables are read")
	flag.StringVar(&f.dataDir, "data-dir", "", "Base directory for the database and local backups")
	flag.StringVar(&f.httpAddr, "http-addr", "", "HTTP listen address")
	flag.StringVar(&f.grpcAddr, "grpc-addr", "", "gRPC listen address")
	flag.StringVar(&f.dbPath, "db", "", "SQLite database path")
	flag.BoolVar(&f.enableGRPC, "grpc", false, "Enable the gRPC loader service")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "hrload - HR records loader and backup service\n\n")
		fmt.Fprintf(os.Stderr, "Usage: hrload [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  hrload --data-dir /var/lib/hrload\n")
		fmt.Fprintf(os.Stderr, "  hrload --config /etc/hrload/config.yaml --grpc\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables (also read from --env-file):\n")
		fmt.Fprintf(os.Stderr, "  HRLOAD_DATA_DIR         Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  HRLOAD_HTTP_ADDR        HTTP listen address\n")
		fmt.Fprintf(os.Stderr, "  HRLOAD_DB_PATH          SQLite database path\n")
		fmt.Fprintf(os.Stderr, "  HRLOAD_STORAGE_TYPE     Snapshot storage (local, s3)\n")
		fmt.Fprintf(os.Stderr, "  HRLOAD_AUTH_SECRET      Token signing secret (required)\n")
		fmt.Fprintf(os.Stderr, "  HRLOAD_AUTH_PASSWORD    Operator password\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}
	if showVersion {
		fmt.Printf("hrload version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := loadConfig(f)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	printBanner(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	go func() {
		if err := <-application.Errors(); err != nil {
			log.Printf("Server error: %v", err)
			cancel()
		}
	}()

	if err := application.Wait(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
		os.Exit(1)
	}
}

// loadConfig applies defaults, the config file, environment variables and
// flags, in that order.
func loadConfig(f flags) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if f.configFile != "" {
		cfg, err = config.LoadFromFile(f.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	if err := config.LoadDotEnv(f.envFile); err != nil {
		return nil, err
	}
	config.LoadFromEnv(cfg)

	if f.dataDir != "" {
		cfg.DataDir = f.dataDir
	}
	if f.httpAddr != "" {
		cfg.HTTP.Addr = f.httpAddr
	}
	if f.grpcAddr != "" {
		cfg.GRPC.Addr = f.grpcAddr
	}
	if f.dbPath != "" {
		cfg.Store.Path = f.dbPath
	}
	if f.enableGRPC {
		cfg.GRPC.Enabled = true
	}

	return cfg, nil
}

func printBanner(cfg *config.Config) {
	log.Printf("hrload %s (commit %s)", version, commit)
	log.Printf("Configuration:")
	log.Printf("  Data Dir: %s", cfg.DataDir)
	log.Printf("  Database: %s", cfg.Store.Path)
	log.Printf("  Storage:  %s", cfg.Storage.Type)
	log.Printf("  HTTP:     %s", cfg.HTTP.Addr)
	if cfg.GRPC.Enabled {
		log.Printf("  gRPC:     %s", cfg.GRPC.Addr)
	}
	log.Printf("  Metrics:  year %d", cfg.Metrics.Year)
}
