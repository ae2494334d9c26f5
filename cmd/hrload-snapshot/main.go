// Package main implements hrload-snapshot, an offline tool that backs up or
// restores tables directly against the database file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hrload/hrload/internal/app"
	"github.com/hrload/hrload/internal/config"
	"github.com/hrload/hrload/internal/schema"
)

func main() {
	var (
		configFile string
		envFile    string
		dataDir    string
		dbPath     string
		all        bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&envFile, "env-file", ".env", "Env file loaded before HRLOAD_* variables are read")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for the database and local backups")
	flag.StringVar(&dbPath, "db", "", "SQLite database path")
	flag.BoolVar(&all, "all", false, "Apply to every table")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "hrload-snapshot - offline table backup and restore\n\n")
		fmt.Fprintf(os.Stderr, "Usage: hrload-snapshot [options] backup|restore|delete [table ...]\n")
		fmt.Fprintf(os.Stderr, "       hrload-snapshot [options] list\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 || (args[0] != "list" && len(args) < 2 && !all) {
		flag.Usage()
		os.Exit(2)
	}
	command, tables := args[0], args[1:]

	cfg := config.DefaultConfig()
	if configFile != "" {
		var err error
		if cfg, err = config.LoadFromFile(configFile); err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	if err := config.LoadDotEnv(envFile); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}
	config.LoadFromEnv(cfg)
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if dbPath != "" {
		cfg.Store.Path = dbPath
	}
	cfg.Resolve()
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("Failed to prepare directories: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := app.OpenStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	objects, err := app.OpenStorage(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	backups := app.NewBackupService(cfg, st, objects)

	if command == "list" {
		entries, err := backups.List(ctx)
		if err != nil {
			log.Fatalf("Failed to list snapshots: %v", err)
		}
		for _, e := range entries {
			fmt.Printf("%s\t%s\n", e.Table, e.File)
		}
		return
	}

	if all {
		// Referenced tables first so restores satisfy foreign keys.
		tables = []string{schema.TableDepartments, schema.TableJobs, schema.TableHiredEmployees}
	}

	failed := 0
	for _, table := range tables {
		switch command {
		case "backup":
			location, err := backups.Backup(ctx, table)
			if err != nil {
				log.Printf("backup %s: %v", table, err)
				failed++
				continue
			}
			fmt.Printf("Backup of %s completed: %s\n", table, location)
		case "restore":
			msg, err := backups.Restore(ctx, table)
			if err != nil {
				log.Printf("restore %s: %v", table, err)
				failed++
				continue
			}
			fmt.Println(msg)
		case "delete":
			location, err := backups.Delete(ctx, table)
			if err != nil {
				log.Printf("delete %s: %v", table, err)
				failed++
				continue
			}
			fmt.Printf("Backup of %s deleted: %s\n", table, location)
		default:
			flag.Usage()
			os.Exit(2)
		}
	}

	if failed > 0 {
		st.Close()
		os.Exit(1)
	}
}
