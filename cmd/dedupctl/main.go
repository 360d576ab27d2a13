// Command dedupctl is the operational CLI for the deduplication layer:
// submit files, fetch task results, inspect aggregate stats and run the
// maintenance sweep against a configured store backend.
//
// Usage:
//
//	dedupctl [-config path] [-user id] <command> [args]
//
// Commands:
//
//	submit <file>     idempotently submit a file for processing
//	result <task-id>  print the stored outcome of a task
//	stats             print aggregate task statistics
//	cleanup           sweep expired and corrupt records
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/nats-io/nats.go"

	"github.com/supplierflow/dedupkit/config"
	"github.com/supplierflow/dedupkit/dedup"
	"github.com/supplierflow/dedupkit/fingerprint"
	"github.com/supplierflow/dedupkit/logging"
	"github.com/supplierflow/dedupkit/store"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	userID := flag.String("user", "", "user id to attribute submissions to")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}

	log := logging.New()
	log.SetLevel(logging.ParseLevel(cfg.Log.Level))

	st, err := openStore(cfg.Store)
	if err != nil {
		fatal(err)
	}
	defer st.Close()

	d := dedup.New(st, dedup.Config{
		TTL:        cfg.Dedup.TTL(),
		MaxRetries: cfg.Dedup.MaxRetries,
	}, dedup.WithLogger(log))

	switch cmd := flag.Arg(0); cmd {
	case "submit":
		err = runSubmit(d, cfg, log, flag.Arg(1), *userID)
	case "result":
		err = runResult(d, flag.Arg(1))
	case "stats":
		err = runStats(d)
	case "cleanup":
		err = runCleanup(d)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		fatal(err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: dedupctl [flags] <command> [args]

Commands:
  submit <file>     idempotently submit a file for processing
  result <task-id>  print the stored outcome of a task
  stats             print aggregate task statistics
  cleanup           sweep expired and corrupt records

Flags:
`)
	flag.PrintDefaults()
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "dedupctl:", err)
	os.Exit(1)
}

func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	cfg, _, err := config.Load()
	return cfg, err
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return store.NewMemoryStore(), nil

	case config.BackendRedis:
		return store.NewRedisStore(store.RedisStoreConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

	case config.BackendNATS:
		conn, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to NATS: %w", err)
		}
		return store.NewNATSStore(store.NATSStoreConfig{
			Conn:   conn,
			Bucket: cfg.NATSBucket,
		})

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func runSubmit(d *dedup.Deduplicator, cfg config.Config, log *logging.Logger, path, userID string) error {
	if path == "" {
		return fmt.Errorf("submit: file path required")
	}

	hasher := fingerprint.NewHasher(fingerprint.HasherConfig{
		ChunkSize:          cfg.Hash.ChunkSize,
		LargeFileThreshold: cfg.Hash.LargeFileThreshold,
	})
	sub := dedup.NewSubmitter(d,
		dedup.WithHasher(hasher),
		dedup.WithSubmitterLogger(log))

	decision, err := sub.Submit(path, userID)
	if err != nil {
		return err
	}
	return printJSON(decision)
}

func runResult(d *dedup.Deduplicator, taskID string) error {
	if taskID == "" {
		return fmt.Errorf("result: task id required")
	}

	res, ok := d.GetResult(taskID)
	if !ok {
		return fmt.Errorf("no result for task %s (unknown or still in flight)", taskID)
	}
	return printJSON(res)
}

func runStats(d *dedup.Deduplicator) error {
	stats, err := d.Stats()
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func runCleanup(d *dedup.Deduplicator) error {
	removed, err := d.CleanupExpired()
	if err != nil {
		return err
	}
	fmt.Printf("removed %d expired or corrupt records\n", removed)
	return nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
