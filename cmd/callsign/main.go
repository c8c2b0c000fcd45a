// ABOUTME: Development CLI for the callsign SDK
// ABOUTME: Runs sync cycles, reload requests, and snapshot inspection from the command line
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/harperreed/callsign"
)

const version = "0.1.0"

func main() {
	// .env is optional; real deployments configure through the environment.
	_ = godotenv.Load()

	showVersion := flag.Bool("version", false, "Show version and exit")
	storageRoot := flag.String("storage-root", "", "Shared storage root (default: XDG data dir)")
	namespace := flag.String("namespace", "default", "State namespace")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("callsign version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := callsign.Config{
		StorageRoot: *storageRoot,
		Namespace:   *namespace,
		APIBaseURL:  os.Getenv("CALLSIGN_API_BASE_URL"),
		APIKey:      os.Getenv("CALLSIGN_API_KEY"),
		ExtensionID: os.Getenv("CALLSIGN_EXTENSION_ID"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var err error
	switch args[0] {
	case "sync":
		err = runSync(ctx, cfg, logger)
	case "reload":
		err = runReload(ctx, cfg, logger)
	case "entries":
		err = runEntries(cfg, logger)
	case "status":
		err = runStatus(cfg, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runSync(ctx context.Context, cfg callsign.Config, logger *slog.Logger) error {
	handle, err := callsign.Configure(cfg, callsign.Platform{}, logger)
	if err != nil {
		return err
	}
	defer func() { _ = handle.Close() }()

	report, err := handle.Sync(ctx)
	if err != nil {
		return err
	}
	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(out))
	return nil
}

func runReload(ctx context.Context, cfg callsign.Config, logger *slog.Logger) error {
	handle, err := callsign.Configure(cfg, callsign.Platform{}, logger)
	if err != nil {
		return err
	}
	defer func() { _ = handle.Close() }()

	decision, err := handle.RequestReload(ctx)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		fmt.Printf("reload throttled (%s), next allowed at %s\n",
			decision.Reason, decision.NextAllowedAt.Format(time.RFC3339))
		return nil
	}
	fmt.Println("reload requested")
	return nil
}

func runEntries(cfg callsign.Config, logger *slog.Logger) error {
	reader, err := callsign.NewReader(orDefault(cfg.StorageRoot, callsign.DefaultStorageRoot()), cfg.Namespace, logger)
	if err != nil {
		return err
	}
	entries := reader.LoadEntries()
	fmt.Printf("version %d, %d entries\n", reader.CurrentVersion(), len(entries))
	for _, entry := range entries {
		fmt.Printf("  %s  %s\n", entry.FullNumber, entry.Label)
	}
	return nil
}

func runStatus(cfg callsign.Config, logger *slog.Logger) error {
	handle, err := callsign.Configure(cfg, callsign.Platform{}, logger)
	if err != nil {
		return err
	}
	defer func() { _ = handle.Close() }()

	entries, err := handle.LoadEntries()
	if err != nil {
		fmt.Printf("snapshot: unreadable (%v)\n", err)
	} else {
		fmt.Printf("snapshot: %d entries\n", len(entries))
	}
	state, err := handle.ReloadState()
	if err != nil {
		return err
	}
	fmt.Printf("last sync:    %s\n", formatTime(state.LastSyncAt))
	fmt.Printf("last reload:  %s\n", formatTime(state.LastReloadAt))
	fmt.Printf("failures:     %d\n", state.ConsecutiveFailures)
	fmt.Printf("backoff till: %s\n", formatTime(state.BackoffUntil))
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.RFC3339)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func printUsage() {
	fmt.Println(`callsign - caller-identity branding SDK CLI

Usage:
  callsign [flags] <command>

Commands:
  sync      Run one sync cycle against the branding API
  reload    Request a directory extension reload (throttled)
  entries   Print the committed directory entries
  status    Show snapshot and reload policy state

Flags:
  -storage-root path   Shared storage root (default: XDG data dir)
  -namespace name      State namespace (default: "default")
  -verbose             Debug logging
  -version             Show version`)
}
