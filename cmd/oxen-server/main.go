// Package main is the entry point for oxen-server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/oxenhq/oxen-core/internal/selfupdate"
	"github.com/oxenhq/oxen-core/internal/server"
	"github.com/oxenhq/oxen-core/internal/termcolor"
)

const outputFormatJS = "json"

// Build-time variables set via -ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	initLogger()

	dataDir := flag.String("data-dir", getEnv("OXEN_SERVER_DATA_DIR", "/data/repos"), "Data directory for hosted repositories")
	port := flag.String("port", getEnv("OXEN_SERVER_PORT", "8080"), "Port to listen on")
	host := flag.String("host", getEnv("OXEN_SERVER_HOST", ""), "Host to bind to (empty = all interfaces)")
	colorFlag := flag.String("color", "auto", "Color output: auto, always, never")
	noColor := flag.Bool("no-color", false, "Disable color output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	checkUpdate := flag.Bool("check-update", false, "Check for a newer release and exit")
	showHelp := flag.Bool("help", false, "Show help and exit")
	outputFormat := flag.String("output", "", "Startup output format: json (default: human-readable)")

	flag.Parse()

	colorMode := termcolor.ColorAuto
	if *noColor {
		colorMode = termcolor.ColorNever
	} else if *colorFlag != "auto" {
		var err error
		colorMode, err = termcolor.ParseColorMode(*colorFlag)
		if err != nil {
			slog.Error("Invalid color flag", "value", *colorFlag, "err", err)
			os.Exit(1)
		}
	}
	cw := termcolor.NewWriter(os.Stdout, colorMode)

	portNum, _ := strconv.Atoi(*port)
	if portNum < 1 || portNum > 65535 {
		fmt.Fprintf(os.Stderr, "%s port must be between 1 and 65535\n", cw.Red("error:"))
		os.Exit(1)
	}
	if *outputFormat != "" && *outputFormat != outputFormatJS {
		fmt.Fprintf(os.Stderr, "%s -output %q is not valid; only \"json\" is supported\n", cw.Red("error:"), *outputFormat)
		os.Exit(1)
	}

	if *showVersion {
		printVersion()
		os.Exit(0)
	}
	if *checkUpdate {
		runCheckUpdate()
		os.Exit(0)
	}
	if *showHelp {
		printHelp(cw)
		os.Exit(0)
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		slog.Error("Failed to create data directory", "path", *dataDir, "err", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf("%s:%s", *host, *port)
	serv := server.NewServer(*dataDir, addr)

	slog.Info("Starting oxen-server", "version", version)
	slog.Info("Data directory", "path", *dataDir)
	slog.Info("Listening", "addr", "http://"+addr)

	if *outputFormat == outputFormatJS {
		printStartupJSON(addr, *dataDir)
	} else {
		printStartupBanner(cw, addr, *dataDir)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- serv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("Server error", "err", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		slog.Info("Shutdown initiated, press Ctrl+C again to force exit")
		stop()
		serv.Shutdown()
	}
}

// initLogger reads OXEN_SERVER_LOG_LEVEL and OXEN_SERVER_LOG_FORMAT from the
// environment, constructs the appropriate slog.Handler, and installs it as
// the default logger via slog.SetDefault.
func initLogger() {
	level := slog.LevelInfo
	switch getEnv("OXEN_SERVER_LOG_LEVEL", "info") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if getEnv("OXEN_SERVER_LOG_FORMAT", "text") == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func printVersion() {
	fmt.Printf("oxen-server %s\n", version)
	fmt.Printf("  commit:     %s\n", commit)
	fmt.Printf("  built:      %s\n", buildDate)
	fmt.Printf("  go version: %s\n", runtime.Version())
	fmt.Printf("  platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func runCheckUpdate() {
	const repo = "oxenhq/oxen-core"
	fmt.Printf("Current version: %s\n", version)

	latest, err := selfupdate.CheckLatest(repo)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error checking for updates: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Latest version:  %s\n", latest)

	if !selfupdate.NeedsUpdate(version, latest) {
		if version == "dev" {
			fmt.Println("Development build — skipping update check.")
		} else {
			fmt.Println("Already up to date.")
		}
		return
	}

	fmt.Printf("\nUpdate available: %s → %s\n", version, latest)
	fmt.Printf("Download it from https://github.com/%s/releases/latest\n", repo)
}

func printStartupBanner(cw *termcolor.Writer, addr, dataDir string) {
	fmt.Printf("%s %s\n", cw.BoldCyan("oxen-server"), cw.Green(version))
	fmt.Printf("  data:    %s\n", dataDir)
	fmt.Printf("  listen:  http://%s\n", addr)
	fmt.Printf("  commit:  %s\n", commit)
	if termcolor.IsTerminal(os.Stdout.Fd()) {
		fmt.Printf("\n%s\n", cw.Bold("Press Ctrl+C to stop."))
	}
}

type startupInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	Listen    string `json:"listen"`
	DataDir   string `json:"data_dir"`
}

func printStartupJSON(addr, dataDir string) {
	info := startupInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
		Listen:    "http://" + addr,
		DataDir:   dataDir,
	}
	data, _ := json.Marshal(info)
	fmt.Println(string(data))
}

func printHelp(cw *termcolor.Writer) {
	fmt.Println("oxen-server - host bare oxen repositories over the wire protocol")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println(cw.Bold("Usage:"))
	fmt.Println("  oxen-server [flags]")
	fmt.Println()
	fmt.Println(cw.Bold("Flags:"))
	fmt.Printf("  %s string\n", cw.Yellow("-data-dir"))
	fmt.Println("        Data directory for hosted repositories (default: /data/repos)")
	fmt.Println("        Environment: OXEN_SERVER_DATA_DIR")
	fmt.Println()
	fmt.Printf("  %s string\n", cw.Yellow("-port"))
	fmt.Println("        Port to listen on (default: 8080)")
	fmt.Println("        Environment: OXEN_SERVER_PORT")
	fmt.Println()
	fmt.Printf("  %s string\n", cw.Yellow("-host"))
	fmt.Println("        Host to bind to (default: all interfaces)")
	fmt.Println("        Environment: OXEN_SERVER_HOST")
	fmt.Println()
	fmt.Printf("  %s string\n", cw.Yellow("-output"))
	fmt.Println("        Startup output format: json (default: human-readable)")
	fmt.Println()
	fmt.Printf("  %s\n", cw.Yellow("-version"))
	fmt.Println("        Show version and exit")
	fmt.Println()
	fmt.Printf("  %s\n", cw.Yellow("-check-update"))
	fmt.Println("        Check for a newer release and exit")
	fmt.Println()
	fmt.Printf("  %s\n", cw.Yellow("-help"))
	fmt.Println("        Show this help message")
	fmt.Println()
	fmt.Println(cw.Bold("Examples:"))
	fmt.Println("  oxen-server -data-dir /var/lib/oxen")
	fmt.Println("  oxen-server -port 3000")
	fmt.Println("  oxen-server -host localhost -port 9090")
	fmt.Println()
	fmt.Println(cw.Bold("Environment Variables:"))
	fmt.Println("  OXEN_SERVER_DATA_DIR   Data directory for hosted repositories")
	fmt.Println("  OXEN_SERVER_PORT       Default port")
	fmt.Println("  OXEN_SERVER_HOST       Default host")
	fmt.Println("  OXEN_SERVER_LOG_LEVEL  Log level: debug, info, warn, error (default: info)")
	fmt.Println("  OXEN_SERVER_LOG_FORMAT Log format: text, json (default: text)")
}
