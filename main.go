package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/daniellavrushin/lure/config"
	"github.com/daniellavrushin/lure/honeypot"
	lurehttp "github.com/daniellavrushin/lure/http"
	"github.com/daniellavrushin/lure/http/handler"
	"github.com/daniellavrushin/lure/log"
	"github.com/daniellavrushin/lure/metrics"
	"github.com/daniellavrushin/lure/sink"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	cfg         = config.NewConfig()
	verboseFlag string
	showVersion bool
	writeConfig bool
	Version     = "dev"
	Commit      = "none"
	Date        = "unknown"
)

const shutdownTimeout = 10 * time.Second

var rootCmd = &cobra.Command{
	Use:           "lure",
	Short:         "Multi-port TCP honeypot",
	Long:          `lure listens on a set of TCP ports, greets every client with a fake service banner and records the first bytes it sends as JSON lines.`,
	RunE:          runLure,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cfg.BindFlags(rootCmd)

	rootCmd.Flags().StringVar(&verboseFlag, "verbose", "info", "Set verbosity level (debug, trace, info, warn, error, silent)")
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "Show version and exit")
	rootCmd.Flags().BoolVar(&writeConfig, "write-config", false, "Write the effective configuration to --config and exit")

	rootCmd.AddCommand(analyzeCmd)
}

func main() {
	initTimezone()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		log.Flush()
		os.Exit(1)
	}
}

func runLure(cmd *cobra.Command, args []string) error {
	handler.Version, handler.Commit, handler.Date = Version, Commit, Date
	if showVersion {
		fmt.Printf("lure version: %s (%s) %s\n", Version, Commit, Date)
		return nil
	}

	if writeConfig {
		if cfg.ConfigPath == "" {
			return fmt.Errorf("--write-config needs --config")
		}
		// keep what the file already has, explicit flags on top
		loaded, err := cfg.LoadFileIfExists(cmd)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if cmd.Flags().Changed("verbose") || !loaded {
			cfg.ApplyLogLevel(verboseFlag)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		if err := cfg.SaveToFile(cfg.ConfigPath); err != nil {
			return err
		}
		fmt.Printf("Configuration written to %s\n", cfg.ConfigPath)
		return nil
	}

	if err := cfg.LoadFile(cmd); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cmd.Flags().Changed("verbose") || cfg.ConfigPath == "" {
		cfg.ApplyLogLevel(verboseFlag)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := initLogging(&cfg); err != nil {
		return fmt.Errorf("logging initialization failed: %w", err)
	}
	log.Infof("Starting lure %s", Version)
	printConfigDefaults(cmd)

	collector := metrics.GetMetricsCollector()
	collector.RecordEvent("info", "lure starting up")

	fileSink := sink.NewFileSink(cfg.Sink.Path)
	if err := fileSink.Prepare(); err != nil {
		return log.Errorf("interaction log: %w", err)
	}
	writer := sink.NewWriter(fileSink, cfg.Sink.QueueSize)
	writer.OnError(collector.RecordDrop)
	writer.Subscribe(lurehttp.InteractionObserver())
	log.Infof("Recording interactions to %s", cfg.Sink.Path)

	engine, err := honeypot.NewEngine(cfg.Honeypot, writer, collector)
	if err != nil {
		writer.Close(context.Background())
		return log.Errorf("failed to build listeners: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.Listen(ctx); err != nil {
		var be *honeypot.BindError
		if errors.As(err, &be) {
			log.Errorf("Honeypot on port %d failed: %v", be.Port, be.Err)
		}
		collector.RecordEvent("error", err.Error())
		writer.Close(context.Background())
		return err
	}

	httpServer, err := lurehttp.StartServer(&cfg, collector, writer)
	if err != nil {
		collector.RecordEvent("error", fmt.Sprintf("Failed to start web server: %v", err))
		stop()
		engine.Serve(ctx)
		writer.Close(context.Background())
		return err
	}

	log.Infof("lure is running on %d ports. Press Ctrl+C to stop", len(cfg.Honeypot.Ports))
	collector.RecordEvent("info", "lure is fully operational")

	serveErr := engine.Serve(ctx)
	if serveErr != nil {
		collector.RecordEvent("error", serveErr.Error())
	} else {
		log.Infof("Shutdown signal received, shutting down gracefully")
		collector.RecordEvent("info", "Shutdown initiated by signal")
	}

	if err := gracefulShutdown(httpServer, writer, collector); err != nil && serveErr == nil {
		return err
	}
	return serveErr
}

// gracefulShutdown runs after every listener and in-flight connection has
// finished, so the sink queue only drains from here on.
func gracefulShutdown(httpServer *http.Server, writer *sink.Writer, collector *metrics.Collector) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var wg sync.WaitGroup
	shutdownErrors := make(chan error, 2)

	if httpServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Infof("Shutting down HTTP server...")
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				log.Errorf("HTTP server shutdown error: %v", err)
				shutdownErrors <- fmt.Errorf("HTTP shutdown: %w", err)
			} else {
				log.Infof("HTTP server stopped")
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		pending := writer.Pending()
		if err := writer.Close(shutdownCtx); err != nil {
			log.Errorf("Interaction log did not drain (%d pending): %v", pending, err)
			shutdownErrors <- fmt.Errorf("sink drain: %w", err)
			return
		}
		log.Infof("Interaction log closed: %d written, %d dropped", writer.Written(), writer.Dropped())
	}()

	wg.Wait()
	close(shutdownErrors)

	log.Infof("Shutting down WebSocket connections...")
	lurehttp.Shutdown()

	var errs []error
	for err := range shutdownErrors {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		log.Errorf("Shutdown completed with %d errors", len(errs))
		collector.RecordEvent("warning", fmt.Sprintf("lure shutdown with %d errors", len(errs)))
	} else {
		log.Infof("lure stopped successfully")
		collector.RecordEvent("info", "lure shutdown complete")
	}

	log.CloseErrorFile()
	log.Flush()
	return errors.Join(errs...)
}

func initTimezone() {
	tzName := os.Getenv("TZ")
	if tzName == "" {
		tzName = "UTC"
	}

	loc, err := time.LoadLocation(tzName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] Failed to load timezone %s: %v, using UTC\n", tzName, err)
		loc = time.UTC
	}

	time.Local = loc
}

func initLogging(cfg *config.Config) error {
	w := io.MultiWriter(log.OrigStderr(), lurehttp.LogWriter())
	log.Init(w, cfg.System.Logging.Level, cfg.System.Logging.Instaflush)

	if cfg.System.Logging.Syslog {
		if err := log.EnableSyslog("lure"); err != nil {
			return log.Errorf("failed to enable syslog: %w", err)
		}
		log.Infof("Syslog enabled")
	}

	if cfg.System.Logging.ErrorFile != "" {
		if err := log.InitErrorFile(cfg.System.Logging.ErrorFile); err != nil {
			log.Errorf("Failed to open error log file: %v", err)
		} else {
			log.Infof("Error logging to file: %s", cfg.System.Logging.ErrorFile)
		}
	}

	log.Tracef("Logging initialized at level %s", cfg.System.Logging.Level)
	return nil
}

func printConfigDefaults(cmd *cobra.Command) {
	var all []*pflag.Flag
	cmd.InheritedFlags().VisitAll(func(f *pflag.Flag) { all = append(all, f) })
	cmd.Flags().VisitAll(func(f *pflag.Flag) { all = append(all, f) })
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })

	line := ""
	for _, f := range all {
		if line != "" {
			line += " "
		}
		line += fmt.Sprintf("--%s=%s", f.Name, f.Value.String())
	}
	log.Infof("Effective CLI flags:")
	log.Infof("  %s", line)
}
