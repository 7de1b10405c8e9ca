// main.go
// Headless tabletop client: loads config, initializes the logger and runs a
// session driven by stdin commands.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/erilali/rayvtt/internal/config"
	"github.com/erilali/rayvtt/internal/identity"
	"github.com/erilali/rayvtt/internal/journal"
	"github.com/erilali/rayvtt/internal/logger"
	"github.com/erilali/rayvtt/internal/session"
	"github.com/erilali/rayvtt/internal/status"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "rayvtt",
	Short:         "rayvtt virtual tabletop client",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var connectCmd = &cobra.Command{
	Use:   "connect [endpoint]",
	Short: "Join a tabletop server and play from the terminal",
	Long: `Connects to a rayvtt server and reads commands from stdin:

  /join <room>        join a room
  /leave              return to the lobby
  /roll               roll a d20
  /move <id> <x> <y>  move a token
  /say <text>         send a chat message
  /tokens             print the local token table
  /quit               disconnect and exit

Any other line is broadcast to the room.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConnect,
}

var (
	flagConfig     string
	flagEndpoint   string
	flagDataDir    string
	flagNamespace  string
	flagStatusAddr string
	flagNATSURL    string
	flagLogLevel   string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagConfig, "config", "rayvtt.json", "config file (.json or .toml); missing file uses defaults")
	flags.StringVar(&flagLogLevel, "log-level", "", "log level override (debug, info, warn, error)")

	cf := connectCmd.Flags()
	cf.StringVar(&flagEndpoint, "endpoint", "", "server websocket URL (overrides config and RAYVTT_ENDPOINT)")
	cf.StringVar(&flagDataDir, "data-dir", "", "directory for the Pebble identity store")
	cf.StringVar(&flagNamespace, "namespace", "", "identity namespace, one client id per namespace")
	cf.StringVar(&flagStatusAddr, "status-addr", "", "serve /health and /metrics on this address")
	cf.StringVar(&flagNATSURL, "nats-url", "", "mirror table events to NATS JetStream at this URL")

	rootCmd.AddCommand(connectCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "rayvtt: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command, args []string) (config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("endpoint") {
		cfg.Endpoint = flagEndpoint
	}
	if len(args) == 1 {
		cfg.Endpoint = args[0]
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = flagDataDir
	}
	if flags.Changed("namespace") {
		cfg.Namespace = flagNamespace
	}
	if flags.Changed("status-addr") {
		cfg.StatusAddr = flagStatusAddr
	}
	if flags.Changed("nats-url") {
		cfg.NATSURL = flagNATSURL
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	return cfg, cfg.Validate()
}

func runConnect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	logger.InitLogger(cfg.Log)
	cliLogger := logger.NewLogger("cli")
	cliLogger.WithFields(map[string]interface{}{
		"endpoint":    cfg.Endpoint,
		"namespace":   cfg.Namespace,
		"data_dir":    cfg.DataDir,
		"level":       cfg.Log.Level,
		"log_to_file": cfg.Log.LogToFile,
	}).Info("Configuration loaded")

	var store identity.Store
	pebbleStore, err := identity.OpenPebbleStore(filepath.Join(cfg.DataDir, "identity"), cfg.Namespace)
	if err != nil {
		cliLogger.Warnf("Identity store unavailable, client id will not survive restarts: %v", err)
		store = identity.NewMemoryStore("")
	} else {
		defer pebbleStore.Close()
		store = pebbleStore
	}

	var jr *journal.Journal
	if cfg.NATSURL != "" {
		j, closeJournal, err := journal.Connect(cfg.NATSURL, cfg.JournalSubject, logger.NewLogger("journal"))
		if err != nil {
			cliLogger.Errorf("Error connecting to NATS: %v", err)
			cliLogger.Warn("Running without NATS connection. Event journal will be disabled.")
		} else {
			defer closeJournal()
			jr = j
		}
	}

	table := newTokenTable()
	con := newConsole(table, cliLogger)
	sess, err := session.Init(cfg.Endpoint, session.Options{
		Config:   cfg.Conn(),
		Store:    store,
		Handlers: con.handlers(),
		Journal:  jr,
		Logger:   logger.NewLogger("session"),
	})
	if err != nil {
		return err
	}
	defer sess.Close()
	con.sess = sess

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.StatusAddr != "" {
		statusLogger := logger.NewLogger("status")
		go func() {
			if err := status.Serve(ctx, cfg.StatusAddr, status.NewHandler(sess, jr != nil), statusLogger); err != nil {
				statusLogger.Errorf("Status server: %v", err)
			}
		}()
	}

	return con.run(ctx, cmd.InOrStdin())
}

// run feeds lines from in to exec until /quit, EOF or ctx ends.
func (c *console) run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Shutting down")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := c.exec(line)
			switch {
			case errors.Is(err, errNotReady):
				c.logger.Warn("Network not ready. Command not sent.")
			case err != nil:
				c.logger.Warnf("%v", err)
			}
			if quit {
				return nil
			}
		}
	}
}
