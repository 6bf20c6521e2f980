package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hivegrid/hub/internal/config"
	"github.com/hivegrid/hub/internal/hub"
	"github.com/hivegrid/hub/internal/logging"
	"github.com/hivegrid/hub/internal/printer"
	"github.com/hivegrid/hub/pkg/store"
)

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the hub coordination service",
	Long: `Start the hub: connect to Redis, rebuild the node and mission caches,
and serve the websocket and status endpoints until interrupted.

Configuration comes from hub.yml (see --config); HUB_INSTANCE_NAME and
REDIS_URL override the file when set.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "hub.yml", "Path to the hub configuration file")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return printer.Error("Invalid configuration", err.Error(), []string{
			"check the file passed via --config",
			"set HUB_INSTANCE_NAME and REDIS_URL to override it",
		})
	}
	logging.SetLevel(cfg.Log.Level)

	opts, err := cfg.RedisOptions()
	if err != nil {
		return err
	}
	st, err := store.NewRedisStore(opts, cfg.Instance)
	if err != nil {
		return printer.Error("Cannot create store client", err.Error(), nil)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := st.Ping(ctx); err != nil {
		return printer.Error("Redis not accessible", err.Error(), []string{
			"verify the redis url in hub.yml",
			"verify the Redis server is running",
		})
	}

	printer.Success("connected to Redis, starting instance %q\n", cfg.Instance)
	h := hub.New(cfg, st)
	if err := h.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	printer.Info("hub shut down cleanly\n")
	return nil
}
