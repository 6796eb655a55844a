// Command eventhubctl runs operator maintenance against the EventHub
// database: role-mirror sweeps, reminder resyncs and superadmin promotion.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dalemusser/eventhub/internal/app/bootstrap"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	mongoURI      string
	mongoDatabase string
	verbose       bool
)

var rootCmd = &cobra.Command{
	Use:          "eventhubctl",
	Short:        "EventHub operator tool",
	Long:         "eventhubctl repairs role mirrors, resyncs scheduled reminders and promotes system admins directly against the EventHub database.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&mongoURI, "mongo-uri", envOr("EVENTHUB_MONGO_URI", "mongodb://localhost:27017"), "MongoDB connection URI")
	rootCmd.PersistentFlags().StringVar(&mongoDatabase, "mongo-database", envOr("EVENTHUB_MONGO_DATABASE", "eventhub"), "MongoDB database name")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// connect opens the database and builds the same services the server uses.
// The returned func disconnects.
func connect(ctx context.Context) (*bootstrap.Services, *zap.Logger, func(), error) {
	logger, err := newLogger()
	if err != nil {
		return nil, nil, nil, err
	}
	cfg := bootstrap.AppConfig{
		MongoURI:              mongoURI,
		MongoDatabase:         mongoDatabase,
		MongoMaxPoolSize:      4,
		AuditLogAuth:          "off",
		AuditLogAdmin:         "all",
		OrgCreateCooldown:     time.Second,
		EventCountConcurrency: 1,
	}
	deps, err := bootstrap.ConnectDB(ctx, nil, cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	closeFn := func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = deps.MongoClient.Disconnect(dctx)
		_ = logger.Sync()
	}
	return bootstrap.NewServices(deps.MongoDatabase, cfg, logger), logger, closeFn, nil
}

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
