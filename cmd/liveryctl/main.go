// Command liveryctl runs admin tasks directly against the database: review
// and decide top-ups, read stats, search the catalog and requeue parked
// outbox messages.
package main

import (
	"fmt"
	"os"

	"liverymarket/internal/config"
	"liverymarket/internal/infrastructure/database"
	"liverymarket/pkg/idgen"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	configPath string
	adminID    int64

	cfg    *config.Config
	db     *gorm.DB
	logger = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:           "liveryctl",
	Short:         "Admin tool for the livery market",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
			logger.SetLevel(level)
		}
		idgen.Init(cfg.Server.WorkerID)

		db, err = database.NewMySQL(&cfg.MySQL, cfg.Log.Level)
		if err != nil {
			return fmt.Errorf("connect mysql: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "path to the config file")
	rootCmd.PersistentFlags().Int64Var(&adminID, "admin", 0, "chat id of the acting admin (must be in admin.ids)")
}

func main() {
	logger.SetOutput(os.Stderr)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
