package cmd

import (
	"fmt"

	"cinethos/db"
	"cinethos/logger"
	"cinethos/model"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the subtitle preference table",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.DBEnabled() {
			return fmt.Errorf("DB_HOST is not set")
		}
		if err := db.ConnectGormDB(cfg); err != nil {
			return err
		}
		defer db.CloseGormDB()

		if err := db.AutoMigrateModels(&model.UserPreference{}); err != nil {
			return err
		}
		logger.Info("preference schema is up to date", logger.String("database", cfg.DBName))
		fmt.Println("migrated", model.UserPreference{}.TableName())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
