package cmd

import (
	"fmt"
	"strings"

	"cinethos/auth"
	"cinethos/cache"
	"cinethos/db"
	"cinethos/logger"
	"cinethos/repository"

	"github.com/spf13/cobra"
)

var preferCmd = &cobra.Command{
	Use:   "prefer <language>",
	Short: "Store the subtitle language of the credential's account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.DBEnabled() {
			return fmt.Errorf("DB_HOST is not set")
		}
		lang := strings.ToLower(strings.TrimSpace(args[0]))

		provider, closeProvider, err := auth.NewProvider(cfg)
		if err != nil {
			return err
		}
		defer closeProvider()
		credential, err := provider.Credential()
		if err != nil {
			return err
		}
		claims, err := auth.Inspect(credential)
		if err != nil {
			return err
		}
		userID := claims.User()
		if userID == 0 {
			return fmt.Errorf("credential carries no user id")
		}

		if err := db.ConnectGormDB(cfg); err != nil {
			return err
		}
		defer db.CloseGormDB()
		repo := repository.NewGormPreferenceRepository(db.GormDB)
		if err := repo.SaveLanguage(cmd.Context(), userID, claims.Username, lang); err != nil {
			return err
		}

		// refresh the shared copy so other clients see it before the TTL runs out
		if cfg.RedisEnabled() {
			if err := cache.ConnectRedis(cfg); err != nil {
				logger.Warn("shared preference cache not refreshed", logger.ErrorField(err))
			} else {
				defer cache.CloseRedis()
				shared := cache.NewPreferenceCache(cache.RedisClient, cfg.PreferenceCacheTTL)
				if err := shared.SetLanguage(cmd.Context(), userID, lang); err != nil {
					logger.Warn("shared preference cache not refreshed", logger.ErrorField(err))
				}
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "user %d now prefers %q\n", userID, lang)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(preferCmd)
}
