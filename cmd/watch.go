package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cinethos/auth"
	"cinethos/cache"
	"cinethos/core/channel"
	"cinethos/core/player"
	"cinethos/core/session"
	"cinethos/db"
	"cinethos/logger"
	"cinethos/metrics"
	"cinethos/notify"
	"cinethos/repository"
	"cinethos/server"
	"cinethos/ui"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	listenAddr   string
	languageFlag string
)

var watchCmd = &cobra.Command{
	Use:   "watch <contentId>",
	Short: "Play a stream and follow its preparation until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "serve the status API on this address (overrides STATUS_ADDR)")
	watchCmd.Flags().StringVar(&languageFlag, "lang", "", "preferred subtitle language (overrides LANGUAGE_PREFERENCE)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, closeProvider, err := auth.NewProvider(cfg)
	if err != nil {
		return err
	}
	defer closeProvider()
	credential, err := provider.Credential()
	if err != nil {
		return err
	}

	m := metrics.New()
	recent := notify.NewRecorder(6)
	sink := notify.Fanout{notify.NewLogSink(logger.Named("notify")), recent}

	var userID int64
	if claims, err := auth.Inspect(credential); err != nil {
		sink.Notify(notify.KindCredential, "Credential unreadable", err.Error())
	} else {
		userID = claims.User()
		if problem := auth.ExpiryProblem(claims, time.Now()); problem != "" {
			sink.Notify(notify.KindCredential, "Credential problem", problem)
		}
	}

	resolver, closeStores := preferenceResolver()
	defer closeStores()
	pref := resolver.Resolve(ctx, userID)

	ctrl := session.NewController(session.Options{
		BaseURL:         cfg.APIBaseURL,
		StallTimeout:    cfg.StallTimeout,
		AutoplayBlocked: cfg.AutoplayBlocked,
		PlayerOptions: player.Options{
			Native: cfg.NativePlayback,
			Client: &http.Client{Timeout: cfg.HTTPTimeout},
		},
		ChannelOptions: channel.Options{MaxRetries: cfg.ChannelMaxRetries},
		Notifier:       sink,
		Metrics:        m,
	})
	go ctrl.Run()
	defer ctrl.Stop()

	addr := listenAddr
	if addr == "" {
		addr = cfg.StatusAddr
	}
	if addr != "" {
		srv := server.New(ctrl, server.Options{Metrics: m, Notifications: recent})
		bound, err := srv.Start(addr)
		if err != nil {
			return fmt.Errorf("status server: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "status API on http://%s/api/session\n", bound)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	updates, cancel := ctrl.Subscribe()
	defer cancel()

	if err := ctrl.Open(args[0], credential, pref); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for {
		select {
		case <-ctx.Done():
			return ctrl.Close()
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			draw(out, snap, recent.Items())
		}
	}
}

// draw redraws in place on a terminal and appends otherwise.
func draw(w io.Writer, snap session.Snapshot, recent []notify.Notification) {
	if !color.NoColor {
		fmt.Fprint(w, "\033[H\033[2J")
	} else {
		fmt.Fprintln(w, "--")
	}
	if err := ui.Render(w, snap); err != nil {
		logger.Debug("render failed", logger.ErrorField(err))
		return
	}
	if len(recent) > 0 {
		fmt.Fprintln(w)
		ui.RenderNotifications(w, recent)
	}
}

// preferenceResolver wires whichever preference stores are configured. A
// store that cannot be reached is skipped with a warning.
func preferenceResolver() (*auth.PreferenceResolver, func()) {
	override := cfg.LanguagePreference
	if languageFlag != "" {
		override = languageFlag
	}
	opts := auth.PreferenceOptions{Override: override, TTL: cfg.PreferenceCacheTTL}
	var closers []func() error

	if override == "" && cfg.RedisEnabled() {
		if err := cache.ConnectRedis(cfg); err != nil {
			logger.Warn("preference cache disabled", logger.ErrorField(err))
		} else {
			opts.Shared = cache.NewPreferenceCache(cache.RedisClient, cfg.PreferenceCacheTTL)
			closers = append(closers, cache.CloseRedis)
		}
	}
	if override == "" && cfg.DBEnabled() {
		if err := db.ConnectGormDB(cfg); err != nil {
			logger.Warn("preference store disabled", logger.ErrorField(err))
		} else {
			opts.Store = repository.NewGormPreferenceRepository(db.GormDB)
			closers = append(closers, db.CloseGormDB)
		}
	}

	return auth.NewPreferenceResolver(opts), func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Debug("close preference store", logger.ErrorField(err))
			}
		}
	}
}
