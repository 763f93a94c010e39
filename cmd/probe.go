package cmd

import (
	"context"
	"fmt"
	"net/http"

	"cinethos/auth"
	"cinethos/core/player"
	"cinethos/core/session"
	"cinethos/ui"

	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe <contentId>",
	Short: "Fetch a stream manifest once and print what it offers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, closeProvider, err := auth.NewProvider(cfg)
		if err != nil {
			return err
		}
		defer closeProvider()
		credential, err := provider.Credential()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.HTTPTimeout)
		defer cancel()

		manifestURL := session.ManifestURL(cfg.APIBaseURL, args[0])
		m, a, err := player.Probe(ctx, &http.Client{Timeout: cfg.HTTPTimeout}, manifestURL, credential)
		if err != nil {
			if player.IsNotFound(err) {
				return fmt.Errorf("%s is not published yet: %w", args[0], err)
			}
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, manifestURL)
		for _, l := range m.Levels {
			fmt.Fprintf(out, "  level %d  %-8s %7d kbps\n", l.Index, l.Label, l.BitrateBps/1000)
		}
		for _, s := range m.Subtitles {
			fmt.Fprintf(out, "  subtitle %d  %s (%s)\n", s.Index, s.Label, s.Language)
		}
		state := "growing"
		if a.Ended {
			state = "complete"
		}
		fmt.Fprintf(out, "  %d segments, %s, %s\n", a.Segments, ui.Clock(a.Duration), state)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
}
