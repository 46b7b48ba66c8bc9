package loadgen

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/security-monitoring-service/internal/tools/common"
	"github.com/sandeepkv93/security-monitoring-service/internal/tools/ui"
)

func NewCommand() *cobra.Command {
	cfg := Config{}
	var ci bool
	cmd := &cobra.Command{
		Use:   "loadgen",
		Short: "Drive login, session and brute-force traffic against a running service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			title := "loadgen " + normalizeProfile(cfg.Profile)
			drill := func(ctx context.Context) ([]string, error) {
				res, err := Run(ctx, cfg)
				if err == nil && res.Failures > 0 {
					err = fmt.Errorf("%d of %d requests failed", res.Failures, res.TotalRequests)
				}
				return res.Summary(), err
			}
			if ci {
				details, err := drill(ctx)
				common.PrintCIResult(err == nil, title, details, err)
				if err != nil {
					os.Exit(4)
				}
				return nil
			}
			_, err := ui.Run(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), title, drill)
			return err
		},
	}
	cmd.Flags().StringVar(&cfg.BaseURL, "base-url", "http://localhost:8080", "API base URL")
	cmd.Flags().StringVar(&cfg.Profile, "profile", "mixed", "traffic profile: mixed, auth or sessions")
	cmd.Flags().DurationVar(&cfg.Duration, "duration", 10*time.Second, "how long to generate traffic")
	cmd.Flags().Float64Var(&cfg.RPS, "rps", 10, "requests per second across all workers")
	cmd.Flags().IntVar(&cfg.Concurrency, "concurrency", 4, "concurrent workers")
	cmd.Flags().Uint64Var(&cfg.Seed, "seed", 42, "random seed for step selection")
	cmd.Flags().StringVar(&cfg.Username, "username", "loadgen", "account used for logins")
	cmd.Flags().StringVar(&cfg.Password, "password", "", "password of --username")
	cmd.Flags().IntVar(&cfg.SourceIPs, "source-ips", 8, "distinct forwarded addresses for failed logins")
	cmd.Flags().BoolVar(&ci, "ci", false, "non-interactive machine-readable output")
	return cmd
}
