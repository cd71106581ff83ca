package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ashureev/sunbrief/internal/app"
	"github.com/ashureev/sunbrief/internal/config"
	"github.com/ashureev/sunbrief/internal/domain"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var Version = "dev"

// errFailedEnvelope marks an error envelope that was already printed.
var errFailedEnvelope = errors.New("operation failed")

func main() {
	rootCmd := &cobra.Command{
		Use:           "sunbrief",
		Short:         "Sunbrief - Daily solar production briefings",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().Bool("verbose", false, "Log portal and store activity to stderr")

	rootCmd.AddCommand(challengeCmd())
	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(productionCmd())
	rootCmd.AddCommand(briefingCmd())
	rootCmd.AddCommand(statusCmd())

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errFailedEnvelope) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// withApp loads configuration, wires dependencies and runs fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	var out io.Writer = io.Discard
	if verbose {
		out = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	return fn(ctx, deps)
}

func printEnvelope(w io.Writer, result domain.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}
	if !result.OK() {
		return errFailedEnvelope
	}
	return nil
}

func challengeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "challenge",
		Short: "Text a verification code to the configured phone number",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return printEnvelope(cmd.OutOrStdout(), a.Pipeline.IssueChallenge(ctx))
			})
		},
	}
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [code]",
		Short: "Complete sign-in with the texted verification code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return printEnvelope(cmd.OutOrStdout(), a.Pipeline.CompleteChallenge(ctx, args[0]))
			})
		},
	}
}

func productionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "production",
		Short: "Print the daily production series",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return printEnvelope(cmd.OutOrStdout(), a.Pipeline.ProductionData(ctx))
			})
		},
	}
}

func briefingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "briefing",
		Short: "Print today's production briefing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			categories, _ := cmd.Flags().GetStringSlice("category")
			random, _ := cmd.Flags().GetInt("random")

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				switch {
				case random > 0:
					categories = a.Equivalency.Random(random)
				case len(categories) == 0:
					categories = a.Config.Briefing.Categories
				}
				return printEnvelope(cmd.OutOrStdout(), a.Pipeline.DailyBriefing(ctx, categories))
			})
		},
	}

	cmd.Flags().StringSliceP("category", "c", nil, "Equivalency categories (repeatable or comma-separated)")
	cmd.Flags().IntP("random", "r", 0, "Pick n random categories instead")

	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show where the session is in the sign-in flow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				sess, err := a.Sessions.Session(ctx)
				if err != nil {
					return err
				}

				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Phone:    %s\n", sess.PhoneNumber)
				fmt.Fprintf(w, "State:    %s\n", sess.State())
				fmt.Fprintf(w, "Store:    %s (%s)\n", a.Config.Store.Path, a.Config.Store.Backend)
				fmt.Fprintf(w, "Timezone: %s\n", a.Config.Portal.Timezone)
				if !sess.ServiceStartDate.IsZero() {
					fmt.Fprintf(w, "Service:  since %s\n", sess.ServiceStartDate.Format(domain.DateLayout))
				}
				return nil
			})
		},
	}
}
