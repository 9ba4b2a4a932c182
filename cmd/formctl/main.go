// Command formctl drives the form pipeline from the command line: postcode
// resolution, certificate extraction, link and file imports, and scripted
// sessions from a YAML answers file.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/heatmyhome-form/internal/app"
	"github.com/couchcryptid/heatmyhome-form/internal/config"
	"github.com/couchcryptid/heatmyhome-form/internal/domain"
	"github.com/couchcryptid/heatmyhome-form/internal/form"
	"github.com/couchcryptid/heatmyhome-form/internal/observability"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "formctl",
		Short:        "Run the HeatMyHome form pipeline against the live registries",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(certificateCmd())
	rootCmd.AddCommand(loadCmd())
	rootCmd.AddCommand(fillCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [postcode]",
		Short: "Validate a postcode and list the certificates registered at it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnv(false)
			if err != nil {
				return err
			}
			defer env.close()
			return runResolve(cmd.Context(), env.session, args[0], cmd.OutOrStdout())
		},
	}
}

func certificateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "certificate [id]",
		Short: "Fetch a certificate and print the extracted estimates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnv(false)
			if err != nil {
				return err
			}
			defer env.close()
			return runCertificate(cmd.Context(), env.deps.Directory, args[0], cmd.OutOrStdout())
		},
	}
}

func loadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load [file|link]",
		Short: "Import a saved results file or a shareable link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnv(false)
			if err != nil {
				return err
			}
			defer env.close()
			return runLoad(cmd.Context(), env.session, args[0], cmd.OutOrStdout())
		},
	}
}

func fillCmd() *cobra.Command {
	var submit bool

	cmd := &cobra.Command{
		Use:   "fill [answers.yaml]",
		Short: "Fill a session from a YAML answers file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			answers, err := parseAnswers(data)
			if err != nil {
				return err
			}
			env, err := newEnv(submit)
			if err != nil {
				return err
			}
			defer env.close()
			return runFill(cmd.Context(), env.session, answers, submit, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&submit, "submit", false, "dispatch the simulation once the form is ready")
	return cmd
}

// env is one command's session plus whatever must be torn down after it.
type env struct {
	deps    form.Deps
	session *form.Session
	stop    context.CancelFunc
	cleanup func() error
}

func newEnv(withBackend bool) (*env, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := observability.NewLoggerTo(os.Stderr, cfg)
	metrics := observability.NewUnregisteredMetrics()

	e := &env{stop: func() {}}
	var sim domain.SimulationBackend
	if withBackend {
		b, err := app.NewBackend(cfg, logger)
		if err != nil {
			return nil, err
		}
		sim = b
		if b.Run != nil {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				defer close(done)
				if err := b.Run(ctx); err != nil {
					logger.Error("simulation backend stopped", "error", err)
				}
			}()
			e.stop = func() {
				cancel()
				<-done
			}
		}
		e.cleanup = b.Close
	}

	e.deps = app.NewDeps(cfg, sim, metrics, logger)
	e.session = form.NewSession(uuid.NewString(), e.deps)
	return e, nil
}

func (e *env) close() {
	e.session.Close()
	e.stop()
	if e.cleanup != nil {
		_ = e.cleanup()
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
