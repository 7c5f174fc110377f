package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mudler/localqa/rag/llm"
	"github.com/mudler/xlog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "localqa",
	Short: "Ask several language models about an uploaded document",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadEnvFile(envFile); err != nil {
			return err
		}
		setDefaults(viper.GetViper())
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models and whether a provider is configured for them",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		printModels(cmd.OutOrStdout(), cfg, buildProviders(cfg))
		return nil
	},
}

// printModels lists every known model, marking those with a provider and
// those asked when a question selects no model.
func printModels(w io.Writer, cfg config, providers map[llm.ModelID]llm.Provider) {
	defaults := map[llm.ModelID]bool{}
	for _, m := range cfg.DefaultModels {
		defaults[m] = true
	}
	for _, m := range llm.AllModels {
		_, ok := providers[m]
		fmt.Fprintf(w, "%s\tconfigured=%t\tdefault=%t\n", m, ok, defaults[m])
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	serveCmd.Flags().String("address", "", "listen address (defaults to :$PORT)")
	viper.BindPFlag("server.address", serveCmd.Flags().Lookup("address"))

	rootCmd.AddCommand(serveCmd, modelsCmd)
}

func serve(ctx context.Context, cfg config) error {
	app, err := newApp(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app.store.Start(ctx)

	e := newAPI(cfg, app)

	go func() {
		xlog.Info("Starting server", "address", cfg.Address)
		if err := e.Start(cfg.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			xlog.Error("Failed to start server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	xlog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		xlog.Error("Server forced to shutdown", "error", err)
		return err
	}

	xlog.Info("Server exited")
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		xlog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
