package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"issuewiz/config"
	"issuewiz/internal/analysis"
	"issuewiz/internal/api"
	"issuewiz/internal/files"
	"issuewiz/internal/llm"
	"issuewiz/internal/server"
	"issuewiz/logging"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "1.0.0"

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "issuewiz",
		Short: "IssueWiz - An AI-powered assistant for decoding open-source issues",
		Long: `IssueWiz serves the API behind the IssueWiz web app. It validates issue
analysis requests, fetches the candidate files and asks a language model
(Ollama or Gemini) which files most likely need to change.

Example:
  issuewiz serve --config config.yaml --port 8000`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// A missing .env is normal outside local development.
			if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
				logrus.Warnf("Error loading .env file: %v", err)
			}
		},
	}
	root.Version = version
	root.SetVersionTemplate("{{.Name}} {{.Version}}\n")
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	serve := newServeCmd(&cfgFile)
	root.AddCommand(serve, newConfigCmd(&cfgFile), newVersionCmd())

	// Running without a subcommand serves.
	root.Flags().AddFlagSet(serve.Flags())
	root.RunE = serve.RunE
	return root
}

func newServeCmd(cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile, cmd.Flags())
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			return serve(cfg)
		},
	}
	cmd.Flags().Int("port", 8000, "port to listen on")
	return cmd
}

func newConfigCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile, nil)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "issuewiz %s\n", version)
		},
	}
}

func serve(cfg *config.Config) error {
	closeLog := logging.InitLogger(cfg.Logging)
	defer closeLog()

	gin.SetMode(cfg.Server.Mode)

	client, err := llm.New(cfg.LLM)
	if err != nil {
		return fmt.Errorf("creating %s client: %w", cfg.LLM.Provider, err)
	}
	engine := analysis.NewEngine(client, files.NewFetcher(cfg.Analysis, nil), cfg.Analysis, cfg.LLM)

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("initializing server: %w", err)
	}
	if err := srv.Mount("/models", "models", api.NewModelsRouter(engine, cfg.Server.MaxBodyBytes)); err != nil {
		return fmt.Errorf("mounting models router: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logrus.Infof("Using %s provider", cfg.LLM.Provider)
	return srv.Run(ctx)
}
