package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	lambdaconfig "github.com/emaland/lambdactl/internal/config"
	"github.com/emaland/lambdactl/internal/lambda"
)

var (
	cfg    lambdaconfig.Config
	client *lambda.Client
	debug  bool
)

const apiKeyGuidance = `Lambda API key not found. Set it with:

  export LAMBDA_API_KEY=...

Keys are managed at https://cloud.lambdalabs.com/api-keys`

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lambdactl",
		Short: "Rent GPU instances from the Lambda Labs cloud",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			if debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

			var err error
			cfg, err = lambdaconfig.Load()
			if err != nil {
				return err
			}
			if cfg.APIKey == "" {
				fmt.Fprintln(os.Stderr, apiKeyGuidance)
				return errors.New("LAMBDA_API_KEY is not set")
			}

			client = lambda.New(lambda.Config{
				APIKey:  cfg.APIKey,
				BaseURL: cfg.BaseURL,
				Logger:  log.Logger,
			})

			// Verify the key is accepted before any command runs.
			return client.ValidateKey(cmd.Context())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Bare invocation: the pre-run already validated the key.
			fmt.Println("API key is valid")
			return nil
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	root.AddCommand(
		newListCmd(),
		newStartCmd(),
		newStopCmd(),
		newRunningCmd(),
		newFindCmd(),
	)
	return root
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
