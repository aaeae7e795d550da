package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/rise-habits/rise/internal/daemon"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Rise API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := daemon.New()
	if err != nil {
		return err
	}

	// Override config from flags
	if serveHost != "" {
		e.Config.API.Host = serveHost
	}
	if servePort > 0 {
		e.Config.API.Port = servePort
	}

	return e.Serve(context.Background())
}
