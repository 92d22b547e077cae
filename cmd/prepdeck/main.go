package main

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	noColor   bool
	serverURL string
)

// errReported marks a failure already shown to the operator as a banner.
var errReported = errors.New("reported")

var rootCmd = &cobra.Command{
	Use:           "prepdeck",
	Short:         "Operator console for the Prep Brain kitchen assistant",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", "", "control-plane URL (overrides server.url)")

	rootCmd.AddCommand(
		statusCmd, logsCmd, controlCmd, sequenceCmd, estopCmd,
		sessionsCmd, knowledgeCmd, remoteConfigCmd,
		vendorsCmd, itemsCmd, recipesCmd, inventoryCmd, menuCmd, prepUpdateCmd,
		brainCmd, transcribeCmd, draftEmailCmd,
		autonomyCmd, sysinfoCmd, journalCmd,
		configCmd, loginCmd,
		dashCmd, simCmd, mcpCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			printError("%v", err)
		}
		os.Exit(1)
	}
}

// setupLogging installs the default slog handler. Output goes to w, which
// is a file while the dashboard owns the terminal.
func setupLogging(level string, w io.Writer) {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel})))
}

func stringsFlag(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

func intFlag(cmd *cobra.Command, name string) int {
	v, _ := cmd.Flags().GetInt(name)
	return v
}

func boolFlag(cmd *cobra.Command, name string) bool {
	v, _ := cmd.Flags().GetBool(name)
	return v
}

func floatFlag(cmd *cobra.Command, name string) float64 {
	v, _ := cmd.Flags().GetFloat64(name)
	return v
}

