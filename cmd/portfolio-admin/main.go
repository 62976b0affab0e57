package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tendant/portfolio-content/pkg/portfolio/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	_ = godotenv.Load()

	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "portfolio-admin",
		Short: "Portfolio content administration",
		Long: `Administer the portfolio content backend from a terminal.

Reads the same environment as portfolio-server (DATABASE_URL, STORAGE_URL,
ADMIN_IDENTIFIER, ADMIN_PASSWORD_HASH, PURGE_FUNCTION_URL, ...).`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(NewGroupsCommand())
	rootCmd.AddCommand(NewActivityCommand())
	rootCmd.AddCommand(NewHashPasswordCommand())
	rootCmd.AddCommand(NewPurgeCommand())

	return rootCmd
}

// buildComponents loads the configuration from the environment and wires
// the service.
func buildComponents(ctx context.Context) (*config.ServerConfig, *config.Components, error) {
	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	comps, err := cfg.Build(ctx, slog.Default())
	if err != nil {
		return nil, nil, err
	}
	return cfg, comps, nil
}

// readPassword prompts for a secret without echo when in is a terminal.
func readPassword(in *os.File, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	if term.IsTerminal(int(in.Fd())) {
		b, err := term.ReadPassword(int(in.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return readLine(in)
}

func readLine(in io.Reader) (string, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
