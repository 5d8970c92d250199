// Command camvision streams camera frames to a vision LLM and serves a control API.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/matiasleandrokruk/camvision/internal/infra/config"
	"github.com/matiasleandrokruk/camvision/internal/infra/logging"
	"github.com/matiasleandrokruk/camvision/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, out io.Writer) int {
	fs := flag.NewFlagSet("camvision", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	showVersion := fs.Bool("version", false, "Show version information")
	showHelp := fs.Bool("help", false, "Show help")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Fprintln(out, version.String()) //nolint:errcheck
		return 0
	}
	if *showHelp || fs.NArg() == 0 {
		printHelp(out)
		return 0
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	if cmd == "version" {
		fmt.Fprintln(out, version.String()) //nolint:errcheck
		return 0
	}

	cfg, logger, code := setup(out)
	if logger == nil {
		return code
	}
	defer logger.Sync() //nolint:errcheck

	switch cmd {
	case "serve":
		return runServe(ctx, cfg, logger, rest, out)
	case "migrate":
		return runMigrate(ctx, cfg, out)
	case "devices":
		return runDevices(ctx, cfg, logger, out)
	case "models":
		return runModels(ctx, cfg, logger, rest, out)
	case "ask":
		return runAsk(ctx, cfg, logger, rest, out)
	default:
		fmt.Fprintf(out, "unknown command %q\n\n", cmd) //nolint:errcheck
		printHelp(out)
		return 2
	}
}

// setup loads and validates config and builds the logger. A nil logger means
// startup failed and the returned code should be used.
func setup(out io.Writer) (config.Config, *zap.Logger, int) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(out, "config: %v\n", err) //nolint:errcheck
		return cfg, nil, 1
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintf(out, "config: %s\n", p) //nolint:errcheck
		}
		return cfg, nil, 1
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(out, "logging: %v\n", err) //nolint:errcheck
		return cfg, nil, 1
	}
	return cfg, logger, 0
}

func printHelp(out io.Writer) {
	helpText := `camvision - camera to vision LLM streamer

Usage:
  camvision [options] <command> [command options]

Options:
  --version    Show version information
  --help       Show this help message

Commands:
  serve        Start the control API
  migrate      Apply history database migrations
  devices      List capture devices
  models       List models of a provider
  ask          Ask about an image file or a short capture burst
  version      Show version information

Configuration is read from the YAML file named by CAMVISION_CONFIG,
then from environment variables (PROVIDER, OLLAMA_HOST, GOOGLE_API_KEY, ...).

Examples:
  camvision serve --port 8080
  camvision ask --question "What is on the desk?" --image desk.jpg
  camvision ask --question "What changed?" --burst 2s --fps 5
  camvision models --provider gemini`
	fmt.Fprintln(out, helpText) //nolint:errcheck
}
