package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/matiasleandrokruk/camvision/internal/domain/vision"
	"github.com/matiasleandrokruk/camvision/internal/infra/config"
	"github.com/matiasleandrokruk/camvision/internal/infra/llm"
	"github.com/matiasleandrokruk/camvision/internal/infra/sqlite"
)

func runMigrate(ctx context.Context, cfg config.Config, out io.Writer) int {
	db, err := openDB(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(out, "migrate: %v\n", err) //nolint:errcheck
		return 1
	}
	defer db.Close() //nolint:errcheck

	applied, err := sqlite.Migrate(ctx, db)
	for _, m := range applied {
		fmt.Fprintf(out, "applied %s\n", m.Name) //nolint:errcheck
	}
	if err != nil {
		fmt.Fprintf(out, "migrate: %v\n", err) //nolint:errcheck
		return 1
	}

	version, err := sqlite.MigrationVersion(ctx, db)
	if err != nil {
		fmt.Fprintf(out, "migrate: %v\n", err) //nolint:errcheck
		return 1
	}
	fmt.Fprintf(out, "%s: schema at version %d (%d applied)\n", cfg.DBPath, version, len(applied)) //nolint:errcheck
	return 0
}

func runDevices(ctx context.Context, cfg config.Config, logger *zap.Logger, out io.Writer) int {
	a, err := newApp(cfg, logger, false)
	if err != nil {
		fmt.Fprintf(out, "devices: %v\n", err) //nolint:errcheck
		return 1
	}
	devices, err := a.source.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(out, "devices: %v\n", err) //nolint:errcheck
		return 1
	}
	return printJSON(out, devices)
}

func runModels(ctx context.Context, cfg config.Config, logger *zap.Logger, args []string, out io.Writer) int {
	fs := flag.NewFlagSet("models", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	provider := fs.String("provider", "", "Provider name (default: configured provider)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	a, err := newApp(cfg, logger, false)
	if err != nil {
		fmt.Fprintf(out, "models: %v\n", err) //nolint:errcheck
		return 1
	}
	p, err := a.providers.Route(*provider)
	if err != nil {
		fmt.Fprintf(out, "models: %v\n", err) //nolint:errcheck
		return 1
	}
	body, err := llm.ListModels(ctx, p, a.transport, cfg.RequestTimeout)
	if err != nil {
		fmt.Fprintf(out, "models: %v\n", err) //nolint:errcheck
		return 1
	}
	fmt.Fprintln(out, body) //nolint:errcheck
	return 0
}

// runAsk sends one image file, or a capture burst when --image is empty.
func runAsk(ctx context.Context, cfg config.Config, logger *zap.Logger, args []string, out io.Writer) int {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	question := fs.String("question", "", "Question to ask (required)")
	image := fs.String("image", "", "Image file to send")
	burst := fs.Duration("burst", vision.DefaultBurstDuration, "Burst capture duration")
	fps := fs.Int("fps", cfg.Stream.FPS, "Burst capture rate")
	device := fs.String("device", cfg.Stream.Device, "Capture device name")
	provider := fs.String("provider", "", "Provider name (default: configured provider)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *question == "" {
		fmt.Fprintln(out, "ask: --question is required") //nolint:errcheck
		return 2
	}

	a, err := newApp(cfg, logger, false)
	if err != nil {
		fmt.Fprintf(out, "ask: %v\n", err) //nolint:errcheck
		return 1
	}

	var reply string
	if *image != "" {
		reply, err = a.dispatcher.AskImageFile(ctx, *provider, *question, *image)
	} else {
		reply, err = a.controller.AskBurst(ctx, vision.BurstOptions{
			Question: *question,
			FPS:      *fps,
			Duration: *burst,
			Device:   *device,
			Width:    cfg.Stream.Width,
			Height:   cfg.Stream.Height,
			Quality:  cfg.Stream.Quality,
			Provider: *provider,
		})
	}
	if err != nil {
		fmt.Fprintf(out, "ask: %v\n", err) //nolint:errcheck
		return 1
	}
	fmt.Fprintln(out, reply) //nolint:errcheck
	return 0
}

func printJSON(out io.Writer, v any) int {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return 1
	}
	return 0
}

