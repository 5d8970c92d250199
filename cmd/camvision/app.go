package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/matiasleandrokruk/camvision/internal/domain/history"
	"github.com/matiasleandrokruk/camvision/internal/domain/vision"
	"github.com/matiasleandrokruk/camvision/internal/infra/capture"
	"github.com/matiasleandrokruk/camvision/internal/infra/config"
	"github.com/matiasleandrokruk/camvision/internal/infra/eventbus"
	"github.com/matiasleandrokruk/camvision/internal/infra/llm"
	"github.com/matiasleandrokruk/camvision/internal/infra/sqlite"
)

// app is the wired component graph shared by serve and the one-shot commands.
type app struct {
	cfg        config.Config
	logger     *zap.Logger
	db         *sql.DB
	history    *history.Service
	providers  *llm.Router
	transport  *llm.HTTPTransport
	dispatcher *vision.Dispatcher
	source     capture.Source
	controller *vision.StreamController
	bus        *eventbus.Bus
}

// newApp wires every component. withDB opens and migrates the history store.
func newApp(cfg config.Config, logger *zap.Logger, withDB bool) (*app, error) {
	a := &app{
		cfg:       cfg,
		logger:    logger,
		providers: buildProviders(cfg),
		transport: llm.NewHTTPTransport(),
		bus:       eventbus.New(),
	}

	dispatchOpts := []vision.DispatcherOption{
		vision.WithRequestTimeout(cfg.RequestTimeout),
		vision.WithDispatchLogger(logger.Named("dispatch")),
	}
	if withDB {
		db, err := openHistory(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.history = history.NewService(db)
		dispatchOpts = append(dispatchOpts, vision.WithRecorder(a.history))
	}
	a.dispatcher = vision.NewDispatcher(a.providers, a.transport, dispatchOpts...)

	source, err := buildSource(cfg.Capture)
	if err != nil {
		a.close()
		return nil, err
	}
	a.source = source
	a.controller = vision.NewStreamController(source, a.dispatcher,
		vision.WithEncoder(vision.JPEGEncoder{MaxDimension: cfg.Stream.MaxDimension}),
		vision.WithFrontFacing(cfg.Stream.FrontFacing),
		vision.WithLogger(logger.Named("stream")),
	)
	return a, nil
}

func (a *app) close() {
	if a.db != nil {
		_ = a.db.Close()
		a.db = nil
	}
}

func buildProviders(cfg config.Config) *llm.Router {
	return llm.NewRouter(map[string]llm.LLMProvider{
		"ollama": llm.NewOllamaProvider(cfg.Ollama.Host, cfg.Ollama.Model, llm.OllamaEndpoint(cfg.Ollama.Endpoint)),
		"gemini": llm.NewGeminiProvider(cfg.Gemini.Host, cfg.Gemini.Version, cfg.Gemini.Model, cfg.Gemini.APIKey),
		"openai": llm.NewOpenAIProvider(cfg.OpenAI.Host, cfg.OpenAI.Model, cfg.OpenAI.APIKey),
	}, cfg.Provider)
}

func buildSource(cfg config.CaptureConfig) (capture.Source, error) {
	switch cfg.Backend {
	case "", "synthetic":
		return capture.NewSyntheticSource(capture.SyntheticOptions{}), nil
	case "opencv":
		src, err := capture.NewOpenCVSource()
		if err != nil {
			return nil, fmt.Errorf("capture backend opencv: %w", err)
		}
		return src, nil
	default:
		return nil, fmt.Errorf("capture backend %q: unknown", cfg.Backend)
	}
}

// openDB opens the history store, creating its directory first.
func openDB(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sqlite.NewDB(path)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	return db, nil
}

func openHistory(path string) (*sql.DB, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := sqlite.MigrateUp(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return db, nil
}
