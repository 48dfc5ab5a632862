package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/insightmesh"
	"github.com/hupe1980/insightmesh/archetype"
	"github.com/hupe1980/insightmesh/config"
	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/engine"
	"github.com/hupe1980/insightmesh/invoker"
	"github.com/hupe1980/insightmesh/learning"
	"github.com/hupe1980/insightmesh/logging"
	"github.com/hupe1980/insightmesh/model"
	"github.com/hupe1980/insightmesh/model/anthropic"
	"github.com/hupe1980/insightmesh/model/openai"
	"github.com/hupe1980/insightmesh/telemetry"
)

// newModel selects the provider adapter named by cfg.
func newModel(cfg config.Config) (model.Model, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.APIKey = cfg.AnthropicAPIKey
			if cfg.Model != "" {
				o.Model = anthropicsdk.Model(cfg.Model)
			}
			o.MaxTokens = cfg.MaxTokens
		}), nil
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			o.APIKey = cfg.OpenAIAPIKey
			o.BaseURL = cfg.OpenAIBaseURL
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			o.MaxCompletionTokens = cfg.MaxTokens
		}), nil
	case config.ProviderMock:
		m := model.NewMockModel("insightmesh-simulation")
		m.Respond = simulate
		return m, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// levels orders the scalar words rendered into persona instructions.
var levels = map[string]int{"very low": 0, "low": 1, "moderate": 2, "high": 3, "very high": 4}

// simulate answers offline: archetypes whose imagination is at least their
// skepticism argue for the question, the rest against it.
func simulate(req model.Request) (string, error) {
	name := "The panel"
	if first, _, _ := strings.Cut(req.Instructions, "\n"); strings.HasPrefix(first, "You are ") {
		name, _, _ = strings.Cut(strings.TrimPrefix(first, "You are "), ",")
		name = strings.TrimSuffix(name, ".")
	}
	question := ""
	if len(req.Messages) > 0 {
		first, _, _ := strings.Cut(req.Messages[len(req.Messages)-1].Text, "\n")
		question = strings.TrimPrefix(first, "Question: ")
	}
	if scalar(req.Instructions, "Imagination") >= scalar(req.Instructions, "Skepticism") {
		return fmt.Sprintf("Yes, %s would pursue it: the opportunity behind %q is real and bold moves compound.", name, question), nil
	}
	return fmt.Sprintf("No, %s would avoid it: the risk behind %q is high and the evidence weak.", name, question), nil
}

func scalar(instructions, label string) int {
	_, rest, ok := strings.Cut(instructions, label+": ")
	if !ok {
		return 0
	}
	word, _, _ := strings.Cut(rest, ".")
	return levels[word]
}

// app bundles what a subcommand needs and how to release it.
type app struct {
	mesh    *insightmesh.Mesh
	logger  *logging.InsightLogger
	cleanup []func(ctx context.Context) error
}

func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		errs = append(errs, a.cleanup[i](ctx))
	}
	return errors.Join(errs...)
}

// newApp wires telemetry, the learning store, the archetype registry and
// the generator from cfg.
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{logger: cfg.Logger().WithComponent("cli")}

	shutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, err
	}
	a.cleanup = append(a.cleanup, shutdown)

	var store core.LearningStore = learning.NewInMemoryStore()
	if cfg.LearningDB != "" {
		sqlStore, err := learning.OpenSQLStore(cfg.LearningDB)
		if err != nil {
			_ = a.Close(ctx)
			return nil, err
		}
		store = sqlStore
		a.cleanup = append(a.cleanup, func(context.Context) error { return sqlStore.Close() })
	}

	registry, err := loadRegistry(cfg.ArchetypePack)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	m, err := newModel(cfg)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	gen := invoker.NewModelGenerator(m, func(o *invoker.ModelGeneratorOptions) {
		o.MaxTokens = cfg.MaxTokens
		o.Stream = cfg.Stream
	})

	callbacks := engine.NewCallbackManager()
	callbacks.RegisterCallback(engine.NewLoggingCallback(engine.CallbackAfterRun, a.logger))
	callbacks.RegisterCallback(engine.NewLoggingCallback(engine.CallbackOnBreakthrough, a.logger))

	a.mesh = insightmesh.New(gen, func(o *insightmesh.Options) {
		o.EngineConfig = cfg.Engine()
		o.Registry = registry
		o.Store = store
		o.Callbacks = callbacks
		o.Logger = cfg.Logger().WithComponent("engine")
	})
	// Registered last so the engine stops before the store closes.
	a.cleanup = append(a.cleanup, func(context.Context) error { return a.mesh.Close() })
	return a, nil
}

func loadRegistry(packPath string) (*archetype.Registry, error) {
	registry := archetype.NewRegistry()
	if packPath == "" {
		return registry, nil
	}
	f, err := os.Open(packPath)
	if err != nil {
		return nil, fmt.Errorf("open archetype pack: %w", err)
	}
	defer f.Close()
	if _, err := registry.LoadYAML(f); err != nil {
		return nil, fmt.Errorf("load archetype pack %s: %w", packPath, err)
	}
	return registry, nil
}
