package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/talentmesh/actionloop"
	"github.com/talentmesh/actionloop/internal/actionlog"
	"github.com/talentmesh/actionloop/internal/adapters"
	"github.com/talentmesh/actionloop/internal/cache"
	"github.com/talentmesh/actionloop/internal/config"
	"github.com/talentmesh/actionloop/internal/eventbus"
	"github.com/talentmesh/actionloop/internal/executor"
	"github.com/talentmesh/actionloop/internal/planner"
	"github.com/talentmesh/actionloop/internal/prompt"
	"github.com/talentmesh/actionloop/internal/tools"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	message := flag.String("message", "", "process a single message and print the response")
	sessionID := flag.String("session", "", "session id, generated when empty")
	profileID := flag.String("profile", "", "profile id for chat mode")
	roleID := flag.String("role", "", "target role id")
	flag.Parse()

	if err := run(*configPath, *message, *sessionID, *profileID, *roleID); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func run(configPath, message, sessionID, profileID, roleID string) error {
	ctx := context.Background()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Model.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}

	prompts, err := prompt.NewRegistry(ctx,
		genkit.WithPlugins(&googlegenai.GoogleAI{}),
		genkit.WithDefaultModel(cfg.Model.Name),
	)
	if err != nil {
		return fmt.Errorf("initialize prompts: %w", err)
	}
	if err := ensureInvokePrompt(prompts); err != nil {
		return err
	}

	promptName := adapters.DefaultInvokePrompt
	if cfg.Planner.PromptName != "" {
		promptName = cfg.Planner.PromptName
	}

	var invoker actionloop.ModelInvoker
	if cfg.Model.UseFlow {
		invoker = adapters.NewFlowModelInvoker(defineInvokeFlow(prompts, promptName))
	} else {
		invoker, err = adapters.NewGenkitModelInvoker(prompts, adapters.WithPromptName(promptName))
		if err != nil {
			return fmt.Errorf("build model invoker: %w", err)
		}
	}

	registry := actionloop.NewRegistry()
	builtins, err := tools.SetupTools(tools.NewDemoDirectory(), invoker)
	if err != nil {
		return fmt.Errorf("build tools: %w", err)
	}
	for _, tool := range builtins {
		if err := registry.Register(tool); err != nil {
			return fmt.Errorf("register tool: %w", err)
		}
	}

	planCache, err := buildCache(cfg)
	if err != nil {
		return fmt.Errorf("build cache: %w", err)
	}

	logStore, err := actionlog.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("open action log: %w", err)
	}
	defer logStore.Close()

	bus := eventbus.NewChannelEventBus(
		eventbus.WithBufferSize(cfg.EventBus.BufferSize),
		eventbus.WithWorkerCount(cfg.EventBus.WorkerCount),
	)

	notifier, err := adapters.NewEventBusNotifier(bus)
	if err != nil {
		return fmt.Errorf("build notifier: %w", err)
	}

	plannerOpts := []planner.Option{
		planner.WithMaxSteps(cfg.Planner.MaxSteps),
		planner.WithMaxTokens(cfg.Model.MaxTokens),
		planner.WithTemperature(cfg.Model.Temperature),
	}
	if cfg.Planner.EnableCache && planCache != nil {
		plannerOpts = append(plannerOpts, planner.WithCache(planCache))
	}
	if cfg.Planner.UseFallback {
		plannerOpts = append(plannerOpts, planner.WithFallback(defaultFallback()))
	}
	llmPlanner := planner.NewLLMPlanner(registry, invoker, plannerOpts...)

	execOpts := []executor.Option{
		executor.WithActionLog(logStore),
		executor.WithNotifier(notifier),
	}
	if emb := googlegenai.GoogleAIEmbedder(prompts.Instance(), "text-embedding-004"); emb != nil {
		genkitEmbedder, err := adapters.NewGenkitEmbedder(emb)
		if err != nil {
			return fmt.Errorf("build embedder: %w", err)
		}
		execOpts = append(execOpts, executor.WithEmbedder(genkitEmbedder))
	}
	exec := executor.NewExecutor(registry, execOpts...)

	runtime, err := actionloop.New(
		actionloop.WithConfig(actionloop.Config{
			EnableEventBus:      cfg.EventBus.Enabled,
			EventBusBufferSize:  cfg.EventBus.BufferSize,
			EventBusWorkerCount: cfg.EventBus.WorkerCount,
		}),
		actionloop.WithRegistry(registry),
		actionloop.WithPlanner(llmPlanner),
		actionloop.WithExecutor(exec),
		actionloop.WithFinalizer(exec),
		actionloop.WithContextLoader(actionlog.NewHistoryLoader(logStore, 50)),
		actionloop.WithEventBus(bus),
	)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}
	defer runtime.Close()

	if message == "" {
		return fmt.Errorf("no message provided, pass -message")
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	req := &actionloop.Request{
		SessionID: sessionID,
		Context: actionloop.RequestContext{
			ProfileID:   profileID,
			RoleID:      roleID,
			LastMessage: message,
		},
	}

	resp := runtime.Process(ctx, req)

	encoded, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(encoded))
	return nil
}

// defineInvokeFlow wraps prompt execution in a named Genkit flow. Each model
// call then appears as an inspectable flow run in the developer UI.
func defineInvokeFlow(prompts *prompt.Registry, promptName string) *core.Flow[*actionloop.ModelRequest, string, struct{}] {
	return genkit.DefineFlow(prompts.Instance(), "invokeModel",
		func(ctx context.Context, req *actionloop.ModelRequest) (string, error) {
			config := &ai.GenerationCommonConfig{Temperature: req.Temperature}
			if req.MaxTokens > 0 {
				config.MaxOutputTokens = req.MaxTokens
			}
			resp, err := prompts.ExecutePrompt(ctx, promptName, map[string]interface{}{
				"system": req.System,
				"user":   req.User,
			}, ai.WithConfig(config))
			if err != nil {
				return "", err
			}
			return resp.Text(), nil
		})
}

// ensureInvokePrompt registers the passthrough prompt when no .prompt file
// ships with the binary.
func ensureInvokePrompt(prompts *prompt.Registry) error {
	if _, err := prompts.GetPrompt(adapters.DefaultInvokePrompt); err == nil {
		return nil
	}
	_, err := prompts.DefinePrompt(adapters.DefaultInvokePrompt,
		ai.WithSystem("{{system}}"),
		ai.WithPrompt("{{user}}"),
	)
	if err != nil {
		return fmt.Errorf("define invoke prompt: %w", err)
	}
	return nil
}

func buildCache(cfg *config.Config) (actionloop.Cache, error) {
	switch cfg.Cache.Backend {
	case "memory":
		return cache.NewInMemoryCache(cfg.Cache.TTL.Std()), nil
	case "file":
		return cache.NewFilePersistentCache(cfg.Cache.TTL.Std(), cfg.Cache.FilePath, nil), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		return cache.NewRedisCache(client, cfg.Cache.TTL.Std(), ""), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// defaultFallback covers the common talent intents when the model is
// unavailable.
func defaultFallback() *planner.RulePlanner {
	return planner.NewRulePlanner(
		planner.Rule{
			Keywords: []string{"gap"},
			Plan: []actionloop.PlannedAction{
				{Tool: "getCapabilityGaps", Args: map[string]any{}, Reason: "keyword match: gap"},
			},
		},
		planner.Rule{
			Keywords: []string{"plan"},
			Plan: []actionloop.PlannedAction{
				{Tool: "getCapabilityGaps", Args: map[string]any{}, Reason: "plans require fresh gaps"},
				{Tool: "getDevelopmentPlan", Args: map[string]any{}, Reason: "keyword match: plan"},
			},
		},
	)
}
