// Package main provides the CLI entry point for Mentor, a conversational
// social-coaching assistant.
//
// Mentor runs a model-driven turn loop with a set of coaching capabilities:
// skill evaluation, life-event tracking, preference storage, communication
// clarification, conversation recall, web search, and output formatting.
//
// # Basic Usage
//
// Start an interactive chat:
//
//	mentor chat --config mentor.yaml --user alice
//
// List available capabilities:
//
//	mentor tools
//
// # Environment Variables
//
//   - MENTOR_CONFIG: Path to configuration file
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
//   - OPENAI_API_KEY: OpenAI API key for GPT models
package main

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mentorly/mentor/internal/agent"
	"github.com/mentorly/mentor/internal/config"
	"github.com/mentorly/mentor/internal/observability"
	"github.com/mentorly/mentor/internal/providers"
	"github.com/mentorly/mentor/internal/sessions"
	"github.com/mentorly/mentor/internal/tools/clarify"
	"github.com/mentorly/mentor/internal/tools/display"
	"github.com/mentorly/mentor/internal/tools/events"
	"github.com/mentorly/mentor/internal/tools/prefs"
	"github.com/mentorly/mentor/internal/tools/recall"
	"github.com/mentorly/mentor/internal/tools/skills"
	"github.com/mentorly/mentor/internal/tools/websearch"
)

// Build information, populated by ldflags:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultSystemPrompt = `You are Mentor, a supportive social-coaching assistant. You help users improve their communication skills, track meaningful life events, and navigate social situations. Use the available tools when they would help answer the user's request, and respond with warmth and concrete advice.`

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "mentor",
		Short:         "Mentor - conversational social-coaching assistant",
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("MENTOR_CONFIG"), "path to configuration file")

	root.AddCommand(buildChatCmd(&configPath))
	root.AddCommand(buildToolsCmd(&configPath))
	return root
}

func buildChatCmd(configPath *string) *cobra.Command {
	var (
		userID  string
		thread  string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), cfg, userID, thread, verbose)
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "local", "user identifier for the session")
	cmd.Flags().StringVarP(&thread, "session", "s", "default", "thread name within the user's sessions")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show capability usage after each reply")
	return cmd
}

func buildToolsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List available capabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			db, err := openToolsDB(":memory:")
			if err != nil {
				return err
			}
			defer db.Close()

			registry := agent.NewRegistry()
			if err := registerTools(registry, cfg, nil, db, sessions.NewMemoryStore()); err != nil {
				return err
			}
			for _, spec := range registry.Specs() {
				fmt.Printf("%-24s %s\n", spec.Name, spec.Description)
			}
			return nil
		},
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// openToolsDB opens the SQLite database shared by the capability stores.
// The sessions package registers the driver.
func openToolsDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open tools database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func buildInvoker(cfg *config.Config) (agent.ModelInvoker, error) {
	provider := cfg.Provider()
	switch cfg.Model.DefaultProvider {
	case "anthropic":
		return providers.NewAnthropicInvoker(providers.AnthropicConfig{
			APIKey:       provider.APIKey,
			BaseURL:      provider.BaseURL,
			DefaultModel: provider.DefaultModel,
		})
	case "openai":
		return providers.NewOpenAIInvoker(providers.OpenAIConfig{
			APIKey:       provider.APIKey,
			BaseURL:      provider.BaseURL,
			DefaultModel: provider.DefaultModel,
		})
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Model.DefaultProvider)
	}
}

// registerTools wires every enabled capability into the registry. The
// invoker may be nil when tools are only being listed, not executed.
func registerTools(registry *agent.Registry, cfg *config.Config, invoker agent.ModelInvoker, db *sql.DB, store sessions.Store) error {
	prefStore, err := prefs.NewStore(db)
	if err != nil {
		return err
	}
	skillStore, err := skills.NewStore(db)
	if err != nil {
		return err
	}
	eventStore, err := events.NewStore(db)
	if err != nil {
		return err
	}

	toRegister := []agent.Tool{
		prefs.NewTool(prefStore),
		skills.NewTool(skillStore),
		events.NewTool(eventStore),
		clarify.New(invoker, cfg.Provider().DefaultModel),
		recall.New(store),
		display.New(),
	}
	if cfg.Tools.WebSearch.Enabled {
		toRegister = append(toRegister, websearch.New(websearch.Config{
			DefaultResultCount: cfg.Tools.WebSearch.DefaultResultCount,
			CacheTTL:           cfg.Tools.WebSearch.CacheTTL,
		}))
	}
	for _, tool := range toRegister {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

func runChat(ctx context.Context, cfg *config.Config, userID, thread string, verbose bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
	metrics := observability.NewMetrics()

	var tracer *observability.Tracer
	if cfg.Tracing.Endpoint != "" {
		t, shutdown, err := observability.NewTracer(observability.TraceConfig{
			ServiceName:    cfg.Tracing.ServiceName,
			ServiceVersion: version,
			Endpoint:       cfg.Tracing.Endpoint,
			SamplingRate:   cfg.Tracing.SampleRate,
		})
		if err != nil {
			return fmt.Errorf("initialize tracing: %w", err)
		}
		defer shutdown(context.Background())
		tracer = t
	}

	// Session store and the capability database. With no database path
	// configured, sessions stay in memory and capability state lives in
	// an ephemeral SQLite database.
	var (
		store   sessions.Store
		toolsDB *sql.DB
	)
	switch cfg.Sessions.DatabasePath {
	case "":
		store = sessions.NewMemoryStore()
		db, err := openToolsDB(":memory:")
		if err != nil {
			return err
		}
		toolsDB = db
	default:
		sqlStore, err := sessions.OpenSQLite(cfg.Sessions.DatabasePath)
		if err != nil {
			return fmt.Errorf("open session store: %w", err)
		}
		sqlStore.SetMetrics(metrics)
		store = sqlStore
		toolsDB = sqlStore.DB()
	}

	invoker, err := buildInvoker(cfg)
	if err != nil {
		return err
	}

	registry := agent.NewRegistry()
	if err := registerTools(registry, cfg, invoker, toolsDB, store); err != nil {
		return fmt.Errorf("register capabilities: %w", err)
	}

	executor := agent.NewExecutor(registry, &agent.ExecutorConfig{
		MaxConcurrency: cfg.Tools.Executor.MaxConcurrent,
		DefaultTimeout: cfg.Tools.Executor.Timeout,
		DefaultRetries: cfg.Tools.Executor.MaxRetries,
	})

	systemPrompt := cfg.Agent.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	loop, err := agent.NewTurnLoop(agent.TurnLoopOptions{
		Invoker:  invoker,
		Registry: registry,
		Executor: executor,
		Store:    store,
		Locker:   sessions.NewLocalLocker(cfg.Sessions.LockTimeout),
		Config: &agent.TurnConfig{
			MaxRounds:    cfg.Agent.MaxRounds,
			WindowSize:   cfg.Agent.WindowSize,
			SystemPrompt: systemPrompt,
			Model:        cfg.Provider().DefaultModel,
			MaxTokens:    cfg.Agent.MaxTokens,
			Temperature:  cfg.Agent.Temperature,
		},
		Logger:  logger,
		Metrics: metrics,
		Tracer:  tracer,
	})
	if err != nil {
		return err
	}

	sessionKey := sessions.SessionKey(userID, thread)
	session, err := store.GetOrCreate(ctx, sessionKey, userID)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}

	fmt.Printf("Mentor %s. Type a message, or \"exit\" to quit.\n", version)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		result, err := loop.Run(ctx, session.ID, line)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			fmt.Fprintln(os.Stderr, "Error:", err)
			continue
		}

		fmt.Printf("mentor> %s\n", result.Message.Content)
		if verbose && len(result.ToolsUsed) > 0 {
			fmt.Printf("        [%d round(s), tools: %s]\n",
				result.Rounds, strings.Join(result.ToolsUsed, ", "))
		}
		if ctx.Err() != nil {
			break
		}
	}
	return scanner.Err()
}
