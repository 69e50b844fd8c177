// Command webpilot runs a single browser-automation task end to end: it
// opens (or resumes) a page, drives the Plan-Act-Observe loop, and prints
// the resulting JSON. Flag shape and logging setup follow the teacher's
// example/cmd/assistant/main.go (flag.String/flag.Bool, goa.design/clue/log
// installed once via log.Context at process start).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"goa.design/clue/log"

	"github.com/webpilot-ai/webpilot/llm/anthropic"
	"github.com/webpilot-ai/webpilot/llm/bedrock"
	"github.com/webpilot-ai/webpilot/llm/middleware"
	"github.com/webpilot-ai/webpilot/llm/openai"
	"github.com/webpilot-ai/webpilot/runtime/browser"
	"github.com/webpilot-ai/webpilot/runtime/model"
	"github.com/webpilot-ai/webpilot/runtime/planner"
	"github.com/webpilot-ai/webpilot/runtime/runlog/filestore"
	"github.com/webpilot-ai/webpilot/runtime/session"
	sessionfilestore "github.com/webpilot-ai/webpilot/runtime/session/filestore"
	"github.com/webpilot-ai/webpilot/runtime/session/redislock"
	"github.com/webpilot-ai/webpilot/runtime/task"
	"github.com/webpilot-ai/webpilot/runtime/telemetry"
	"github.com/webpilot-ai/webpilot/runtime/toolregistry"
)

func main() {
	var (
		urlF         = flag.String("url", "", "starting page URL (required)")
		instructionF = flag.String("instruction", "", "natural-language task instruction (required)")
		providerF    = flag.String("provider", "anthropic", "LLM provider: anthropic, openai, or bedrock")
		modelF       = flag.String("model", "", "provider model identifier (required)")
		headlessF    = flag.Bool("headless", true, "run the browser without a visible window")
		visualF      = flag.Bool("visual", false, "capture a screenshot after every step")
		stealthF     = flag.Bool("stealth", false, "install anti-bot-detection page settings")
		sessionKeyF  = flag.String("session-key", "", "reuse/persist browser session state under this key")
		maxStepsF    = flag.Int("max-steps", 0, "maximum Plan-Act-Observe steps (0 = default)")
		workspaceF   = flag.String("workspace", "workspace", "root directory for run logs, session state, and screenshots")
		redisAddrF   = flag.String("redis-addr", "", "Redis address for cross-process session locking and rate-limit budget (optional)")
		dbgF         = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	if *urlF == "" || *instructionF == "" || *modelF == "" {
		fmt.Fprintln(os.Stderr, "usage: webpilot -url=... -instruction=... -model=... [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
	}

	client, err := newModelClient(*providerF, *modelF)
	if err != nil {
		log.Fatal(ctx, err)
	}

	var rdb *redis.Client
	if *redisAddrF != "" {
		rdb = redis.NewClient(&redis.Options{Addr: *redisAddrF})
	}

	limiter := newRateLimiter(ctx, rdb)
	client = limiter.Middleware()(client)

	registry := toolregistry.New()
	toolregistry.RegisterBuiltins(registry, client)
	defer registry.Close()

	runLog, err := filestore.New(*workspaceF + "/logs")
	if err != nil {
		log.Fatal(ctx, err)
	}
	sessionStore, err := sessionfilestore.New(*workspaceF + "/sessions")
	if err != nil {
		log.Fatal(ctx, err)
	}

	var sessionLock session.Lock
	if rdb != nil {
		sessionLock = redislock.New(rdb)
	}

	runner := &task.Runner{
		Launcher:      unconfiguredLauncher{},
		Tools:         registry,
		Planner:       planner.New(client, toolregistry.NewCatalog(registry)),
		RunLog:        runLog,
		SessionStore:  sessionStore,
		SessionLock:   sessionLock,
		HostLimiter:   toolregistry.NewHostLimiter(1, 3),
		Logger:        telemetry.NewClueLogger(),
		Metrics:       telemetry.NewClueMetrics(),
		Tracer:        telemetry.NewClueTracer(),
		ScreenshotDir: *workspaceF + "/screenshots",
	}

	opts := task.Options{
		VisualMode:  *visualF,
		StealthMode: *stealthF,
		Headless:    headlessF,
		MaxSteps:    *maxStepsF,
		SessionKey:  *sessionKeyF,
	}

	result := runner.Run(ctx, *urlF, *instructionF, opts)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatal(ctx, err)
	}
	if !result.Success {
		os.Exit(1)
	}
}

func newModelClient(provider, modelID string) (model.Client, error) {
	switch provider {
	case "anthropic":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, errors.New("ANTHROPIC_API_KEY is required for -provider=anthropic")
		}
		return anthropic.NewFromAPIKey(apiKey, modelID)
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, errors.New("OPENAI_API_KEY is required for -provider=openai")
		}
		return openai.NewFromAPIKey(apiKey, modelID)
	case "bedrock":
		// No aws-sdk-go-v2/config credential chain is wired into this CLI;
		// bedrock.New still validates modelID so the caller gets a precise
		// error rather than a silent nil client.
		if _, err := bedrock.New(nil, bedrock.Options{Model: modelID}); err != nil {
			return nil, fmt.Errorf("bedrock: construct a *bedrockruntime.Client via aws-sdk-go-v2/config.LoadDefaultConfig and call bedrock.New directly: %w", err)
		}
		return nil, errors.New("bedrock: construct a *bedrockruntime.Client via aws-sdk-go-v2/config.LoadDefaultConfig and call bedrock.New directly")
	default:
		return nil, fmt.Errorf("unknown -provider %q (want anthropic, openai, or bedrock)", provider)
	}
}

func newRateLimiter(ctx context.Context, rdb *redis.Client) *middleware.AdaptiveRateLimiter {
	const initialTPM, maxTPM = 40000, 200000
	if rdb == nil {
		return middleware.NewAdaptiveRateLimiter(initialTPM, maxTPM)
	}
	return middleware.NewClusterAdaptiveRateLimiter(ctx, rdb, "webpilot:cli", initialTPM, maxTPM)
}

// unconfiguredLauncher stands in for a concrete headless-browser driver.
// runtime/browser.Page/Session/Launcher are the seam a real Playwright- or
// chromedp-backed adapter plugs into (see DESIGN.md); none ships with this
// module, so every call fails clearly instead of silently doing nothing.
type unconfiguredLauncher struct{}

func (unconfiguredLauncher) Launch(context.Context, bool) (browser.Launched, error) {
	return nil, errors.New("webpilot: no browser.Launcher configured; wire a concrete driver adapter (see runtime/browser package docs)")
}
