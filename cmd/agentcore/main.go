// Command agentcore is a minimal wiring example for the agent orchestration
// engine: it loads configuration and credentials, builds a provider and a
// tool registry, and drives a single Agent from stdin/stdout. It is not a
// full CLI product — no sessions, no TUI, no editor integration.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/xonecas/agentcore/internal/agent"
	"github.com/xonecas/agentcore/internal/config"
	"github.com/xonecas/agentcore/internal/llmprovider"
	"github.com/xonecas/agentcore/internal/llmprovider/anthropicapi"
	"github.com/xonecas/agentcore/internal/llmprovider/openaicompat"
	"github.com/xonecas/agentcore/internal/llmprovider/zengateway"
	"github.com/xonecas/agentcore/internal/message"
	"github.com/xonecas/agentcore/internal/shell"
	"github.com/xonecas/agentcore/internal/subagent"
	"github.com/xonecas/agentcore/internal/tool"
	"github.com/xonecas/agentcore/internal/tools"
	"github.com/xonecas/agentcore/internal/webcache"
)

const systemPrompt = "You are a helpful coding agent with shell, file, and web access."

func main() {
	if err := setupFileLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to setup logging: %v\n", err)
	}

	flagProvider := flag.String("provider", "", "provider to use (defaults to config's default_provider)")
	flag.Parse()

	configPath := filepath.Join(".", "config.toml")
	if dataDir, err := config.DataDir(); err == nil {
		dataDirPath := filepath.Join(dataDir, "config.toml")
		if _, err := os.Stat(dataDirPath); err == nil {
			configPath = dataDirPath
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	creds, err := config.LoadCredentials()
	if err != nil {
		fmt.Printf("Error loading credentials: %v\n", err)
		os.Exit(1)
	}

	providerName := *flagProvider
	if providerName == "" {
		providerName = cfg.DefaultProvider
	}
	providerCfg, ok := cfg.Providers[providerName]
	if !ok {
		fmt.Printf("Error: provider %q not configured\n", providerName)
		os.Exit(1)
	}

	genOpts := llmprovider.GenOptions{
		Temperature:   providerCfg.Temperature,
		ThinkingLevel: llmprovider.ThinkingLevel(providerCfg.ThinkingLevel),
	}
	prov, err := buildProvider(providerName, providerCfg, creds.GetAPIKey(providerName), genOpts)
	if err != nil {
		fmt.Printf("Error creating provider: %v\n", err)
		os.Exit(1)
	}
	defer prov.Close()

	registry, cleanup := buildToolRegistry(cfg, prov, providerCfg.Model, genOpts)
	defer cleanup()

	policy, err := cfg.BuildPolicy(providerName, estimateHistory, nil)
	if err != nil {
		fmt.Printf("Error building policy: %v\n", err)
		os.Exit(1)
	}

	loop := agent.New(prov, providerCfg.Model, policy)
	a := agent.NewAgent(loop, systemPrompt, registry)

	runREPL(a)
}

func estimateHistory(history []message.AgentMessage) int {
	// The Compactor's budget check: a byte/4 estimate of each message's
	// text. The loop reports real usage to the policy's Tracker but does
	// not call Tracker.Estimate; this count is what compaction uses.
	total := 0
	for _, m := range history {
		total += len(m.Llm.Text()) / 4
	}
	return total
}

func buildProvider(name string, cfg config.ProviderConfig, apiKey string, opts llmprovider.GenOptions) (llmprovider.Provider, error) {
	switch cfg.Kind {
	case "openai", "":
		return openaicompat.New(openaicompat.Config{APIKey: apiKey, BaseURL: cfg.Endpoint}, cfg.Model, opts, llmprovider.Quirks{}), nil
	case "anthropic":
		return anthropicapi.New(anthropicapi.Config{APIKey: apiKey, BaseURL: cfg.Endpoint}, cfg.Model, opts), nil
	case "zen":
		return zengateway.New(name, zengateway.Config{APIKey: apiKey, BaseURL: cfg.Endpoint}, cfg.Model, opts)
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Kind)
	}
}

func buildToolRegistry(cfg *config.Config, prov llmprovider.Provider, model string, opts llmprovider.GenOptions) (*tool.Registry, func()) {
	registry := tool.NewRegistry()

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	registry.Register(tools.NewShell(cwd, shell.DefaultBlockFuncs()))
	registry.Register(tools.NewReadFile(cwd))

	var cache *webcache.Cache
	cleanup := func() {}
	if dataDir, err := config.EnsureDataDir(); err == nil {
		c, err := webcache.Open(filepath.Join(dataDir, "webcache.db"), cfg.Cache.CacheTTLOrDefault())
		if err != nil {
			log.Warn().Err(err).Msg("failed to open web cache, fetches will not be cached")
		} else {
			cache = c
			cleanup = func() { c.Close() }
		}
	}
	registry.Register(tools.NewWebFetch(cache))

	registry.Register(subagent.New(subagent.Spec{
		Name:         "delegate",
		Description:  "Delegate a self-contained sub-task to a fresh agent with its own context window.",
		SystemPrompt: systemPrompt,
		Provider:     prov,
		ModelID:      model,
		Policy:       agent.DefaultPolicy(),
		Tools:        registry,
	}))

	return registry, cleanup
}

func runREPL(a *agent.Agent) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("agentcore ready. Type a prompt and press enter; Ctrl-D to exit.")

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		events, err := a.Prompt(ctx, []message.Content{message.Text(line)})
		if err != nil {
			fmt.Printf("error: %v\n", err)
			cancel()
			continue
		}

		for ev := range events {
			switch ev.Kind {
			case message.EventMessageUpdate:
				if ev.Delta.Kind == message.DeltaText {
					fmt.Print(ev.Delta.Text)
				}
			case message.EventProgressMessage:
				fmt.Printf("\n[%s]\n", ev.ProgressText)
			case message.EventAgentEnd:
				fmt.Println()
			}
		}
		cancel()
	}
}

func setupFileLogging() error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	dataDir, err := config.DataDir()
	if err != nil {
		return err
	}

	logDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logDir, 0750); err != nil {
		return err
	}

	logFile := filepath.Join(logDir, "agentcore.log")
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	log.Logger = log.Output(file)
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	return nil
}
