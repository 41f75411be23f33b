package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"rana/internal/agent"
	"rana/internal/config"
	"rana/internal/dispatch"
	"rana/internal/keys"
	"rana/internal/ledger"
	"rana/internal/llm"
	"rana/internal/security"

	"github.com/spf13/cobra"
)

var (
	errConfigExists     = errors.New("config file already exists")
	errBlockingFindings = errors.New("blocking findings detected")
	errUnknownDemo      = errors.New("unknown demo agent")
	errUnknownSeverity  = errors.New("unknown severity")
	errPromptBlocked    = errors.New("prompt blocked")
)

// guardPrompt screens a prompt with the configured security filters before
// it reaches a provider. High-risk injection attempts and filter blocks stop
// the request; a redact action rewrites the prompt.
func guardPrompt(cfg config.SecurityConfig, prompt string) (string, error) {
	detector := security.NewInjectionDetector(security.Sensitivity(cfg.Sensitivity))
	if d := detector.Detect(prompt); d.Detected && d.Risk.AtLeast(security.SeverityHigh) {
		return "", fmt.Errorf("%w: injection risk %s (%s)", errPromptBlocked, d.Risk, strings.Join(d.Families, ", "))
	}

	filter := security.NewContentFilter(security.FilterConfig{DefaultAction: security.Action(cfg.DefaultAction)})
	result := filter.Apply(prompt)
	if result.Blocked {
		terms := make([]string, 0, len(result.Matches))
		for _, m := range result.Matches {
			terms = append(terms, m.Rule)
		}
		return "", fmt.Errorf("%w: content filter (%s)", errPromptBlocked, strings.Join(terms, ", "))
	}
	return result.Filtered, nil
}

func newChatCmd(configPath *string) *cobra.Command {
	var (
		provider string
		model    string
		optimize string
		noCache  bool
		session  string
	)

	cmd := &cobra.Command{
		Use:   "chat <prompt>",
		Short: "Send a one-shot chat prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(*configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			if provider == "" {
				provider = rt.cfg.Provider.Default
			}

			prompt, err := guardPrompt(rt.cfg.Security, args[0])
			if err != nil {
				return err
			}

			result, err := rt.client.Chat(cmd.Context(), dispatch.ChatRequest{
				Provider:  provider,
				Model:     model,
				Optimize:  optimize,
				Messages:  []llm.Message{llm.UserMessage(prompt)},
				NoCache:   noCache,
				SessionID: session,
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), result.Content)
			fmt.Fprintln(cmd.OutOrStdout(), renderResultFooter(result))
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Provider name, or \"auto\" to select by policy")
	cmd.Flags().StringVar(&model, "model", "", "Model override")
	cmd.Flags().StringVar(&optimize, "optimize", "", "Auto selection policy: cost, quality, or balanced")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass the response cache")
	cmd.Flags().StringVar(&session, "session", "", "Session id recorded with cost entries")
	return cmd
}

func newCheckCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and provider credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.LoadOptions{Path: strings.TrimSpace(*configPath)})
			if err != nil {
				return err
			}

			manager, err := buildKeyManager(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config: ok (tier %s)\n", cfg.Tier)

			available := 0
			for _, name := range []string{llm.ProviderAnthropic, llm.ProviderOpenAI, llm.ProviderGroq} {
				if _, ok, err := manager.Resolve(name); err != nil {
					return err
				} else if ok {
					fmt.Fprintf(out, "provider %s: credentials present\n", name)
					available++
				} else {
					fmt.Fprintf(out, "provider %s: no credentials\n", name)
				}
			}
			if available == 0 {
				return keys.ErrNoCredentials
			}
			return nil
		},
	}
}

func newInitCmd(configPath *string) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.TrimSpace(*configPath)
			if path == "" {
				path = config.DefaultPath()
			}
			if path == "" {
				return fmt.Errorf("cannot determine config path")
			}

			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%w: %s (use --force to overwrite)", errConfigExists, path)
				}
			}

			if err := config.Write(config.Default(), path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}

// demoAgents maps the debug command's agent names to their system prompts.
var demoAgents = map[string]string{
	"calculator": "You are a careful math assistant. Use the calc tool for every computation.",
	"assistant":  "You are a helpful assistant with calc, memory, and clock tools.",
}

func newDebugCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "debug <agent> <prompt>",
		Short: "Run a demo agent and print its event stream",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			system, ok := demoAgents[args[0]]
			if !ok {
				return fmt.Errorf("%w: %q (have: %s)", errUnknownDemo, args[0], strings.Join(demoAgentNames(), ", "))
			}

			rt, err := buildRuntime(*configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			prompt, err := guardPrompt(rt.cfg.Security, args[1])
			if err != nil {
				return err
			}

			session := time.Now().UTC().Format("20060102-150405")
			registry, err := buildToolRegistry(session)
			if err != nil {
				return err
			}

			ag, err := agent.New(agent.Config{
				Client:        rt.client,
				Tools:         registry,
				Provider:      rt.cfg.Provider.Default,
				System:        system,
				SessionID:     session,
				MaxIterations: rt.cfg.Agent.MaxIterations,
			})
			if err != nil {
				return err
			}

			events, err := ag.RunStream(cmd.Context(), prompt)
			if err != nil {
				return err
			}
			return printEventStream(cmd.OutOrStdout(), events)
		},
	}
	return cmd
}

func demoAgentNames() []string {
	names := make([]string, 0, len(demoAgents))
	for name := range demoAgents {
		names = append(names, name)
	}
	return names
}

func newSecurityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "security",
		Short: "Security scanning commands",
	}
	cmd.AddCommand(newSecurityScanCmd())
	return cmd
}

func newSecurityScanCmd() *cobra.Command {
	var (
		minSeverity string
		secretsOnly bool
		piiOnly     bool
	)

	cmd := &cobra.Command{
		Use:   "scan [path]",
		Short: "Scan files for secrets and PII",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) == 1 {
				path = args[0]
			}

			mode := security.ScanAll
			switch {
			case secretsOnly && piiOnly:
				return fmt.Errorf("--secrets-only and --pii-only are mutually exclusive")
			case secretsOnly:
				mode = security.ScanSecretsOnly
			case piiOnly:
				mode = security.ScanPIIOnly
			}

			floor, err := parseSeverity(minSeverity)
			if err != nil {
				return err
			}

			scanner := &security.Scanner{Mode: mode, MinSeverity: floor}
			findings, err := scanner.Scan(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderFindings(findings))
			if security.HasBlocking(findings) {
				return errBlockingFindings
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&minSeverity, "severity", "", "Minimum severity to report: low, medium, high, or critical")
	cmd.Flags().BoolVar(&secretsOnly, "secrets-only", false, "Scan for secrets only")
	cmd.Flags().BoolVar(&piiOnly, "pii-only", false, "Scan for PII only")
	return cmd
}

func parseSeverity(s string) (security.Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "low":
		return security.SeverityLow, nil
	case "medium":
		return security.SeverityMedium, nil
	case "high":
		return security.SeverityHigh, nil
	case "critical":
		return security.SeverityCritical, nil
	default:
		return "", fmt.Errorf("%w: %q", errUnknownSeverity, s)
	}
}

func newCostCmd(configPath *string) *cobra.Command {
	var (
		since    time.Duration
		provider string
	)

	cmd := &cobra.Command{
		Use:   "cost",
		Short: "Print a ledger cost summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.LoadOptions{Path: strings.TrimSpace(*configPath)})
			if err != nil {
				return err
			}

			store, err := buildLedger(cfg.Ledger)
			if err != nil {
				return err
			}
			defer store.Close()

			filter := ledger.Filter{Provider: provider}
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}

			summary, err := store.Summarize(cmd.Context(), filter)
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), renderCostSummary(summary))
			return nil
		},
	}

	cmd.Flags().DurationVar(&since, "since", 0, "Only include records newer than this age (e.g. 24h)")
	cmd.Flags().StringVar(&provider, "provider", "", "Only include records for one provider")
	return cmd
}
