package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/agentforge/internal/config"
	"github.com/dshills/agentforge/internal/llm"
	"github.com/dshills/agentforge/internal/pipeline"
	"github.com/dshills/agentforge/internal/profile"
	"github.com/dshills/agentforge/internal/render"
	"github.com/dshills/agentforge/internal/schema"
)

func main() {
	root := &cobra.Command{
		Use:   "agentforge",
		Short: "Generate validated agent specifications and implementations from natural-language tasks",
	}

	root.AddCommand(newGenerateCmd())
	root.AddCommand(newProfilesCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newGenerateCmd() *cobra.Command {
	var (
		configPath string
		provider   string
		model      string
		baseURL    string
		profName   string
		outDir     string
		format     string
		verbose    bool
		ctxPairs   []string
	)

	cmd := &cobra.Command{
		Use:   "generate <task>",
		Short: "Run the two-stage pipeline for one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			// Flags override file and environment configuration.
			if provider != "" {
				cfg.Provider.Name = provider
			}
			if model != "" {
				cfg.Provider.Model = model
			}
			if baseURL != "" {
				cfg.Provider.BaseURL = baseURL
			}
			if profName != "" {
				cfg.Generation.Profile = profName
			}
			if outDir != "" {
				cfg.Output.Dir = outDir
			}
			if format != "" {
				cfg.Output.Format = format
			}

			logger, err := newLogger(verbose)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			req := schema.Requirement{Task: args[0]}
			if len(ctxPairs) > 0 {
				req.Context = make(map[string]string, len(ctxPairs))
				for _, pair := range ctxPairs {
					k, v, ok := strings.Cut(pair, "=")
					if !ok {
						return fmt.Errorf("invalid --context %q, want key=value", pair)
					}
					req.Context[k] = v
				}
			}

			prov, err := llm.NewProvider(cfg.Provider.Name, cfg.Provider.Model, cfg.Provider.BaseURL)
			if err != nil {
				return err
			}
			client := llm.NewClient(prov, logger)

			driver, err := pipeline.New(cfg.Pipeline(), client, logger)
			if err != nil {
				return err
			}

			result, runErr := driver.Run(cmd.Context(), req)
			if result != nil {
				if err := writeResult(cfg, result); err != nil {
					logger.Warn("writing run output failed", zap.Error(err))
				}
			}
			return runErr
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a config file")
	cmd.Flags().StringVar(&provider, "provider", "", "LLM provider: anthropic, openai, google, local")
	cmd.Flags().StringVar(&model, "model", "", "model name override")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "base URL for the local provider")
	cmd.Flags().StringVar(&profName, "profile", "", "prompt profile name")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory for generated agents")
	cmd.Flags().StringVar(&format, "format", "", "report format: markdown or json")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	cmd.Flags().StringArrayVar(&ctxPairs, "context", nil, "additional context as key=value, repeatable")
	return cmd
}

func newProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the built-in prompt profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range profile.List() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s\n", p.Name, p.Description)
			}
			return nil
		},
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

func newLogger(verbose bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if verbose {
		zcfg = zap.NewDevelopmentConfig()
	}
	return zcfg.Build()
}

// writeResult persists the run: the report in the configured format, plus the
// generated specification and implementation as standalone files when present.
func writeResult(cfg *config.Config, result *pipeline.Result) error {
	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	name := "agent"
	if result.Spec != nil && result.Spec.AgentName != "" {
		name = result.Spec.AgentName
	}

	switch cfg.Output.Format {
	case "json":
		b, err := render.RenderJSON(result)
		if err != nil {
			return err
		}
		if err := writeFile(cfg.Output.Dir, name+"_report.json", b); err != nil {
			return err
		}
	default:
		md := render.RenderMarkdown(result)
		if err := writeFile(cfg.Output.Dir, name+"_report.md", []byte(md)); err != nil {
			return err
		}
	}

	if result.Spec != nil && result.SpecSession != nil && len(result.SpecSession.Attempts) > 0 {
		raw := result.SpecSession.Attempts[len(result.SpecSession.Attempts)-1].RawOutput
		if err := writeFile(cfg.Output.Dir, name+"_spec.yaml", []byte(raw)); err != nil {
			return err
		}
	}
	if result.Artifact != nil {
		if err := writeFile(cfg.Output.Dir, name+".py", []byte(result.Artifact.Source)); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(dir, name string, data []byte) error {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Println("wrote", path)
	return nil
}
