// Package main provides the CLI entry point for the reformbench query
// reformulation benchmark.
//
// Reformbench runs a grid of experiments: each configured reformulation
// method rewrites benchmark queries through each configured LLM backend,
// the rewritten queries are retrieved against sparse and dense indexes,
// and the ranked runs are scored with trec_eval.
//
// # Basic Usage
//
// Run the full grid:
//
//	reformbench run --config reformbench.yaml
//
// Run a single stage:
//
//	reformbench reformulate --config reformbench.yaml --method genqr_ens --llm gpt4 --dataset dl19
//	reformbench retrieve --config reformbench.yaml --method genqr_ens --llm gpt4 --dataset dl19 --retriever bm25
//	reformbench evaluate --config reformbench.yaml --method genqr_ens --llm gpt4 --dataset dl19 --retriever bm25
//
// Export results:
//
//	reformbench results export --config reformbench.yaml -o results.csv
//
// # Environment Variables
//
// API keys referenced from the config file via ${VAR} expansion:
//
//   - OPENAI_API_KEY: OpenAI API key
//   - OPENROUTER_API_KEY: OpenRouter API key
//   - ANTHROPIC_API_KEY: Anthropic API key
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// This is separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "reformbench",
		Short: "Reformbench - LLM query reformulation benchmark",
		Long: `Reformbench evaluates LLM-based query reformulation methods on standard
retrieval benchmarks.

Each run crosses the configured methods, LLM backends, datasets, and
retrievers, caches intermediate artifacts on disk, and records metric
values in a SQLite results table.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildRunCmd(),
		buildReformulateCmd(),
		buildRetrieveCmd(),
		buildEvaluateCmd(),
		buildMethodsCmd(),
		buildDatasetsCmd(),
		buildResultsCmd(),
	)

	return rootCmd
}
