package main

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/reformbench/internal/config"
	"github.com/haasonsaas/reformbench/internal/methods"
	"github.com/haasonsaas/reformbench/internal/pipeline"
	"github.com/haasonsaas/reformbench/internal/prompts"
	"github.com/haasonsaas/reformbench/pkg/models"
)

const defaultConfigPath = "reformbench.yaml"

func buildRunCmd() *cobra.Command {
	var (
		configPath string
		force      bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full experiment grid",
		Long: `Run crosses every configured method, LLM backend, dataset, and retriever,
reusing cached artifacts where present. Failed cells are reported at the
end; they never abort the rest of the grid.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath, force)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			orch, err := newOrchestrator(a)
			if err != nil {
				return err
			}
			summary, err := orch.Run(ctx)
			if err != nil {
				return err
			}
			printSummary(cmd, summary)
			if summary.Failed() {
				return fmt.Errorf("%d cell(s) failed", len(summary.Failures))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to configuration file")
	cmd.Flags().BoolVar(&force, "force", false, "Recompute artifacts even when cached")
	return cmd
}

func buildReformulateCmd() *cobra.Command {
	var (
		configPath string
		method     string
		llmName    string
		dataset    string
		force      bool
	)
	cmd := &cobra.Command{
		Use:   "reformulate",
		Short: "Run the reformulation stage for one (method, llm, dataset)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath, force)
			if err != nil {
				return err
			}
			defer a.Close()
			key := models.CellKey{Method: method, LLM: llmName, Dataset: dataset}
			if err := a.checkSelection(key); err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			orch, err := newOrchestrator(a)
			if err != nil {
				return err
			}
			set, reused, err := orch.Reformulate(ctx, key)
			if err != nil {
				return err
			}
			if reused {
				fmt.Fprintln(cmd.OutOrStdout(), "reused cached queries:", a.store.QueriesPath(key))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d queries (%d fallback) to %s\n",
				len(set.Queries), len(set.Fallbacks()), a.store.QueriesPath(key))
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to configuration file")
	cmd.Flags().StringVar(&method, "method", "", "Method identifier")
	cmd.Flags().StringVar(&llmName, "llm", "", "LLM backend identifier")
	cmd.Flags().StringVar(&dataset, "dataset", "", "Dataset name")
	cmd.Flags().BoolVar(&force, "force", false, "Recompute even when cached")
	cmd.MarkFlagRequired("method")
	cmd.MarkFlagRequired("llm")
	cmd.MarkFlagRequired("dataset")
	return cmd
}

func buildRetrieveCmd() *cobra.Command {
	var (
		configPath string
		method     string
		llmName    string
		dataset    string
		retriever  string
		force      bool
	)
	cmd := &cobra.Command{
		Use:   "retrieve",
		Short: "Run the retrieval stage for one cell",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath, force)
			if err != nil {
				return err
			}
			defer a.Close()
			key := models.CellKey{Method: method, LLM: llmName, Dataset: dataset, Retriever: retriever}
			if err := a.checkSelection(key); err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			orch, err := newOrchestrator(a)
			if err != nil {
				return err
			}
			reused, err := orch.Retrieve(ctx, key)
			if err != nil {
				return err
			}
			if reused {
				fmt.Fprintln(cmd.OutOrStdout(), "reused cached run:", a.store.RunPath(key))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wrote run:", a.store.RunPath(key))
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to configuration file")
	cmd.Flags().StringVar(&method, "method", "", "Method identifier")
	cmd.Flags().StringVar(&llmName, "llm", "", "LLM backend identifier")
	cmd.Flags().StringVar(&dataset, "dataset", "", "Dataset name")
	cmd.Flags().StringVar(&retriever, "retriever", "", "Retriever backend")
	cmd.Flags().BoolVar(&force, "force", false, "Recompute even when cached")
	cmd.MarkFlagRequired("method")
	cmd.MarkFlagRequired("llm")
	cmd.MarkFlagRequired("dataset")
	cmd.MarkFlagRequired("retriever")
	return cmd
}

func buildEvaluateCmd() *cobra.Command {
	var (
		configPath string
		method     string
		llmName    string
		dataset    string
		retriever  string
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score one cell's run file and record the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()
			key := models.CellKey{Method: method, LLM: llmName, Dataset: dataset, Retriever: retriever}
			if err := a.checkSelection(key); err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			orch, err := newOrchestrator(a)
			if err != nil {
				return err
			}
			rec, err := orch.EvaluateCell(ctx, key)
			if err != nil {
				return err
			}
			for _, metric := range sortedKeys(rec.Metrics) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%.4f\n", metric, rec.Metrics[metric])
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to configuration file")
	cmd.Flags().StringVar(&method, "method", "", "Method identifier")
	cmd.Flags().StringVar(&llmName, "llm", "", "LLM backend identifier")
	cmd.Flags().StringVar(&dataset, "dataset", "", "Dataset name")
	cmd.Flags().StringVar(&retriever, "retriever", "", "Retriever backend")
	cmd.MarkFlagRequired("method")
	cmd.MarkFlagRequired("llm")
	cmd.MarkFlagRequired("dataset")
	cmd.MarkFlagRequired("retriever")
	return cmd
}

func buildMethodsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "methods",
		Short: "List available reformulation methods and their parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			// The listing only reads parameter schemas, so an empty
			// prompt bank suffices.
			bank, err := prompts.Parse([]byte("{}"))
			if err != nil {
				return err
			}
			registry := methods.NewRegistry(bank)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "METHOD\tCONTEXT\tPARAMETERS")
			for _, name := range registry.Names() {
				strategy, err := registry.Resolve(name)
				if err != nil {
					return err
				}
				spec := strategy.Spec()
				context := "-"
				if spec.NeedsContext {
					context = "corpus"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", spec.Name, context, formatParams(spec.Params))
			}
			return w.Flush()
		},
	}
}

func buildDatasetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "List registered benchmark datasets",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DATASET\tGROUP\tMETRICS\tQRELS")
			for _, name := range config.DatasetNames() {
				ds, _ := config.LookupDataset(name)
				qrels := ds.Qrels
				if qrels == "" {
					qrels = "(user-supplied)"
				}
				fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", ds.Name, ds.Group, ds.Metrics, qrels)
			}
			return w.Flush()
		},
	}
}

func buildResultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Inspect and export recorded evaluation results",
	}
	cmd.AddCommand(buildResultsShowCmd(), buildResultsExportCmd())
	return cmd
}

func buildResultsShowCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the results table",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.results.All(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "METHOD\tLLM\tDATASET\tRETRIEVER\tMETRIC\tVALUE")
			for _, rec := range records {
				k := rec.Key
				for _, metric := range sortedKeys(rec.Metrics) {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.4f\n",
						k.Method, k.LLM, k.Dataset, k.Retriever, metric, rec.Metrics[metric])
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to configuration file")
	return cmd
}

func buildResultsExportCmd() *cobra.Command {
	var (
		configPath string
		outPath    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the results table as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				defer f.Close()
				out = f
			}
			return a.results.ExportCSV(cmd.Context(), out)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to configuration file")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Output file (defaults to stdout)")
	return cmd
}

// checkSelection verifies that a stage subcommand's key names configured
// grid members, so typos fail before any work starts.
func (a *app) checkSelection(key models.CellKey) error {
	if _, ok := a.cfg.Methods[key.Method]; !ok {
		return fmt.Errorf("method %q is not configured (configured: %v)", key.Method, a.cfg.MethodNames())
	}
	if _, ok := a.cfg.LLMs[key.LLM]; !ok {
		return fmt.Errorf("llm %q is not configured (configured: %v)", key.LLM, a.cfg.LLMNames())
	}
	if !slices.Contains(a.cfg.Datasets, key.Dataset) {
		return fmt.Errorf("dataset %q is not configured (configured: %v)", key.Dataset, a.cfg.Datasets)
	}
	if key.Retriever != "" && !slices.Contains(a.cfg.Retrievers, key.Retriever) {
		return fmt.Errorf("retriever %q is not configured (configured: %v)", key.Retriever, a.cfg.Retrievers)
	}
	return nil
}

func newOrchestrator(a *app) (*pipeline.Orchestrator, error) {
	return pipeline.New(a.cfg, pipeline.Deps{
		Registry:  a.registry,
		Store:     a.store,
		Retriever: a.driver,
		Evaluator: a.evaluator,
		Results:   a.results,
		Logger:    a.logger,
		Metrics:   a.metrics,
	})
}

func printSummary(cmd *cobra.Command, summary *pipeline.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %d cell(s) done, %d reformulation(s) and %d run(s) reused\n",
		summary.RunID, summary.CellsDone, summary.ReformulationsReused, summary.RunsReused)
	if !summary.Failed() {
		return
	}
	pipeline.SortFailures(summary.Failures)
	fmt.Fprintf(out, "%d cell(s) failed:\n", len(summary.Failures))
	for _, f := range summary.Failures {
		fmt.Fprintf(out, "  %s\t[%s]\t%s\n", f.Key, f.Stage, f.Reason)
	}
}

func formatParams(specs []methods.ParamSpec) string {
	if len(specs) == 0 {
		return "-"
	}
	out := ""
	for i, spec := range specs {
		if i > 0 {
			out += ", "
		}
		if spec.Default == nil {
			out += spec.Name + " (required)"
		} else {
			out += fmt.Sprintf("%s=%v", spec.Name, spec.Default)
		}
	}
	return out
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
