// mhc2c runs a multi-agent consensus process from the command line.
//
// Usage:
//
//	mhc2c run --task "2+2=?"                        # Defaults: 3 chains, 3 rounds
//	mhc2c run --task "..." --chains 5 --rounds 10
//	mhc2c run --config run.yaml
//	mhc2c roles --chains 4                          # Show default role assignment
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/consensus-cluster/mhc2c/consensus/config"
	"github.com/consensus-cluster/mhc2c/consensus/engine"
	"github.com/consensus-cluster/mhc2c/consensus/observability"
	"github.com/consensus-cluster/mhc2c/consensus/oracle/openai"
	"github.com/consensus-cluster/mhc2c/consensus/scoring"
)

var (
	// Global flags
	verbose      bool
	otlpEndpoint string

	// run flags
	configPath  string
	task        string
	chains      int
	rounds      int
	beta        float64
	epsilon     float64
	roles       []string
	maxParallel int
	budget      int
	scorerName  string
	groundTruth string
	model       string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mhc2c",
	Short: "Multi-agent Metropolis-Hastings consensus runner",
	Long: `mhc2c drives a set of LLM agent chains through rounds of mutual
critique and refinement, accepting each refined answer through a
Metropolis-Hastings gate, until the chains converge or the round
budget is spent.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a consensus run",
	Long: `Executes one full consensus run against the OpenAI API and prints the
winning candidate. OPENAI_API_KEY must be set. Flags override values
loaded from --config.`,
}

var rolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "Print the default role assignment for a chain count",
	RunE: func(cmd *cobra.Command, args []string) error {
		for i, role := range config.DefaultRoles(chains) {
			fmt.Printf("chain %d: %s\n", i, role)
		}
		return nil
	},
}

func buildConfig() (*config.RunConfig, error) {
	cfg := config.DefaultRunConfig()
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := map[string]func(){
		"task":     func() { cfg.Task = task },
		"chains":   func() { cfg.Chains = chains },
		"rounds":   func() { cfg.MaxRounds = rounds },
		"beta":     func() { cfg.Beta = beta },
		"eps":      func() { cfg.Epsilon = epsilon },
		"roles":    func() { cfg.Roles = roles },
		"parallel": func() { cfg.MaxParallel = maxParallel },
		"budget":   func() { cfg.WallClockBudgetSeconds = budget },
	}
	for name, apply := range flags {
		if runCmd.Flags().Changed(name) {
			apply()
		}
	}
	return cfg, nil
}

func buildScorer() (scoring.Scorer, error) {
	switch scorerName {
	case "brevity":
		return scoring.Brevity(), nil
	case "overlap":
		if groundTruth == "" {
			return nil, fmt.Errorf("--scorer overlap requires --ground-truth")
		}
		return scoring.WordOverlap(groundTruth), nil
	case "readability":
		return scoring.Readability(), nil
	case "composite":
		if groundTruth == "" {
			return nil, fmt.Errorf("--scorer composite requires --ground-truth")
		}
		return scoring.Composite(groundTruth), nil
	default:
		return nil, fmt.Errorf("unknown scorer %q (brevity, overlap, readability, composite)", scorerName)
	}
}

func runConsensus(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}
	scorer, err := buildScorer()
	if err != nil {
		return err
	}

	if otlpEndpoint != "" {
		shutdown, err := observability.InitTracer("mhc2c", otlpEndpoint)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	var oracleOpts []openai.Option
	if model != "" {
		oracleOpts = append(oracleOpts, openai.WithModel(model))
	}
	client, err := openai.NewClient(oracleOpts...)
	if err != nil {
		return err
	}

	eng, err := engine.New(cfg, client, scorer, engine.WithLogger(newZapLogger(logger)))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := eng.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("terminated: %s after %d round(s)\n", result.Terminated, result.RoundsRun)
	fmt.Printf("best chain: %d (score %.4f)\n", result.ChainIndex, result.Score)
	if len(result.DegradedChains) > 0 {
		fmt.Printf("degraded chains: %v\n", result.DegradedChains)
	}
	fmt.Printf("\n%s\n", strings.TrimSpace(result.Text))
	return nil
}

func init() {
	runCmd.RunE = runConsensus

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&otlpEndpoint, "otlp-endpoint", "", "OTLP gRPC endpoint for trace export (e.g. localhost:4317)")

	runCmd.Flags().StringVar(&configPath, "config", "", "YAML run configuration file")
	runCmd.Flags().StringVar(&task, "task", "", "Task prompt given to every chain")
	runCmd.Flags().IntVarP(&chains, "chains", "m", 3, "Number of agent chains")
	runCmd.Flags().IntVarP(&rounds, "rounds", "T", 3, "Maximum consensus rounds")
	runCmd.Flags().Float64Var(&beta, "beta", 1.0, "Inverse temperature for the acceptance gate")
	runCmd.Flags().Float64Var(&epsilon, "eps", 1e-3, "Convergence threshold on the per-round max delta")
	runCmd.Flags().StringSliceVar(&roles, "roles", nil, "Role per chain, in chain order")
	runCmd.Flags().IntVar(&maxParallel, "parallel", 0, "Concurrent chain evaluations (0 = unbounded)")
	runCmd.Flags().IntVar(&budget, "budget", 0, "Wall-clock budget in seconds (0 = none)")
	runCmd.Flags().StringVar(&scorerName, "scorer", "brevity", "Scorer: brevity, overlap, readability, composite")
	runCmd.Flags().StringVar(&groundTruth, "ground-truth", "", "Reference text for overlap/composite scorers")
	runCmd.Flags().StringVar(&model, "model", "", "OpenAI model (default from OPENAI_MODEL or gpt-4o-mini)")

	rolesCmd.Flags().IntVarP(&chains, "chains", "m", 3, "Number of agent chains")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(rolesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
