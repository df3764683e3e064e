package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/xela07ax/proofkit-gate/internal/infra"
	"go.uber.org/zap"
)

var (
	// Global flags
	verbose bool

	logger *zap.Logger
	cfg    *infra.Config

	// Код выхода процесса. BLOCK/FAIL — это результат, а не ошибка команды,
	// поэтому RunE возвращает nil и выставляет код здесь: os.Exit внутри RunE
	// срезал бы PersistentPostRun (и logger.Sync) на самом важном пути.
	exitCode int
)

var rootCmd = &cobra.Command{
	Use:   "proofkit-gate",
	Short: "ProofKit Mutation Safety Gate",
	Long: `proofkit-gate — safety-конверт вокруг маркетинговой автоматизации.

evaluate агрегирует независимые свидетельства безопасности (свежий
idempotency-вердикт, backend gate, label guard, потолок мутаций) в одно
решение promote/block и маппит его на exit code для CI-пайплайна.

harness гоняет референс-рутину дважды в PREVIEW и пишет вердикт в run-log.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = infra.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if verbose {
			cfg.Logger.Level = "debug"
		}
		logger, err = infra.NewLogger(cfg.Logger)
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

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug-логирование")
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(harnessCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Версия сборки",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("proofkit-gate 1.2.0")
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}
