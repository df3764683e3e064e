package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/xela07ax/proofkit-gate/internal/backend"
	"github.com/xela07ax/proofkit-gate/internal/gate"
	"go.uber.org/zap"
)

var (
	evalLogDir            string
	evalAccount           string
	evalMaxVerdictAgeMin  int
	evalRequireBackend    bool
	evalRequireLabelGuard bool
	evalMaxMutations      int
	evalExitOnFailure     bool
	evalBackendURL        string
	evalBackendSecret     string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Оценить PROMOTE gate и выставить exit code для пайплайна",
	RunE:  runEvaluate,
}

func init() {
	f := evaluateCmd.Flags()
	f.StringVar(&evalLogDir, "log-dir", "", "каталог run-log'а (обязательный)")
	f.StringVar(&evalAccount, "account", "default", "идентификатор аккаунта/тенанта")
	f.IntVar(&evalMaxVerdictAgeMin, "max-verdict-age-min", 1440, "окно свежести вердикта, минуты")
	f.BoolVar(&evalRequireBackend, "require-backend-validation", true, "backendGate обязателен")
	f.BoolVar(&evalRequireLabelGuard, "require-label-guard", true, "labelGuard обязателен")
	f.IntVar(&evalMaxMutations, "max-mutations", 100, "потолок мутаций за прогон")
	f.BoolVar(&evalExitOnFailure, "exit-on-failure", true, "ненулевой exit code при BLOCK")
	f.StringVar(&evalBackendURL, "backend-url", "", "URL backend gate status collaborator'а")
	f.StringVar(&evalBackendSecret, "backend-secret", "", "HMAC-секрет подписи backend-запросов")
	_ = evaluateCmd.MarkFlagRequired("log-dir")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	// Флаги перекрывают конфиг только когда заданы явно
	gateCfg := cfg.Gate
	if cmd.Flags().Changed("max-verdict-age-min") || gateCfg.MaxVerdictAge == 0 {
		gateCfg.MaxVerdictAge = time.Duration(evalMaxVerdictAgeMin) * time.Minute
	}
	if cmd.Flags().Changed("require-backend-validation") {
		gateCfg.RequireBackendValidation = evalRequireBackend
	}
	if cmd.Flags().Changed("require-label-guard") {
		gateCfg.RequireLabelGuard = evalRequireLabelGuard
	}
	if cmd.Flags().Changed("max-mutations") {
		gateCfg.MaxMutationsPerRun = evalMaxMutations
	}

	// Нечитаемый журнал — инфраструктурная ошибка (состояние ERROR):
	// никогда не деградирует в PROMOTE
	store, err := openRunLogStore(cfg, evalLogDir)
	if err != nil {
		return err
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}

	backendURL := evalBackendURL
	if backendURL == "" {
		backendURL = cfg.Backend.URL
	}
	secret := evalBackendSecret
	if secret == "" {
		secret = cfg.Backend.Secret
	}

	var provider backend.StatusProvider
	if backendURL != "" {
		provider = backend.NewClient(backendURL, []byte(secret), cfg.Backend.Timeout, logger)
	}

	evaluator := gate.NewEvaluator(gateCfg, store, provider, logger, nil)

	decision, err := evaluator.Evaluate(cmd.Context(), evalAccount)
	if err != nil {
		// ERROR-состояние gate'а: отчёт вместо голого stack trace.
		// Код выхода выставляем через exitCode, чтобы отработал PersistentPostRun
		fmt.Fprintf(os.Stderr, "❌ ERROR — gate evaluation failed: %v\n", err)
		fmt.Fprintln(os.Stderr, "The gate fails closed: promotion is NOT approved.")
		exitCode = 1
		return nil
	}

	fmt.Print(gate.RenderText(decision))
	logger.Info("decision persisted",
		zap.String("runlog_backend", cfg.RunLog.Backend), zap.String("decision_id", decision.ID))

	if !decision.CanPromote && evalExitOnFailure {
		exitCode = 1
	}
	return nil
}
