package main

import (
	"fmt"
	"io"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/xela07ax/proofkit-gate/internal/automation"
	"github.com/xela07ax/proofkit-gate/internal/executor"
	"github.com/xela07ax/proofkit-gate/internal/harness"
	"github.com/xela07ax/proofkit-gate/internal/session"
)

var (
	harnessLogDir    string
	harnessAccount   string
	harnessStateFile string
	harnessApply     bool
	harnessRedisAddr string
)

var harnessCmd = &cobra.Command{
	Use:   "harness",
	Short: "Прогнать idempotency-тест референс-рутины и записать вердикт",
	RunE:  runHarness,
}

func init() {
	f := harnessCmd.Flags()
	f.StringVar(&harnessLogDir, "log-dir", "", "каталог run-log'а (обязательный)")
	f.StringVar(&harnessAccount, "account", "", "идентификатор аккаунта/тенанта (обязательный)")
	f.StringVar(&harnessStateFile, "state-file", "", "JSON-фикстура состояния аккаунта (обязательный)")
	f.BoolVar(&harnessApply, "apply-between-runs", false, "применить план первого прогона перед вторым (тест сходимости)")
	f.StringVar(&harnessRedisAddr, "redis-addr", "", "redis для межпроцессного лока и mode store (опционально)")
	_ = harnessCmd.MarkFlagRequired("log-dir")
	_ = harnessCmd.MarkFlagRequired("account")
	_ = harnessCmd.MarkFlagRequired("state-file")
}

func runHarness(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := openRunLogStore(cfg, harnessLogDir)
	if err != nil {
		return err
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}

	account, err := automation.LoadAccountState(harnessStateFile)
	if err != nil {
		return err
	}

	// Redis опционален: одиночному CLI хватает внутрипроцессного лока
	var locker harness.Locker = harness.NewMemoryLocker()
	sessOpts := []session.Option{}
	if harnessRedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: harnessRedisAddr})
		locker = harness.NewRedisLocker(rdb, logger)
		sessOpts = append(sessOpts, session.WithModeStore(session.NewRedisModeStore(rdb)))
	}

	sess := session.New(harnessAccount, logger, sessOpts...)
	sess.Restore(ctx)

	// Фикстурный аккаунт сам служит исполнителем (в PREVIEW он не вызывается).
	// Live-путь ходит через reliability-обёртку — как и любой боевой executor
	exec := executor.NewReliabilityWrapper(account)
	routineImpl := automation.NewRoutine(account, exec, logger)
	var routine harness.Routine = routineImpl
	if harnessApply {
		routine = automation.NewConvergenceProbe(routineImpl, account)
	}

	h := harness.New(locker, store, logger, nil)
	verdict, err := h.Run(ctx, sess, routine)
	if verdict == nil && err != nil {
		return err
	}
	if err != nil {
		// Вердикт есть, но запись не прошла — результат показываем всё равно
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	if verdict.Passed {
		fmt.Printf("✅ PASS — first run planned %d mutation(s), second run planned 0\n",
			verdict.FirstRun.MutationCount)
		return nil
	}

	fmt.Printf("❌ FAIL — first run planned %d mutation(s), second run planned %d\n",
		verdict.FirstRun.MutationCount, verdict.SecondRun.MutationCount)
	fmt.Println("Unexpected second-run mutations:")
	for i, m := range verdict.SecondRun.Mutations {
		fmt.Printf("  %d. %s %v at %s\n", i+1, m.Type, m.Details, m.Timestamp.Format("15:04:05.000"))
	}
	exitCode = 1
	return nil
}
