package main

import (
	"fmt"

	"github.com/xela07ax/proofkit-gate/internal/infra"
	"github.com/xela07ax/proofkit-gate/internal/runlog"
	"github.com/xela07ax/proofkit-gate/internal/runlog/postgres"
)

// openRunLogStore выбирает backend журнала по конфигу: файловый каталог по
// умолчанию, postgres — когда runlog.backend = "postgres" и задан database.url.
// Флаг --log-dir перекрывает каталог из конфига (только для файлового backend'а).
func openRunLogStore(cfg *infra.Config, logDir string) (runlog.Store, error) {
	switch cfg.RunLog.Backend {
	case "", "file":
		dir := logDir
		if dir == "" {
			dir = cfg.RunLog.Dir
		}
		return runlog.NewFileStore(dir)
	case "postgres":
		if cfg.Database.URL == "" {
			return nil, fmt.Errorf("runlog backend %q requires database.url", cfg.RunLog.Backend)
		}
		return postgres.New(cfg.Database.URL, int(cfg.Database.MaxConns), int(cfg.Database.MinConns))
	default:
		return nil, fmt.Errorf("unknown runlog backend %q (expected \"file\" or \"postgres\")", cfg.RunLog.Backend)
	}
}
