package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/xela07ax/proofkit-gate/internal/domain"
	"go.uber.org/zap"
)

// Session — явный контекст одного прогона автоматизации.
// Заменяет глобальные RUN_MODE / MUTATION_LOG / NEG_GUARD_ACTIVE из скриптовой
// версии: всё состояние живёт в объекте, который протаскивается через рутину,
// harness и guard'ы. Это единственная точка правды про режим и promote-флаг.
type Session struct {
	mu        sync.RWMutex
	accountID string
	mode      domain.RunMode
	promote   bool // Внешний PROMOTE-флаг; без него даже PRODUCTION не живой

	recorder  *Recorder
	modeStore ModeStore // Опциональная персистентность режима между запусками
	logger    *zap.Logger
}

type Option func(*Session)

// WithModeStore подключает durable-хранилище режима (redis в проде).
func WithModeStore(ms ModeStore) Option {
	return func(s *Session) { s.modeStore = ms }
}

// WithPromote выставляет внешний promote-флаг (по умолчанию false).
func WithPromote(promote bool) Option {
	return func(s *Session) { s.promote = promote }
}

func New(accountID string, logger *zap.Logger, opts ...Option) *Session {
	s := &Session{
		accountID: accountID,
		mode:      domain.ModeProduction, // Дефолт по контракту: без стора считаем PRODUCTION
		recorder:  NewRecorder(),
		logger:    logger.With(zap.String("mod", "session"), zap.String("account", accountID)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore подтягивает последний сохранённый режим из ModeStore.
// Ошибка стора не блокирует работу: откатываемся на PRODUCTION.
func (s *Session) Restore(ctx context.Context) {
	if s.modeStore == nil {
		return
	}
	mode, ok, err := s.modeStore.Get(ctx, s.accountID)
	if err != nil {
		s.logger.Warn("mode store unavailable, falling back to PRODUCTION", zap.Error(err))
		return
	}
	if ok && mode.IsValid() {
		s.mu.Lock()
		s.mode = mode
		s.recorder.Reset()
		s.mu.Unlock()
	}
}

// SetMode переключает режим и — документированный сайд-эффект — сбрасывает
// Recorder, чтобы каждый переход начинал чистый журнал.
func (s *Session) SetMode(ctx context.Context, mode domain.RunMode) error {
	if !mode.IsValid() {
		return fmt.Errorf("session: invalid run mode %q", mode)
	}

	s.mu.Lock()
	s.mode = mode
	s.recorder.Reset()
	s.mu.Unlock()

	// Персистентность режима — best-effort, на корректность не влияет
	if s.modeStore != nil {
		if err := s.modeStore.Set(ctx, s.accountID, mode); err != nil {
			s.logger.Warn("failed to persist run mode", zap.Error(err))
		}
	}

	s.logger.Info("run mode changed", zap.String("mode", string(mode)))
	return nil
}

func (s *Session) Mode() domain.RunMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

func (s *Session) AccountID() string { return s.accountID }

// IsLive — ЕДИНСТВЕННЫЙ предикат, разрешающий реальные мутации.
// true только при PRODUCTION + внешнем promote-флаге. Он же включает guard'ы.
func (s *Session) IsLive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode == domain.ModeProduction && s.promote
}

// LabelGuardActive — label guard активен ровно тогда, когда прогон живой.
func (s *Session) LabelGuardActive() bool {
	return s.IsLive()
}

// Record пишет мутацию в журнал, проставляя текущий режим.
// В PRODUCTION вызывается строго в точке реального применения мутации.
func (s *Session) Record(m domain.MutationRecord) {
	s.mu.RLock()
	m.Mode = s.mode
	s.mu.RUnlock()
	s.recorder.Record(m)
}

// Snapshot — слепок журнала текущего прогона.
func (s *Session) Snapshot() domain.RunSnapshot {
	return s.recorder.Snapshot(s.Mode())
}

// PlannedReason — тег для человекочитаемого лога "мутация запланирована, но не применена".
func (s *Session) PlannedReason() string {
	if s.Mode().IsDryRun() {
		return "[PREVIEW]"
	}
	return "[PROMOTE=FALSE]"
}
