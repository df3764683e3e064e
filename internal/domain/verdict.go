package domain

import "time"

// RunSnapshot — слепок Recorder'а после одного прогона рутины.
type RunSnapshot struct {
	Mode          RunMode          `json:"mode"`
	MutationCount int              `json:"mutation_count"`
	Mutations     []MutationRecord `json:"mutations"`
	StartedAt     time.Time        `json:"started_at"`
	FinishedAt    time.Time        `json:"finished_at"`
}

// IdempotencyVerdict — результат одного запуска Idempotency Test Harness.
// PASS тогда и только тогда, когда второй прогон запланировал ноль мутаций.
// Вердикт создаётся после завершения ОБОИХ прогонов, пишется в run-log один раз
// (append) и дальше не меняется; свежесть определяется по Timestamp.
type IdempotencyVerdict struct {
	ID        string      `json:"id"`         // UUID вердикта
	AccountID string      `json:"account_id"` // Тенант/аккаунт, для которого гонялся harness
	Passed    bool        `json:"passed"`
	FirstRun  RunSnapshot `json:"first_run"`
	SecondRun RunSnapshot `json:"second_run"`
	Timestamp time.Time   `json:"timestamp"`
}

// GuardStatus — структурированная запись о состоянии guard'ов за прогон.
// Пишется harness'ом в run-log, чтобы Evaluator читал факты напрямую,
// а не выгребал маркеры из свободного текста логов.
type GuardStatus struct {
	AccountID               string    `json:"account_id"`
	LabelGuardActive        bool      `json:"label_guard_active"`
	ReservedTermsConfigured int       `json:"reserved_terms_configured"`
	ExclusionCount          int       `json:"exclusion_count"`
	Mode                    RunMode   `json:"mode"`
	Timestamp               time.Time `json:"timestamp"`
}

// RunError — best-effort маркер ошибки рутины внутри harness'а.
// Это НЕ вердикт: при ошибке рутины вердикт не создаётся вовсе.
type RunError struct {
	AccountID string    `json:"account_id"`
	Stage     string    `json:"stage"` // "first_run" | "second_run"
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}
