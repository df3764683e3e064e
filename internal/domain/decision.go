package domain

import "time"

// Имена проверок Gate Evaluator'а. Ключи в GateDecision.Checks.
const (
	CheckIdempotencyTest   = "idempotencyTest"
	CheckTestRecency       = "testRecency"
	CheckNoErrors          = "noErrors"
	CheckBackendGate       = "backendGate"
	CheckLabelGuard        = "labelGuard"
	CheckMutationLimits    = "mutationLimits"
	CheckWarningsThreshold = "warningsThreshold"
)

// CheckOrder — фиксированный порядок проверок для детерминированного отчёта.
var CheckOrder = []string{
	CheckIdempotencyTest,
	CheckTestRecency,
	CheckNoErrors,
	CheckBackendGate,
	CheckLabelGuard,
	CheckMutationLimits,
	CheckWarningsThreshold,
}

// CheckResult — итог одной независимой проверки.
type CheckResult struct {
	Passed   bool   `json:"passed"`
	Required bool   `json:"required"` // Влияет ли провал на CanPromote
	Details  string `json:"details"`
}

// GateDecision — агрегированное решение promote/block.
// Инвариант: CanPromote == AND по всем проверкам с Required=true.
// Считается заново при каждом вызове Evaluator'а, никогда не кэшируется.
type GateDecision struct {
	ID              string                 `json:"id"` // UUID решения
	AccountID       string                 `json:"account_id"`
	CanPromote      bool                   `json:"can_promote"`
	Checks          map[string]CheckResult `json:"checks"`
	Warnings        []string               `json:"warnings"`
	Summary         string                 `json:"summary"`
	Recommendations []string               `json:"recommendations"`
	Timestamp       time.Time              `json:"timestamp"`
}

// FailedChecks возвращает имена проваленных обязательных проверок в CheckOrder-порядке.
func (d GateDecision) FailedChecks() []string {
	var failed []string
	for _, name := range CheckOrder {
		if c, ok := d.Checks[name]; ok && c.Required && !c.Passed {
			failed = append(failed, name)
		}
	}
	return failed
}
