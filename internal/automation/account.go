package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/xela07ax/proofkit-gate/internal/domain"
)

// Campaign — кампания фикстурного рекламного аккаунта.
type Campaign struct {
	Name      string   `json:"name"`
	Budget    float64  `json:"budget"`
	BudgetCap float64  `json:"budget_cap"` // 0 = потолок не задан
	Labels    []string `json:"labels,omitempty"`
}

// AccountState — fake-состояние внешнего рекламного аккаунта.
// Служит двум целям: референс-рутине нужно что-то читать, а сценарию
// "применить план между прогонами" нужно что-то мутировать. Реализует
// executor.Executor и guard.LabelTarget.
type AccountState struct {
	mu              sync.Mutex
	Campaigns       []Campaign          `json:"campaigns"`
	MasterNegatives map[string][]string `json:"master_negatives,omitempty"` // list -> terms
	WastedTerms     []string            `json:"wasted_terms,omitempty"`     // Кандидаты в негативы
}

// LoadAccountState читает фикстуру аккаунта из JSON-файла.
func LoadAccountState(path string) (*AccountState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("automation: read account fixture: %w", err)
	}
	var st AccountState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("automation: decode account fixture: %w", err)
	}
	if st.MasterNegatives == nil {
		st.MasterNegatives = make(map[string][]string)
	}
	return &st, nil
}

// Snapshot — копия списка кампаний (рутина не должна мутировать состояние напрямую).
func (a *AccountState) Snapshot() []Campaign {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Campaign, len(a.Campaigns))
	copy(out, a.Campaigns)
	return out
}

// HasNegative — есть ли терм в мастер-листе.
func (a *AccountState) HasNegative(list, term string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, t := range a.MasterNegatives[list] {
		if t == term {
			return true
		}
	}
	return false
}

// Apply применяет мутацию к fake-состоянию. Исчерпывающий switch по
// закрытому enum'у MutationType: новый тип мутации обязан получить ветку.
func (a *AccountState) Apply(_ context.Context, m domain.MutationRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch m.Type {
	case domain.MutationBudgetChange:
		name := m.Campaign()
		for i := range a.Campaigns {
			if a.Campaigns[i].Name == name {
				if v, ok := m.Details["new"].(float64); ok {
					a.Campaigns[i].Budget = v
					return nil
				}
				return fmt.Errorf("automation: budget change without new value for %s", name)
			}
		}
		return fmt.Errorf("automation: unknown campaign %s", name)

	case domain.MutationMasterNegativeAdd:
		list, _ := m.Details["list"].(string)
		a.MasterNegatives[list] = append(a.MasterNegatives[list], m.Term())
		return nil

	case domain.MutationLabelApply:
		entity, _ := m.Details["entity"].(string)
		label, _ := m.Details["label"].(string)
		for i := range a.Campaigns {
			if a.Campaigns[i].Name == entity {
				a.Campaigns[i].Labels = append(a.Campaigns[i].Labels, label)
				return nil
			}
		}
		return fmt.Errorf("automation: unknown entity %s", entity)

	case domain.MutationBiddingStrategyChange, domain.MutationAdScheduleAdd,
		domain.MutationNegativeListAttach, domain.MutationAudienceAttach,
		domain.MutationRSACreate:
		return fmt.Errorf("automation: mutation %s not supported by fixture account", m.Type)
	}
	return fmt.Errorf("automation: unknown mutation type %q", m.Type)
}

// HasLabel / ApplyLabel — guard.LabelTarget поверх fake-аккаунта.
func (a *AccountState) HasLabel(_ context.Context, entity, label string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range a.Campaigns {
		if c.Name != entity {
			continue
		}
		for _, l := range c.Labels {
			if l == label {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("automation: unknown entity %s", entity)
}

func (a *AccountState) ApplyLabel(ctx context.Context, entity, label string) error {
	return a.Apply(ctx, domain.NewLabelApply(entity, label))
}
