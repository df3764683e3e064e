package guard

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// ReservedTerms — фиксированный список защищённых термов (NEG_GUARD).
// Любая негативная мутация, содержащая такой терм как подстроку, ветируется
// безусловно — режим и promote-флаг на это не влияют.
type ReservedTerms []string

// DefaultReservedTerms — дефолтный набор; у мерчанта он конфигурируемый,
// ядру важен только сам механизм подстрочного совпадения.
var DefaultReservedTerms = ReservedTerms{"brand", "official", "store"}

// Blocks — true, если term содержит любой из зарезервированных термов.
// Сравнение регистронезависимое, по подстроке.
func (r ReservedTerms) Blocks(term string) bool {
	lowered := strings.ToLower(term)
	for _, reserved := range r {
		if reserved == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(reserved)) {
			return true
		}
	}
	return false
}

// CampaignExclusion — запись exclusion map по одной кампании.
type CampaignExclusion struct {
	Excluded bool            `json:"excluded"`
	AdGroups map[string]bool `json:"ad_groups,omitempty"` // Точечные исключения ad-групп
}

// ExclusionMap — allow/deny карта оператора: какие сущности автоматизация
// не трогает никогда. Отсутствие ключа означает "не исключено".
type ExclusionMap map[string]CampaignExclusion

// CampaignExcluded — исключена ли кампания целиком.
func (m ExclusionMap) CampaignExcluded(campaign string) bool {
	if m == nil {
		return false
	}
	return m[campaign].Excluded
}

// AdGroupExcluded — исключена ли пара кампания+ad-группа.
// Целиком исключённая кампания исключает и все её ad-группы.
func (m ExclusionMap) AdGroupExcluded(campaign, adGroup string) bool {
	if m == nil {
		return false
	}
	entry, ok := m[campaign]
	if !ok {
		return false
	}
	if entry.Excluded {
		return true
	}
	return entry.AdGroups[adGroup]
}

// LabelTarget — минимальный срез платформы, нужный label guard'у.
type LabelTarget interface {
	HasLabel(ctx context.Context, entity, label string) (bool, error)
	ApplyLabel(ctx context.Context, entity, label string) error
}

// EnsureLabel — идемпотентное "гарантировать наличие label'а".
// Labeling — advisory-механика, поэтому ошибки платформы не валят прогон:
// логируем и продолжаем. Возвращает true, если label добавлен этим вызовом.
func EnsureLabel(ctx context.Context, target LabelTarget, entity, label string, logger *zap.Logger) bool {
	has, err := target.HasLabel(ctx, entity, label)
	if err != nil {
		logger.Warn("LABEL_GUARD: label lookup failed, skipping",
			zap.String("entity", entity), zap.String("label", label), zap.Error(err))
		return false
	}
	if has {
		return false // Уже помечено — ничего не делаем
	}
	if err := target.ApplyLabel(ctx, entity, label); err != nil {
		logger.Warn("LABEL_GUARD: apply failed, continuing",
			zap.String("entity", entity), zap.String("label", label), zap.Error(err))
		return false
	}
	logger.Info("LABEL_GUARD: label applied",
		zap.String("entity", entity), zap.String("label", label))
	return true
}
