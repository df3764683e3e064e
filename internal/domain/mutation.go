package domain

import "time"

// RunMode — режим исполнения автоматизации.
// PREVIEW и IDEMPOTENCY_TEST полностью отключают реальные сайд-эффекты:
// рутина только записывает план мутаций в Recorder.
type RunMode string

const (
	ModeProduction      RunMode = "PRODUCTION"       // Боевой режим (мутации применяются при promote=true)
	ModePreview         RunMode = "PREVIEW"          // План-режим: только запись намерений
	ModeIdempotencyTest RunMode = "IDEMPOTENCY_TEST" // Режим двойного прогона harness'а
)

// IsValid проверяет, что режим входит в закрытый набор значений.
func (m RunMode) IsValid() bool {
	switch m {
	case ModeProduction, ModePreview, ModeIdempotencyTest:
		return true
	}
	return false
}

// IsDryRun — true для режимов без реальных сайд-эффектов.
func (m RunMode) IsDryRun() bool {
	return m == ModePreview || m == ModeIdempotencyTest
}

// MutationType — закрытый enum типов мутаций рекламного аккаунта.
// Новый тип = новая константа здесь, чтобы switch'и по типам оставались исчерпывающими.
type MutationType string

const (
	MutationBudgetChange          MutationType = "BUDGET_CHANGE"
	MutationBiddingStrategyChange MutationType = "BIDDING_STRATEGY_CHANGE"
	MutationAdScheduleAdd         MutationType = "AD_SCHEDULE_ADD"
	MutationMasterNegativeAdd     MutationType = "MASTER_NEGATIVE_ADD"
	MutationNegativeListAttach    MutationType = "NEGATIVE_LIST_ATTACH"
	MutationAudienceAttach        MutationType = "AUDIENCE_ATTACH"
	MutationRSACreate             MutationType = "RSA_CREATE"
	MutationLabelApply            MutationType = "LABEL_APPLY"
)

// IsNegativeStyle — мутации, добавляющие исключения/негативы.
// Только они проходят через Reserved-Keyword Guard.
func (t MutationType) IsNegativeStyle() bool {
	return t == MutationMasterNegativeAdd || t == MutationNegativeListAttach
}

// MutationRecord — одно запланированное (или применённое) изменение.
// Запись иммутабельна после создания; владеет ею Recorder до конца прогона.
type MutationRecord struct {
	Type      MutationType           `json:"type"`
	Details   map[string]interface{} `json:"details"` // Специфичный для типа payload: campaign, old/new и т.д.
	Timestamp time.Time              `json:"timestamp"`
	Mode      RunMode                `json:"mode"` // Режим, активный в момент записи
}

// NewBudgetChange — конструктор записи смены бюджета кампании.
func NewBudgetChange(campaign string, oldBudget, newBudget float64) MutationRecord {
	return MutationRecord{
		Type: MutationBudgetChange,
		Details: map[string]interface{}{
			"campaign": campaign,
			"old":      oldBudget,
			"new":      newBudget,
		},
		Timestamp: time.Now(),
	}
}

// NewMasterNegativeAdd — конструктор записи добавления негатива в мастер-лист.
func NewMasterNegativeAdd(listName, term string) MutationRecord {
	return MutationRecord{
		Type: MutationMasterNegativeAdd,
		Details: map[string]interface{}{
			"list": listName,
			"term": term,
		},
		Timestamp: time.Now(),
	}
}

// NewLabelApply — конструктор записи навешивания label'а на сущность.
func NewLabelApply(entity, label string) MutationRecord {
	return MutationRecord{
		Type: MutationLabelApply,
		Details: map[string]interface{}{
			"entity": entity,
			"label":  label,
		},
		Timestamp: time.Now(),
	}
}

// Campaign достаёт имя кампании из payload (пустая строка, если нет).
func (r MutationRecord) Campaign() string {
	if v, ok := r.Details["campaign"].(string); ok {
		return v
	}
	return ""
}

// Term достаёт ключевое слово из payload негативной мутации.
func (r MutationRecord) Term() string {
	if v, ok := r.Details["term"].(string); ok {
		return v
	}
	return ""
}
