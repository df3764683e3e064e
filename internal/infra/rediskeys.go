package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "proofkit"
)

// Ключи состояния (per-account)
const (
	RedisKeyRunModePrefix     = RedisNamespace + ":mode:"         // + accountID, последний выбранный RunMode
	RedisKeyHarnessLockPrefix = RedisNamespace + ":lock:harness:" // + accountID, сериализация прогонов harness'а
)

// RunModeKey — ключ сохранённого режима для аккаунта.
func RunModeKey(accountID string) string {
	return RedisKeyRunModePrefix + accountID
}

// HarnessLockKey — ключ run-scoped блокировки harness'а.
// Два пересекающихся прогона по одному аккаунту испортили бы общий Recorder,
// поэтому лок обязателен при работе через redis.
func HarnessLockKey(accountID string) string {
	return fmt.Sprintf("%s%s", RedisKeyHarnessLockPrefix, accountID)
}
