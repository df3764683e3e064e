package infra

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации ProofKit Gate.
type Config struct {
	Gate     GateConfig     `mapstructure:"gate"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	RunLog   RunLogConfig   `mapstructure:"runlog"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// GateConfig — пороги и переключатели Promote Gate Evaluator'а.
type GateConfig struct {
	MaxVerdictAge      time.Duration `mapstructure:"max_verdict_age"`      // Окно свежести вердикта (дефолт 24h)
	MaxMutationsPerRun int           `mapstructure:"max_mutations_per_run"` // Жёсткий потолок мутаций за прогон
	MaxWarnings        int           `mapstructure:"max_warnings"`          // Порог для warningsThreshold

	RequireIdempotencyTest        bool `mapstructure:"require_idempotency_test"`
	RequireBackendValidation      bool `mapstructure:"require_backend_validation"`
	RequireLabelGuard             bool `mapstructure:"require_label_guard"`
	RequireWarningsUnderThreshold bool `mapstructure:"require_warnings_under_threshold"`
}

// BackendConfig — удалённый backend gate status collaborator.
type BackendConfig struct {
	URL     string        `mapstructure:"url"`
	Secret  string        `mapstructure:"secret"` // HMAC-секрет для подписи запросов
	Timeout time.Duration `mapstructure:"timeout"`
}

// RedisConfig описывает подключение к Redis (run lock и mode store).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DatabaseConfig описывает подключение к PostgreSQL (опциональный run-log store).
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RunLogConfig — где живёт append-only журнал вердиктов и решений.
type RunLogConfig struct {
	Dir     string `mapstructure:"dir"`     // Каталог FileStore (дефолтный backend)
	Backend string `mapstructure:"backend"` // "file" | "postgres"
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")    // имя файла без расширения
	v.SetConfigType("yaml")      // формат
	v.AddConfigPath(".")         // ищем в корне
	v.AddConfigPath("./configs") // и в папке с конфигами

	// 2. Настройка переменных окружения (ENV)
	// Позволяет перекрывать конфиг: GATE_MAX_MUTATIONS_PER_RUN=50 перекроет gate.max_mutations_per_run
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("gate.max_verdict_age", 24*time.Hour)
	v.SetDefault("gate.max_mutations_per_run", 100)
	v.SetDefault("gate.max_warnings", 10)
	v.SetDefault("gate.require_idempotency_test", true)
	v.SetDefault("gate.require_backend_validation", true)
	v.SetDefault("gate.require_label_guard", true)
	v.SetDefault("gate.require_warnings_under_threshold", false)

	v.SetDefault("backend.timeout", 8*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)

	v.SetDefault("runlog.backend", "file")
	v.SetDefault("runlog.dir", "./runlog")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
}
