package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// 애플리케이션 설정
	App struct {
		Env          string        `envconfig:"APP_ENV" default:"development"`
		HTTPAddr     string        `envconfig:"HTTP_ADDR" default:":8080"`
		SyncInterval time.Duration `envconfig:"SYNC_INTERVAL" default:"15m"`
		CatalogPath  string        `envconfig:"CATALOG_PATH" default:"catalog.yaml"`
	}

	// 데이터베이스 설정 (비어 있으면 메모리 저장소 사용)
	Database struct {
		URL            string        `envconfig:"DATABASE_URL"`
		MaxConns       int32         `envconfig:"DB_MAX_CONNS" default:"20"`
		MinConns       int32         `envconfig:"DB_MIN_CONNS" default:"2"`
		ConnLifetime   time.Duration `envconfig:"DB_CONN_LIFETIME" default:"1h"`
		ConnectRetries int           `envconfig:"DB_CONNECT_RETRIES" default:"5"`
		AutoMigrate    bool          `envconfig:"DB_AUTO_MIGRATE" default:"true"`
	}

	// Redis 설정 (블랙리스트, 동기화 잠금)
	Redis struct {
		Addr     string `envconfig:"REDIS_ADDR"`
		Password string `envconfig:"REDIS_PASSWORD"`
		DB       int    `envconfig:"REDIS_DB" default:"0"`
	}

	// Kafka 설정 (감사 이벤트)
	Kafka struct {
		Brokers    []string `envconfig:"KAFKA_BROKERS"`
		AuditTopic string   `envconfig:"KAFKA_AUDIT_TOPIC" default:"withdrawal.audit"`
	}

	// 디스코드 웹훅 설정
	Discord struct {
		AlertWebhook string `envconfig:"DISCORD_ALERT_WEBHOOK"`
		ErrorWebhook string `envconfig:"DISCORD_ERROR_WEBHOOK"`
		InfoWebhook  string `envconfig:"DISCORD_INFO_WEBHOOK"`
	}

	// 외부 공급자 호출 설정
	Provider struct {
		Timeout         time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"10s"`
		ConnectTimeout  time.Duration `envconfig:"PROVIDER_CONNECT_TIMEOUT" default:"10s"`
		MaxRetries      int           `envconfig:"PROVIDER_MAX_RETRIES" default:"2"`
		RetryBaseDelay  time.Duration `envconfig:"PROVIDER_RETRY_BASE_DELAY" default:"1s"`
		SyncConcurrency int           `envconfig:"SYNC_CONCURRENCY" default:"4"`
		SyncLockTTL     time.Duration `envconfig:"SYNC_LOCK_TTL" default:"2m"`
	}

	// 사기 탐지 설정
	Fraud struct {
		Window            time.Duration `envconfig:"FRAUD_WINDOW" default:"1h"`
		MaxPerWindow      int           `envconfig:"FRAUD_MAX_PER_WINDOW" default:"10"`
		SuspiciousAmount  float64       `envconfig:"FRAUD_SUSPICIOUS_AMOUNT" default:"10000"`
		DeviationMultiple float64       `envconfig:"FRAUD_DEVIATION_MULTIPLE" default:"5"`
		WeightVelocity    float64       `envconfig:"FRAUD_WEIGHT_VELOCITY" default:"0.3"`
		WeightAmount      float64       `envconfig:"FRAUD_WEIGHT_AMOUNT" default:"0.3"`
		WeightAddress     float64       `envconfig:"FRAUD_WEIGHT_ADDRESS" default:"0.2"`
		WeightAccountAge  float64       `envconfig:"FRAUD_WEIGHT_ACCOUNT_AGE" default:"0.2"`
		ThresholdMedium   float64       `envconfig:"FRAUD_THRESHOLD_MEDIUM" default:"0.4"`
		ThresholdHigh     float64       `envconfig:"FRAUD_THRESHOLD_HIGH" default:"0.7"`
		ThresholdCritical float64       `envconfig:"FRAUD_THRESHOLD_CRITICAL" default:"0.9"`
	}

	// 로그 설정
	Log struct {
		Level      string `envconfig:"LOG_LEVEL" default:"info"`
		Format     string `envconfig:"LOG_FORMAT" default:"json"`
		File       string `envconfig:"LOG_FILE"`
		MaxSizeMB  int    `envconfig:"LOG_MAX_SIZE_MB" default:"100"`
		MaxBackups int    `envconfig:"LOG_MAX_BACKUPS" default:"7"`
		MaxAgeDays int    `envconfig:"LOG_MAX_AGE_DAYS" default:"30"`
	}
}

// ValidateConfig는 설정이 유효한지 확인합니다.
func ValidateConfig(cfg *Config) error {
	if cfg.App.SyncInterval < 1*time.Minute {
		return fmt.Errorf("SYNC_INTERVAL은 1분 이상이어야 합니다")
	}

	if cfg.Provider.Timeout <= 0 || cfg.Provider.ConnectTimeout <= 0 {
		return fmt.Errorf("공급자 타임아웃은 0보다 커야 합니다")
	}

	if cfg.Provider.SyncConcurrency < 1 {
		return fmt.Errorf("SYNC_CONCURRENCY는 1 이상이어야 합니다")
	}

	f := cfg.Fraud
	for name, w := range map[string]float64{
		"FRAUD_WEIGHT_VELOCITY":    f.WeightVelocity,
		"FRAUD_WEIGHT_AMOUNT":      f.WeightAmount,
		"FRAUD_WEIGHT_ADDRESS":     f.WeightAddress,
		"FRAUD_WEIGHT_ACCOUNT_AGE": f.WeightAccountAge,
	} {
		if w < 0 {
			return fmt.Errorf("%s는 음수일 수 없습니다", name)
		}
	}
	if f.WeightVelocity+f.WeightAmount+f.WeightAddress+f.WeightAccountAge == 0 {
		return fmt.Errorf("사기 탐지 가중치의 합은 0보다 커야 합니다")
	}

	// 등급 경계는 반드시 오름차순이어야 합니다
	if !(0 < f.ThresholdMedium && f.ThresholdMedium < f.ThresholdHigh &&
		f.ThresholdHigh < f.ThresholdCritical && f.ThresholdCritical <= 1) {
		return fmt.Errorf("사기 탐지 임계값은 0 < MEDIUM < HIGH < CRITICAL <= 1 이어야 합니다")
	}

	if f.MaxPerWindow < 1 || f.Window <= 0 {
		return fmt.Errorf("FRAUD_MAX_PER_WINDOW와 FRAUD_WINDOW는 양수여야 합니다")
	}

	return nil
}

// LoadConfig는 환경변수에서 설정을 로드합니다.
func LoadConfig() (*Config, error) {
	// .env 파일 로드 (없으면 환경변수만 사용)
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf(".env 파일 로드 실패: %w", err)
	}

	var cfg Config
	// 환경변수를 구조체로 파싱
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("환경변수 처리 실패: %w", err)
	}

	// 설정값 검증
	if err := ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("설정값 검증 실패: %w", err)
	}

	return &cfg, nil
}
