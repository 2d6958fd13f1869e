package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del motor de evaluacion adaptativa.
type Config struct {
	HTTPPort      string        `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL   string        `env:"DATABASE_URL"`
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	JWTSecret     string        `env:"JWT_SECRET"`
	LLMAPIKey     string        `env:"LLM_API_KEY"`
	LLMBaseURL    string        `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	LLMModel      string        `env:"LLM_MODEL" envDefault:"gpt-5.1"`
	LLMTimeout    time.Duration `env:"LLM_TIMEOUT" envDefault:"8s"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFile       string        `env:"LOG_FILE"`
	LogMode       string        `env:"LOG_MODE" envDefault:"production"`

	// Rotacion del archivo de log.
	LogMaxSizeMB  int  `env:"LOG_MAX_SIZE_MB" envDefault:"100"`
	LogMaxBackups int  `env:"LOG_MAX_BACKUPS" envDefault:"5"`
	LogMaxAgeDays int  `env:"LOG_MAX_AGE_DAYS" envDefault:"14"`
	LogCompress   bool `env:"LOG_COMPRESS" envDefault:"true"`

	// Banco de items.
	ItemBankLoadTimeout time.Duration `env:"ITEM_BANK_LOAD_TIMEOUT" envDefault:"5s"`

	// Control de exposicion.
	ExposureMaxRatio float64 `env:"EXPOSURE_MAX_RATIO" envDefault:"0.15"`
	ExposureFloor    int64   `env:"EXPOSURE_FLOOR" envDefault:"1"`

	// Criterios de parada por defecto.
	DefaultItemsPerDomain int     `env:"DEFAULT_ITEMS_PER_DOMAIN" envDefault:"5"`
	DefaultSEThreshold    float64 `env:"DEFAULT_SE_THRESHOLD" envDefault:"0"`
	UseResponseLatency    bool    `env:"USE_RESPONSE_LATENCY" envDefault:"true"`

	// Perfil conductual y prediccion.
	ProfileDecay       float64       `env:"PROFILE_DECAY" envDefault:"0.2"`
	HintRequestTTL     time.Duration `env:"HINT_REQUEST_TTL" envDefault:"1h"`
	PredictMinSessions int           `env:"PREDICT_MIN_SESSIONS" envDefault:"3"`
	PredictHorizonDays int           `env:"PREDICT_HORIZON_DAYS" envDefault:"30"`

	// Ciclo de vida de sesiones.
	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"45m"`
	SessionRetention   time.Duration `env:"SESSION_RETENTION" envDefault:"2h"`
	JanitorInterval    time.Duration `env:"JANITOR_INTERVAL" envDefault:"1m"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
