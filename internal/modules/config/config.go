package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/xentristech/tradingpro-sub001/internal/models"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
	bridgeAPIKeyENV   = "BRIDGE_API_KEY"
	bridgeSecretENV   = "BRIDGE_API_SECRET"
)

const (
	ModePaper = "paper"
	ModeLive  = "live"
)

// Config ...
type Config struct {
	// paper | live. Меняется только через рестарт, на лету не переключаем.
	Mode string `yaml:"mode"`
	Dev  bool   `yaml:"dev"`

	// Профиль рисков: safe | mid | aggr | "" (ручная настройка).
	Profile string `yaml:"profile"`

	// Белый список символов. Всё остальное игнорируется ещё на фиде.
	Symbols   []string `yaml:"symbols"`
	Timeframe string   `yaml:"timeframe"`

	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`

	DB      string `yaml:"db_dsn"`
	Service struct {
		Host       string `yaml:"host"`
		PublicPort int    `yaml:"public_port"`
		AdminPort  int    `yaml:"admin_port"`
	} `yaml:"service"`

	Bridge struct {
		BaseURL   string        `yaml:"base_url"`
		WSURL     string        `yaml:"ws_url"`
		APIKey    string        `yaml:"api_key"`
		APISecret string        `yaml:"api_secret"`
		Account   string        `yaml:"account"`
		Timeout   time.Duration // env BRIDGE_TIMEOUT
	} `yaml:"bridge"`

	// Внешний скоринг. При таймауте или мусоре в ответе торгуем на чистой технике.
	AI struct {
		Enabled bool          `yaml:"enabled"`
		URL     string        `yaml:"url"`
		Timeout time.Duration // env AI_TIMEOUT, 3..5s
		Weight  float64       `yaml:"weight"` // доля AI в итоговом скоре, 0..1
	} `yaml:"ai"`

	Risk struct {
		// Сколько от депозита мы готовы потерять по СТОПУ, а не по ликвидации
		RiskPct          float64       `yaml:"risk_pct"`           // 1.0 => 1% equity
		MaxRiskPct       float64       `yaml:"max_risk_pct"`       // жёсткий потолок, 2.0
		MaxOpenPositions int           `yaml:"max_open_positions"` // 5
		MaxDrawdownPct   float64       `yaml:"max_drawdown_pct"`   // 2.0 => circuit breaker
		PortfolioRiskPct float64       `yaml:"portfolio_risk_pct"` // суммарный риск открытых, 5.0
		RewardRR         float64       `yaml:"reward_rr"`          // TP = RR * дистанция до SL
		StopATRMult      float64       `yaml:"stop_atr_mult"`      // SL = ATR * mult
		CooldownPerSym   time.Duration // env COOLDOWN_PER_SYMBOL
	} `yaml:"risk"`

	Strategy struct {
		EMAFast    int `yaml:"ema_fast"`
		EMASlow    int `yaml:"ema_slow"`
		MACDFast   int `yaml:"macd_fast"`
		MACDSlow   int `yaml:"macd_slow"`
		MACDSignal int `yaml:"macd_signal"`
		RSIPeriod  int `yaml:"rsi_period"`
		ATRPeriod  int `yaml:"atr_period"`
		ADXPeriod  int `yaml:"adx_period"`

		BuyScore  float64 `yaml:"buy_score"`  // >= => BUY
		SellScore float64 `yaml:"sell_score"` // <= => SELL

		// Веса компонент скора, в сумме 100.
		WeightTrend      float64 `yaml:"weight_trend"`
		WeightMomentum   float64 `yaml:"weight_momentum"`
		WeightOscillator float64 `yaml:"weight_oscillator"`
		WeightStrength   float64 `yaml:"weight_strength"`

		WarmupProgressEvery time.Duration `yaml:"warmup_progress_every"` // 0 = без прогресса
	} `yaml:"strategy"`

	Trailing models.TrailingConfig `yaml:"trailing"`

	Executor struct {
		RetryBase   time.Duration // 1s, env RETRY_BASE
		RetryMax    time.Duration // 30s, env RETRY_MAX
		MaxAttempts int           `yaml:"max_attempts"` // 5
		AckTimeout  time.Duration // env ACK_TIMEOUT
	} `yaml:"executor"`

	Supervisor struct {
		RestartBase  time.Duration
		RestartMax   time.Duration
		MaxRestarts  int `yaml:"max_restarts"` // в окне, дальше алерт и halt
		Window       time.Duration
		PingInterval time.Duration // проверка связи с брокером и опрос счёта
	} `yaml:"supervisor"`

	Journal struct {
		Driver     string `yaml:"driver"` // jsonl | postgres
		Dir        string `yaml:"dir"`
		RecordBars bool   `yaml:"record_bars"` // писать свечи для replay
	} `yaml:"journal"`

	Paper struct {
		StartEquity float64 `yaml:"start_equity"`
	} `yaml:"paper"`

	Tracing struct {
		Enabled bool   `yaml:"enabled"`
		Host    string `yaml:"host"`
		Port    int    `yaml:"port"`
	} `yaml:"tracing"`

	Feed struct {
		QueueSize  int    `yaml:"queue_size"`
		DropPolicy string `yaml:"drop_policy"` // drop_oldest | drop_same_symbol
	} `yaml:"feed"`
}

func NewConfig() (*Config, error) {

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		log.Fatalf("Failed to open config file: %v", err)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := yaml.NewDecoder(file)
	config := defaults()
	err = decoder.Decode(config)
	if err != nil {
		log.Fatalf("Failed to decode config file: %v", err)
	}

	token := os.Getenv(tokenTelegramENV)
	if token != "" {
		config.Telegram.Token = token
	}

	dsn := os.Getenv(databaseDSN)
	if dsn != "" {
		config.DB = dsn
	}

	if v := os.Getenv(bridgeAPIKeyENV); v != "" {
		config.Bridge.APIKey = v
	}
	if v := os.Getenv(bridgeSecretENV); v != "" {
		config.Bridge.APISecret = v
	}

	applyProfile(config)

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return config, nil
}

func defaults() *Config {
	cfg := &Config{
		Mode:      getenvDefault("TRADING_MODE", ModePaper),
		Timeframe: getenvDefault("TIMEFRAME", "15m"),
	}

	cfg.Risk.RiskPct = floatFromEnv("RISK_PCT", 1.0)
	cfg.Risk.MaxRiskPct = 2.0
	cfg.Risk.MaxOpenPositions = intFromEnv("MAX_OPEN_POSITIONS", 5)
	cfg.Risk.MaxDrawdownPct = floatFromEnv("MAX_DRAWDOWN_PCT", 2.0)
	cfg.Risk.PortfolioRiskPct = 5.0
	cfg.Risk.RewardRR = floatFromEnv("REWARD_RR", 1.5)
	cfg.Risk.StopATRMult = 1.0
	cfg.Risk.CooldownPerSym = durationFromEnv("COOLDOWN_PER_SYMBOL", "60s")

	cfg.Strategy.EMAFast = intFromEnv("EMA_FAST", 9)
	cfg.Strategy.EMASlow = intFromEnv("EMA_SLOW", 21)
	cfg.Strategy.MACDFast = 12
	cfg.Strategy.MACDSlow = 26
	cfg.Strategy.MACDSignal = 9
	cfg.Strategy.RSIPeriod = intFromEnv("RSI_PERIOD", 14)
	cfg.Strategy.ATRPeriod = 14
	cfg.Strategy.ADXPeriod = 14
	cfg.Strategy.BuyScore = floatFromEnv("BUY_SCORE", 65)
	cfg.Strategy.SellScore = floatFromEnv("SELL_SCORE", 35)
	cfg.Strategy.WeightTrend = 30
	cfg.Strategy.WeightMomentum = 25
	cfg.Strategy.WeightOscillator = 25
	cfg.Strategy.WeightStrength = 20
	cfg.Strategy.WarmupProgressEvery = 5 * time.Minute

	cfg.Trailing = models.TrailingConfig{
		Enabled:          true,
		BETriggerR:       0.6,
		BEOffsetR:        0,
		TrailTriggerR:    1.0,
		LockTriggerR:     0.9,
		LockOffsetR:      0.3,
		MinImproveR:      0.10,
		TimeStopBars:     12,
		TimeStopMinMFER:  0.3,
		PartialEnabled:   true,
		PartialTriggerR:  0.9,
		PartialCloseFrac: 0.5,
	}

	cfg.Executor.RetryBase = durationFromEnv("RETRY_BASE", "1s")
	cfg.Executor.RetryMax = durationFromEnv("RETRY_MAX", "30s")
	cfg.Executor.MaxAttempts = intFromEnv("RETRY_MAX_ATTEMPTS", 5)
	cfg.Executor.AckTimeout = durationFromEnv("ACK_TIMEOUT", "10s")

	cfg.Supervisor.RestartBase = time.Second
	cfg.Supervisor.RestartMax = 30 * time.Second
	cfg.Supervisor.MaxRestarts = 5
	cfg.Supervisor.Window = 10 * time.Minute
	cfg.Supervisor.PingInterval = 15 * time.Second

	cfg.Journal.Driver = getenvDefault("JOURNAL_DRIVER", "jsonl")
	cfg.Journal.Dir = getenvDefault("JOURNAL_DIR", "journal")
	cfg.Journal.RecordBars = boolFromEnv("JOURNAL_RECORD_BARS", false)

	cfg.Paper.StartEquity = floatFromEnv("PAPER_START_EQUITY", 10000)

	cfg.Bridge.Timeout = durationFromEnv("BRIDGE_TIMEOUT", "5s")

	cfg.AI.Timeout = durationFromEnv("AI_TIMEOUT", "4s")
	cfg.AI.Weight = 0.3

	cfg.Feed.QueueSize = intFromEnv("FEED_QUEUE_SIZE", 4096)
	cfg.Feed.DropPolicy = getenvDefault("FEED_DROP_POLICY", "drop_same_symbol")

	cfg.Service.Host = getenvDefault("SERVICE_HOST", "0.0.0.0")
	cfg.Service.PublicPort = intFromEnv("PUBLIC_PORT", 8080)
	cfg.Service.AdminPort = intFromEnv("ADMIN_PORT", 8081)

	return cfg
}

// applyProfile накатывает пресет поверх дефолтов, но до ручных значений
// из yaml руки не дотягивается: yaml уже отдекодирован, пресет правит
// только risk/trailing целиком.
func applyProfile(cfg *Config) {
	switch cfg.Profile {
	case "safe":
		// 🟢 Консервативный: минимальный риск
		cfg.Risk.RiskPct = 0.5
		cfg.Risk.RewardRR = 2.0
		cfg.Trailing.BETriggerR = 0.4
		cfg.Trailing.LockTriggerR = 0.8
		cfg.Trailing.LockOffsetR = 0.2
		cfg.Trailing.TimeStopBars = 8
		cfg.Trailing.PartialTriggerR = 0.8
		cfg.Trailing.PartialCloseFrac = 0.6
	case "aggr":
		// 🔴 Агрессивный: только для live с пониманием последствий
		cfg.Risk.RiskPct = 2.0
		cfg.Risk.RewardRR = 3.0
		cfg.Trailing.BETriggerR = 1.0
		cfg.Trailing.BEOffsetR = 0.1
		cfg.Trailing.LockTriggerR = 1.5
		cfg.Trailing.LockOffsetR = 0.5
		cfg.Trailing.TimeStopBars = 20
		cfg.Trailing.PartialEnabled = false
	case "mid", "":
		// дефолты и есть сбалансированный профиль
	}
}

func (c *Config) validate() error {
	if c.Mode != ModePaper && c.Mode != ModeLive {
		return fmt.Errorf("mode must be paper or live, got %q", c.Mode)
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("symbols allow-list is empty")
	}
	if c.Risk.RiskPct <= 0 || c.Risk.RiskPct > c.Risk.MaxRiskPct {
		return fmt.Errorf("risk_pct %.2f out of (0; %.2f]", c.Risk.RiskPct, c.Risk.MaxRiskPct)
	}
	if c.Risk.MaxOpenPositions <= 0 {
		return fmt.Errorf("max_open_positions must be positive")
	}
	if c.Risk.MaxDrawdownPct <= 0 {
		return fmt.Errorf("max_drawdown_pct must be positive")
	}
	if c.AI.Enabled {
		if c.AI.URL == "" {
			return fmt.Errorf("ai.url is required when ai.enabled")
		}
		if c.AI.Timeout < 3*time.Second || c.AI.Timeout > 5*time.Second {
			return fmt.Errorf("ai.timeout must stay within 3s..5s, got %s", c.AI.Timeout)
		}
	}
	if c.Mode == ModeLive {
		// в live без моста делать нечего
		if c.Bridge.BaseURL == "" {
			c.Bridge.BaseURL = getenvRequired("BRIDGE_BASE_URL")
		}
		if c.Bridge.WSURL == "" {
			c.Bridge.WSURL = getenvRequired("BRIDGE_WS_URL")
		}
	}
	if d := c.Journal.Driver; d != "jsonl" && d != "postgres" {
		return fmt.Errorf("journal.driver must be jsonl or postgres, got %q", d)
	}
	if c.Journal.Driver == "postgres" && c.DB == "" {
		return fmt.Errorf("db_dsn is required for postgres journal")
	}
	for i, s := range c.Symbols {
		c.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	return nil
}

// Allowed — символ есть в белом списке.
func (c *Config) Allowed(symbol string) bool {
	for _, s := range c.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

func getenvRequired(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("env %s is required", key))
	}
	return v
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if v == "1" || v == "true" || v == "TRUE" {
			return true
		}
		if v == "0" || v == "false" || v == "FALSE" {
			return false
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
