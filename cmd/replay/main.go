package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/xentristech/tradingpro-sub001/internal/models"
	journalsvc "github.com/xentristech/tradingpro-sub001/internal/modules/journal/service"
	strategysvc "github.com/xentristech/tradingpro-sub001/internal/modules/strategy/service"
)

// replay прогоняет стратегию по свечам из журнала и сверяет результат с
// записанными сигналами. Расхождение значит что в движок пролез
// недетерминизм, это повод остановиться и искать.
func main() {
	pflag.String("dir", "journal", "директория jsonl-журнала")
	pflag.String("symbol", "", "ограничить проверку одним символом")
	pflag.Bool("verbose", false, "печатать каждый сверенный сигнал")
	pflag.Parse()

	v := viper.New()
	v.SetEnvPrefix("REPLAY")
	v.AutomaticEnv()
	if err := v.BindPFlags(pflag.CommandLine); err != nil {
		fmt.Fprintf(os.Stderr, "flags: %v\n", err)
		os.Exit(2)
	}

	dir := v.GetString("dir")
	onlySymbol := v.GetString("symbol")
	verbose := v.GetBool("verbose")

	entries, err := journalsvc.ReadAll(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read journal: %v\n", err)
		os.Exit(1)
	}

	engine := engineFromConfig()

	var (
		candles  int
		checked  int
		mismatch int
	)

	recorded := recordedSignals(entries, onlySymbol)

	for _, e := range entries {
		if e.Kind != models.EntryCandle || e.Candle == nil {
			continue
		}
		if onlySymbol != "" && e.Candle.Symbol != onlySymbol {
			continue
		}
		candles++

		got, _ := engine.OnCandle(*e.Candle)
		if got.Reason == models.SignalReasonWarmup {
			continue
		}

		key := sigKey(got.Symbol, got.At)
		want, ok := recorded[key]
		if !ok {
			// сигнал мог быть не записан (журнал начат позже), не ошибка
			continue
		}
		checked++

		if !sameSignal(got, want) {
			mismatch++
			fmt.Printf("MISMATCH %s @ %s:\n  journal: side=%s score=%.2f reason=%s\n  replay:  side=%s score=%.2f reason=%s\n",
				got.Symbol, got.At.Format("2006-01-02 15:04:05"),
				want.Side, want.Score, want.Reason,
				got.Side, got.Score, got.Reason)
		} else if verbose {
			fmt.Printf("ok %s @ %s side=%s score=%.2f\n",
				got.Symbol, got.At.Format("2006-01-02 15:04:05"), got.Side, got.Score)
		}
	}

	fmt.Printf("replayed %d candles, checked %d signals, %d mismatches\n", candles, checked, mismatch)
	if mismatch > 0 {
		os.Exit(1)
	}
}

// engineFromConfig строит стратегию с теми же параметрами, что писали
// журнал. Параметры берём из конфига процесса: журнал их не хранит.
func engineFromConfig() strategysvc.Engine {
	cfg := strategysvc.ScoredConfig{}

	v := viper.New()
	v.SetConfigName(getenvDefault("CONFIG_FILE_NAME", "values_local"))
	v.SetConfigType("yaml")
	v.AddConfigPath("configs")
	if err := v.ReadInConfig(); err == nil {
		cfg.EMAFast = v.GetInt("strategy.ema_fast")
		cfg.EMASlow = v.GetInt("strategy.ema_slow")
		cfg.MACDFast = v.GetInt("strategy.macd_fast")
		cfg.MACDSlow = v.GetInt("strategy.macd_slow")
		cfg.MACDSignal = v.GetInt("strategy.macd_signal")
		cfg.RSIPeriod = v.GetInt("strategy.rsi_period")
		cfg.ATRPeriod = v.GetInt("strategy.atr_period")
		cfg.ADXPeriod = v.GetInt("strategy.adx_period")
		cfg.BuyScore = v.GetFloat64("strategy.buy_score")
		cfg.SellScore = v.GetFloat64("strategy.sell_score")
		cfg.WeightTrend = v.GetFloat64("strategy.weight_trend")
		cfg.WeightMomentum = v.GetFloat64("strategy.weight_momentum")
		cfg.WeightOscillator = v.GetFloat64("strategy.weight_oscillator")
		cfg.WeightStrength = v.GetFloat64("strategy.weight_strength")
	}

	return strategysvc.NewScored(cfg)
}

func recordedSignals(entries []models.JournalEntry, onlySymbol string) map[string]models.Signal {
	out := map[string]models.Signal{}
	for _, e := range entries {
		if e.Kind != models.EntrySignal || e.Signal == nil {
			continue
		}
		if onlySymbol != "" && e.Signal.Symbol != onlySymbol {
			continue
		}
		out[sigKey(e.Signal.Symbol, e.Signal.At)] = *e.Signal
	}
	return out
}

func sigKey(symbol string, at time.Time) string {
	return fmt.Sprintf("%s@%d", symbol, at.Unix())
}

// sameSignal сравнивает только воспроизводимую часть. Сигналы с примесью
// AI не проверяются: их скор зависел от внешнего сервиса.
func sameSignal(got, want models.Signal) bool {
	if want.AIUsed {
		return true
	}
	return got.Side == want.Side && got.Score == want.Score && got.Reason == want.Reason
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
