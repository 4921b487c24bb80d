package models

// TrailingConfig — пороги сопровождения позиции в единицах R.
// R = дистанция до первоначального стопа.
type TrailingConfig struct {
	Enabled bool `yaml:"enabled"`

	// BE — перенос стопа в безубыток. Один раз за жизнь позиции.
	BETriggerR float64 `yaml:"be_trigger_r"` // 0.6
	BEOffsetR  float64 `yaml:"be_offset_r"`  // 0.0

	// Trail — ratchet-стоп после того как цена прошла TrailTriggerR.
	TrailTriggerR float64 `yaml:"trail_trigger_r"` // 1.0
	LockTriggerR  float64 `yaml:"lock_trigger_r"`  // 0.9
	LockOffsetR   float64 `yaml:"lock_offset_r"`   // 0.3

	// Перестановка стопа только если новый лучше старого минимум на MinImproveR.
	MinImproveR float64 `yaml:"min_improve_r"` // 0.10

	// TimeStop — выход из позиций которые не пошли.
	TimeStopBars    int     `yaml:"time_stop_bars"`     // 12
	TimeStopMinMFER float64 `yaml:"time_stop_min_mfer"` // 0.3

	PartialEnabled   bool    `yaml:"partial_enabled"`
	PartialTriggerR  float64 `yaml:"partial_trigger_r"`  // 0.9
	PartialCloseFrac float64 `yaml:"partial_close_frac"` // 0.5
}
