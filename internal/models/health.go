package models

import "time"

type WorkerState string

const (
	WorkerStarting WorkerState = "STARTING"
	WorkerRunning  WorkerState = "RUNNING"
	WorkerDegraded WorkerState = "DEGRADED" // жив, но брокер недоступен: ордера на паузе
	WorkerCrashed  WorkerState = "CRASHED"
	WorkerStopped  WorkerState = "STOPPED"
)

type WorkerHealth struct {
	Name        string      `json:"name"`
	State       WorkerState `json:"state"`
	Restarts    int         `json:"restarts"`
	LastError   string      `json:"last_error,omitempty"`
	LastRestart time.Time   `json:"last_restart,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// EngineSnapshot отдаётся ручкой /statez. Собирается из снапшотов,
// без блокировок торгового пути.
type EngineSnapshot struct {
	Mode      string            `json:"mode"` // paper | live
	Paused    bool              `json:"paused"`
	Portfolio PortfolioSnapshot `json:"portfolio"`
	Workers   []WorkerHealth    `json:"workers"`
	Signals   []Signal          `json:"recent_signals"`
	TakenAt   time.Time         `json:"taken_at"`
}
