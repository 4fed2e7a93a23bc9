package models

import "time"

// SimulationCursor remembers the last period a simulation job applied to an
// instrument, so the same period is never stepped twice.
type SimulationCursor struct {
	Job       string    `gorm:"primaryKey" json:"job"`
	Symbol    string    `gorm:"primaryKey" json:"symbol"`
	Period    time.Time `gorm:"not null" json:"period"`
	UpdatedAt time.Time `json:"updated_at"`
}
