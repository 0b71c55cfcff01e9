package models

import "time"

// WorkItem is one queued unit of work released by the driver at a scheduled pulse.
type WorkItem struct {
	ID           uint   `gorm:"primaryKey"`
	Payload      string `gorm:"type:text"`
	Source       string `gorm:"type:varchar(64);index"`
	CreatedAt    time.Time
	DispatchedAt *time.Time `gorm:"index"`
	RunID        string     `gorm:"type:varchar(36);index"`
}

// Dispatched reports whether the driver has already released the item.
func (w WorkItem) Dispatched() bool {
	return w.DispatchedAt != nil
}
