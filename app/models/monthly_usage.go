package models

import "time"

// MonthlyUsage counts generated documents per user and calendar period.
// There is at most one row per (user, month, year); the count only ever
// increases via an atomic upsert-and-increment.
type MonthlyUsage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:ux_monthly_usage_user_period,priority:1" json:"user_id"`
	Month     int       `gorm:"not null;uniqueIndex:ux_monthly_usage_user_period,priority:2" json:"month"`
	Year      int       `gorm:"not null;uniqueIndex:ux_monthly_usage_user_period,priority:3" json:"year"`
	Count     int       `gorm:"not null;default:0" json:"count"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
