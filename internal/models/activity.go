package models

import "time"

// ActivityType groups activity log entries.
type ActivityType string

const (
	ActivityUser   ActivityType = "user"
	ActivityItem   ActivityType = "item"
	ActivitySystem ActivityType = "system"
	ActivityAdmin  ActivityType = "admin"
)

// Activity is an append-only audit record of notable actions.
type Activity struct {
	ID          string       `db:"id" json:"id"`
	Type        ActivityType `db:"type" json:"type"`
	Action      string       `db:"action" json:"action"`
	Description string       `db:"description" json:"description"`
	UserID      *string      `db:"user_id" json:"user_id,omitempty"`
	ItemID      *string      `db:"item_id" json:"item_id,omitempty"`
	Metadata    JSONMap      `db:"metadata" json:"metadata"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
}
