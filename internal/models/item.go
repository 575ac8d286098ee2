package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ItemCategory distinguishes lost reports from found reports.
type ItemCategory string

const (
	CategoryLost  ItemCategory = "lost"
	CategoryFound ItemCategory = "found"
)

// Opposite returns the counterpart category a report is paired against.
func (c ItemCategory) Opposite() ItemCategory {
	if c == CategoryLost {
		return CategoryFound
	}
	return CategoryLost
}

// Valid reports whether the category is one of the known values.
func (c ItemCategory) Valid() bool {
	return c == CategoryLost || c == CategoryFound
}

// ItemStatus models the report lifecycle. The match engine only ever
// writes pending and matched; claimed/returned belong to the claim
// workflow and archived is a side exit.
type ItemStatus string

const (
	StatusPending  ItemStatus = "pending"
	StatusMatched  ItemStatus = "matched"
	StatusClaimed  ItemStatus = "claimed"
	StatusReturned ItemStatus = "returned"
	StatusArchived ItemStatus = "archived"
)

// MatchLink associates a report with a scored counterpart. Links are
// always created in symmetric pairs, one on each side.
type MatchLink struct {
	ItemID      string    `json:"item_id"`
	Score       int       `json:"score"`
	MatchReason string    `json:"match_reason"`
	MatchedAt   time.Time `json:"matched_at"`
}

// MatchLinkList is stored as a JSONB array on the items table.
type MatchLinkList []MatchLink

// Value implements driver.Valuer.
func (l MatchLinkList) Value() (driver.Value, error) {
	if l == nil {
		l = MatchLinkList{}
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *MatchLinkList) Scan(src interface{}) error {
	if src == nil {
		*l = MatchLinkList{}
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported matched_items source type %T", src)
	}
}

// Contains reports whether a link to the given item already exists.
func (l MatchLinkList) Contains(itemID string) bool {
	for _, link := range l {
		if link.ItemID == itemID {
			return true
		}
	}
	return false
}

// Item is a lost or found report.
type Item struct {
	ID            string         `db:"id" json:"id"`
	Title         string         `db:"title" json:"title"`
	Description   string         `db:"description" json:"description"`
	Category      ItemCategory   `db:"category" json:"category"`
	ItemType      string         `db:"item_type" json:"item_type"`
	Location      string         `db:"location" json:"location"`
	ExactLocation string         `db:"exact_location" json:"exact_location,omitempty"`
	Date          time.Time      `db:"date" json:"date"`
	ContactInfo   string         `db:"contact_info" json:"contact_info"`
	Color         string         `db:"color" json:"color,omitempty"`
	Brand         string         `db:"brand" json:"brand,omitempty"`
	Image         string         `db:"image" json:"image,omitempty"`
	Keywords      pq.StringArray `db:"keywords" json:"keywords"`
	MatchScore    int            `db:"match_score" json:"match_score"`
	MatchedItems  MatchLinkList  `db:"matched_items" json:"matched_items"`
	Status        ItemStatus     `db:"status" json:"status"`
	UserID        string         `db:"user_id" json:"user_id"`
	ClaimedBy     *string        `db:"claimed_by" json:"claimed_by,omitempty"`
	ClaimedAt     *time.Time     `db:"claimed_at" json:"claimed_at,omitempty"`
	HandoverPlace *string        `db:"handover_location" json:"handover_location,omitempty"`
	HandoverDate  *time.Time     `db:"handover_date" json:"handover_date,omitempty"`
	Version       int            `db:"version" json:"-"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// ItemFilter captures listing criteria for item reports.
type ItemFilter struct {
	Category ItemCategory
	ItemType string
	Location string
	Status   ItemStatus
	Search   string
	UserID   string
	Page     int
	PageSize int
}

// MatchCandidate pairs a matched counterpart with its score for the
// submission response.
type MatchCandidate struct {
	ItemID string `json:"item_id"`
	Title  string `json:"title"`
	Score  int    `json:"score"`
}

// MatchOutcome summarises a match recording run for the caller.
type MatchOutcome struct {
	MatchesFound []MatchCandidate `json:"matches_found"`
	MatchScore   int              `json:"match_score"`
	Skipped      int              `json:"skipped,omitempty"`
}

// UserItemStats aggregates per-user report counters.
type UserItemStats struct {
	TotalItems    int     `json:"total_items"`
	LostItems     int     `json:"lost_items"`
	FoundItems    int     `json:"found_items"`
	ReturnedItems int     `json:"returned_items"`
	MatchedItems  int     `json:"matched_items"`
	RecoveryRate  float64 `json:"recovery_rate"`
}

// DashboardStats aggregates community-wide counters for admins.
type DashboardStats struct {
	TotalUsers    int `json:"total_users"`
	LostItems     int `json:"lost_items"`
	FoundItems    int `json:"found_items"`
	PendingItems  int `json:"pending_items"`
	MatchedItems  int `json:"matched_items"`
	ReturnedItems int `json:"returned_items"`
}
