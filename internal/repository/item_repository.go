package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/reunitehq/reunite-api/internal/models"
	appErrors "github.com/reunitehq/reunite-api/pkg/errors"
)

const itemColumns = `id, title, description, category, item_type, location, exact_location, date,
contact_info, color, brand, image, keywords, match_score, matched_items, status, user_id,
claimed_by, claimed_at, handover_location, handover_date, version, created_at, updated_at`

// ItemRepository manages persistence for lost and found reports.
type ItemRepository struct {
	db *sqlx.DB
}

// NewItemRepository constructs a new repository.
func NewItemRepository(db *sqlx.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// Create inserts a new item report.
func (r *ItemRepository) Create(ctx context.Context, item *models.Item) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	if item.Status == "" {
		item.Status = models.StatusPending
	}
	if item.MatchedItems == nil {
		item.MatchedItems = models.MatchLinkList{}
	}
	item.Version = 1
	query := `INSERT INTO items (id, title, description, category, item_type, location, exact_location, date,
contact_info, color, brand, image, keywords, match_score, matched_items, status, user_id, version, created_at, updated_at)
VALUES (:id, :title, :description, :category, :item_type, :location, :exact_location, :date,
:contact_info, :color, :brand, :image, :keywords, :match_score, :matched_items, :status, :user_id, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("create item: %w", err)
	}
	return nil
}

// FindByID returns a single item report.
func (r *ItemRepository) FindByID(ctx context.Context, id string) (*models.Item, error) {
	var item models.Item
	query := fmt.Sprintf("SELECT %s FROM items WHERE id = $1", itemColumns)
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, fmt.Errorf("find item %s: %w", id, err)
	}
	return &item, nil
}

// FindCandidates returns every open opposite-category report of the
// same type by a different owner. Pairs failing this predicate are
// never scored.
func (r *ItemRepository) FindCandidates(ctx context.Context, item *models.Item) ([]models.Item, error) {
	query := fmt.Sprintf(`SELECT %s FROM items
WHERE category = $1 AND status = $2 AND item_type = $3 AND user_id <> $4`, itemColumns)
	var candidates []models.Item
	err := r.db.SelectContext(ctx, &candidates, query,
		item.Category.Opposite(), models.StatusPending, item.ItemType, item.UserID)
	if err != nil {
		return nil, fmt.Errorf("find match candidates: %w", err)
	}
	return candidates, nil
}

// List returns item reports per provided filter, best matches first.
func (r *ItemRepository) List(ctx context.Context, filter models.ItemFilter) ([]models.Item, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Category != "" {
		where = append(where, fmt.Sprintf("category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.ItemType != "" {
		where = append(where, fmt.Sprintf("item_type = $%d", len(args)+1))
		args = append(args, filter.ItemType)
	}
	if filter.Location != "" {
		where = append(where, fmt.Sprintf("location = $%d", len(args)+1))
		args = append(args, filter.Location)
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.UserID != "" {
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	whereClause := strings.Join(where, " AND ")
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM items WHERE %s
ORDER BY match_score DESC, created_at DESC LIMIT %d OFFSET %d`, itemColumns, whereClause, size, offset)
	var items []models.Item
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list items: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM items WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count items: %w", err)
	}
	return items, total, nil
}

// RecordMatch applies one side of a match recording with optimistic
// concurrency: the update only lands when the row still carries
// expectedVersion, otherwise ErrVersionConflict is returned and the
// caller re-reads and retries. match_score can only grow and a
// promotion never downgrades an already advanced status.
func (r *ItemRepository) RecordMatch(ctx context.Context, id string, expectedVersion int, matched models.MatchLinkList, score int, promote bool) error {
	query := `UPDATE items
SET matched_items = $1,
    match_score = GREATEST(match_score, $2),
    status = CASE WHEN $3 AND status = 'pending' THEN 'matched' ELSE status END,
    version = version + 1,
    updated_at = $4
WHERE id = $5 AND version = $6`
	res, err := r.db.ExecContext(ctx, query, matched, score, promote, time.Now().UTC(), id, expectedVersion)
	if err != nil {
		return fmt.Errorf("record match on item %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record match on item %s: %w", id, err)
	}
	if affected == 0 {
		return appErrors.ErrVersionConflict
	}
	return nil
}

// Claim marks a found item as claimed. The status guard lives in the
// WHERE clause so two racing claims cannot both succeed.
func (r *ItemRepository) Claim(ctx context.Context, id, claimantID string, at time.Time) error {
	query := `UPDATE items
SET claimed_by = $1, claimed_at = $2, status = $3, version = version + 1, updated_at = $2
WHERE id = $4 AND category = $5 AND status IN ($6, $7)`
	res, err := r.db.ExecContext(ctx, query, claimantID, at, models.StatusClaimed,
		id, models.CategoryFound, models.StatusPending, models.StatusMatched)
	if err != nil {
		return fmt.Errorf("claim item %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim item %s: %w", id, err)
	}
	if affected == 0 {
		return appErrors.ErrNotClaimable
	}
	return nil
}

// MarkReturned finalizes the handover of an item.
func (r *ItemRepository) MarkReturned(ctx context.Context, id, handoverLocation string, at time.Time) error {
	query := `UPDATE items
SET status = $1, handover_location = $2, handover_date = $3, version = version + 1, updated_at = $3
WHERE id = $4`
	if _, err := r.db.ExecContext(ctx, query, models.StatusReturned, handoverLocation, at, id); err != nil {
		return fmt.Errorf("mark item %s returned: %w", id, err)
	}
	return nil
}

// UserStats aggregates report counters for a single member.
func (r *ItemRepository) UserStats(ctx context.Context, userID string) (*models.UserItemStats, error) {
	query := `SELECT COUNT(*) AS total_items,
       COALESCE(SUM(CASE WHEN category = 'lost' THEN 1 ELSE 0 END), 0) AS lost_items,
       COALESCE(SUM(CASE WHEN category = 'found' THEN 1 ELSE 0 END), 0) AS found_items,
       COALESCE(SUM(CASE WHEN status = 'returned' THEN 1 ELSE 0 END), 0) AS returned_items,
       COALESCE(SUM(CASE WHEN status = 'matched' THEN 1 ELSE 0 END), 0) AS matched_items
FROM items WHERE user_id = $1`
	var stats models.UserItemStats
	if err := r.db.QueryRowxContext(ctx, query, userID).Scan(
		&stats.TotalItems, &stats.LostItems, &stats.FoundItems, &stats.ReturnedItems, &stats.MatchedItems,
	); err != nil {
		return nil, fmt.Errorf("user item stats: %w", err)
	}
	if stats.LostItems > 0 {
		stats.RecoveryRate = float64(stats.ReturnedItems) / float64(stats.LostItems) * 100
	}
	return &stats, nil
}

// DashboardCounts aggregates community-wide item counters.
func (r *ItemRepository) DashboardCounts(ctx context.Context) (*models.DashboardStats, error) {
	query := `SELECT
       COALESCE(SUM(CASE WHEN category = 'lost' THEN 1 ELSE 0 END), 0) AS lost_items,
       COALESCE(SUM(CASE WHEN category = 'found' THEN 1 ELSE 0 END), 0) AS found_items,
       COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0) AS pending_items,
       COALESCE(SUM(CASE WHEN status = 'matched' THEN 1 ELSE 0 END), 0) AS matched_items,
       COALESCE(SUM(CASE WHEN status = 'returned' THEN 1 ELSE 0 END), 0) AS returned_items
FROM items`
	var stats models.DashboardStats
	if err := r.db.QueryRowxContext(ctx, query).Scan(
		&stats.LostItems, &stats.FoundItems, &stats.PendingItems, &stats.MatchedItems, &stats.ReturnedItems,
	); err != nil {
		return nil, fmt.Errorf("dashboard item counts: %w", err)
	}
	return &stats, nil
}
