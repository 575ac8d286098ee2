package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/reunitehq/reunite-api/internal/matching"
	"github.com/reunitehq/reunite-api/internal/models"
	appErrors "github.com/reunitehq/reunite-api/pkg/errors"
)

type itemRepository interface {
	Create(ctx context.Context, item *models.Item) error
	FindByID(ctx context.Context, id string) (*models.Item, error)
	List(ctx context.Context, filter models.ItemFilter) ([]models.Item, int, error)
	Claim(ctx context.Context, id, claimantID string, at time.Time) error
	MarkReturned(ctx context.Context, id, handoverLocation string, at time.Time) error
	UserStats(ctx context.Context, userID string) (*models.UserItemStats, error)
}

type itemUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	AddTrustScore(ctx context.Context, id string, delta int) error
}

type activityRecorder interface {
	Create(ctx context.Context, activity *models.Activity) error
}

type matchRecorder interface {
	Record(ctx context.Context, newItem *models.Item) (*models.MatchOutcome, error)
}

// Successful handovers raise both parties' trust score.
const trustScoreReward = 10

// ItemService handles the report lifecycle: submission with automatic
// matching, browsing, claiming and handover.
type ItemService struct {
	items      itemRepository
	users      itemUserRepository
	activities activityRecorder
	matcher    matchRecorder
	dispatcher NotificationDispatcher
	cache      *CacheService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewItemService constructs the service.
func NewItemService(items itemRepository, users itemUserRepository, activities activityRecorder, matcher matchRecorder, dispatcher NotificationDispatcher, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *ItemService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ItemService{
		items:      items,
		users:      users,
		activities: activities,
		matcher:    matcher,
		dispatcher: dispatcher,
		cache:      cache,
		validator:  validate,
		logger:     logger,
	}
}

// ReportItemRequest describes a new lost/found submission.
type ReportItemRequest struct {
	Title         string    `json:"title" validate:"required"`
	Description   string    `json:"description" validate:"required"`
	Category      string    `json:"category" validate:"required,oneof=lost found"`
	ItemType      string    `json:"item_type" validate:"required"`
	Location      string    `json:"location" validate:"required"`
	ExactLocation string    `json:"exact_location"`
	Date          time.Time `json:"date" validate:"required"`
	ContactInfo   string    `json:"contact_info" validate:"required"`
	Color         string    `json:"color"`
	Brand         string    `json:"brand"`
	Image         string    `json:"-"`
}

// ItemListRequest describes browsing filters.
type ItemListRequest struct {
	Category string `json:"category"`
	ItemType string `json:"item_type"`
	Location string `json:"location"`
	Status   string `json:"status"`
	Search   string `json:"search"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

// Report persists a new item and runs the match recorder over it.
func (s *ItemService) Report(ctx context.Context, userID string, req ReportItemRequest) (*models.Item, *models.MatchOutcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report payload")
	}
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reporter")
	}

	item := &models.Item{
		Title:         req.Title,
		Description:   req.Description,
		Category:      models.ItemCategory(req.Category),
		ItemType:      req.ItemType,
		Location:      req.Location,
		ExactLocation: req.ExactLocation,
		Date:          req.Date,
		ContactInfo:   req.ContactInfo,
		Color:         req.Color,
		Brand:         req.Brand,
		Image:         req.Image,
		Keywords:      matching.Extract(req.Title + " " + req.Description),
		Status:        models.StatusPending,
		UserID:        userID,
	}

	if err := s.items.Create(ctx, item); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create item report")
	}

	outcome, err := s.matcher.Record(ctx, item)
	if err != nil {
		return nil, nil, err
	}

	s.recordActivity(ctx, models.ActivityItem, "item_reported",
		fmt.Sprintf("%s item %q reported", item.Category, item.Title), userID, item.ID,
		models.JSONMap{"matches_found": len(outcome.MatchesFound), "match_score": outcome.MatchScore})

	return item, outcome, nil
}

// List returns item reports for browsing, best matches first.
func (s *ItemService) List(ctx context.Context, req ItemListRequest) ([]models.Item, *models.Pagination, error) {
	filter := models.ItemFilter{
		Category: models.ItemCategory(req.Category),
		ItemType: req.ItemType,
		Location: req.Location,
		Status:   models.ItemStatus(req.Status),
		Search:   req.Search,
		Page:     req.Page,
		PageSize: req.PageSize,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}
	items, total, err := s.items.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list items")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return items, pagination, nil
}

// MyItems returns every report submitted by the user.
func (s *ItemService) MyItems(ctx context.Context, userID string) ([]models.Item, error) {
	items, _, err := s.items.List(ctx, models.ItemFilter{UserID: userID, PageSize: 100})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list user items")
	}
	return items, nil
}

// Get returns a single item report.
func (s *ItemService) Get(ctx context.Context, id string) (*models.Item, error) {
	item, err := s.items.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load item")
	}
	return item, nil
}

// Claim marks a found item as claimed by the given user and notifies
// the finder.
func (s *ItemService) Claim(ctx context.Context, itemID, claimantID string) (*models.Item, error) {
	item, err := s.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.Category != models.CategoryFound {
		return nil, appErrors.Clone(appErrors.ErrNotClaimable, "only found items can be claimed")
	}
	if item.UserID == claimantID {
		return nil, appErrors.Clone(appErrors.ErrNotClaimable, "cannot claim your own report")
	}

	now := time.Now().UTC()
	if err := s.items.Claim(ctx, itemID, claimantID, now); err != nil {
		return nil, err
	}
	item.ClaimedBy = &claimantID
	item.ClaimedAt = &now
	item.Status = models.StatusClaimed

	s.dispatch(models.Notification{
		UserID:   item.UserID,
		Type:     models.NotificationClaim,
		Title:    "Item Claimed!",
		Message:  "Someone has claimed your found item",
		Priority: models.PriorityHigh,
		Data:     models.JSONMap{"item_id": item.ID, "claimant_id": claimantID},
	})
	s.recordActivity(ctx, models.ActivityItem, "item_claimed",
		fmt.Sprintf("item %q claimed", item.Title), claimantID, item.ID, nil)

	return item, nil
}

// ReturnItemRequest finalizes a handover.
type ReturnItemRequest struct {
	HandoverLocation string `json:"handover_location" validate:"required"`
}

// Return marks an item as returned, rewards both parties' trust scores
// and notifies the claimant.
func (s *ItemService) Return(ctx context.Context, itemID, userID string, req ReturnItemRequest) (*models.Item, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid return payload")
	}
	item, err := s.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.UserID != userID && (item.ClaimedBy == nil || *item.ClaimedBy != userID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the reporter or claimant can mark an item returned")
	}

	now := time.Now().UTC()
	if err := s.items.MarkReturned(ctx, itemID, req.HandoverLocation, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark item returned")
	}
	item.Status = models.StatusReturned
	item.HandoverPlace = &req.HandoverLocation
	item.HandoverDate = &now

	if err := s.users.AddTrustScore(ctx, item.UserID, trustScoreReward); err != nil {
		s.logger.Warn("failed to reward reporter trust score", zap.String("user_id", item.UserID), zap.Error(err))
	}
	if item.ClaimedBy != nil {
		if err := s.users.AddTrustScore(ctx, *item.ClaimedBy, trustScoreReward); err != nil {
			s.logger.Warn("failed to reward claimant trust score", zap.String("user_id", *item.ClaimedBy), zap.Error(err))
		}
		s.dispatch(models.Notification{
			UserID:   *item.ClaimedBy,
			Type:     models.NotificationStatus,
			Title:    "Item Returned Successfully",
			Message:  fmt.Sprintf("The item %q has been marked as returned", item.Title),
			Priority: models.PriorityMedium,
		})
	}
	s.recordActivity(ctx, models.ActivityItem, "item_returned",
		fmt.Sprintf("item %q returned at %s", item.Title, req.HandoverLocation), userID, item.ID, nil)
	s.cache.Invalidate(ctx, userStatsCacheKey(item.UserID))

	return item, nil
}

// Stats aggregates the user's report counters, served from cache when warm.
func (s *ItemService) Stats(ctx context.Context, userID string) (*models.UserItemStats, error) {
	key := userStatsCacheKey(userID)
	var cached models.UserItemStats
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}
	stats, err := s.items.UserStats(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate item stats")
	}
	_ = s.cache.Set(ctx, key, stats, 0)
	return stats, nil
}

func (s *ItemService) dispatch(n models.Notification) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Dispatch(n)
}

func (s *ItemService) recordActivity(ctx context.Context, typ models.ActivityType, action, description, userID, itemID string, metadata models.JSONMap) {
	if s.activities == nil {
		return
	}
	activity := &models.Activity{
		Type:        typ,
		Action:      action,
		Description: description,
		Metadata:    metadata,
	}
	if userID != "" {
		activity.UserID = &userID
	}
	if itemID != "" {
		activity.ItemID = &itemID
	}
	if err := s.activities.Create(ctx, activity); err != nil {
		s.logger.Warn("failed to record activity", zap.String("action", action), zap.Error(err))
	}
}

func userStatsCacheKey(userID string) string {
	return fmt.Sprintf("items:stats:%s", userID)
}
