package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/reunitehq/reunite-api/internal/matching"
	"github.com/reunitehq/reunite-api/internal/models"
	appErrors "github.com/reunitehq/reunite-api/pkg/errors"
)

type matchItemRepository interface {
	FindByID(ctx context.Context, id string) (*models.Item, error)
	FindCandidates(ctx context.Context, item *models.Item) ([]models.Item, error)
	RecordMatch(ctx context.Context, id string, expectedVersion int, matched models.MatchLinkList, score int, promote bool) error
}

// NotificationDispatcher emits notifications without blocking the
// caller. Delivery is fire-and-forget; ordering relative to item
// updates is not guaranteed.
type NotificationDispatcher interface {
	Dispatch(n models.Notification)
}

// MatchService pairs a freshly reported item against open
// opposite-category reports, records symmetric match links, promotes
// statuses past the confirmed threshold and raises notifications to
// both owners.
type MatchService struct {
	items      matchItemRepository
	dispatcher NotificationDispatcher
	metrics    *MetricsService
	logger     *zap.Logger
	maxRetries int
}

// NewMatchService constructs the match recorder.
func NewMatchService(items matchItemRepository, dispatcher NotificationDispatcher, metrics *MetricsService, logger *zap.Logger, maxRetries int) *MatchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &MatchService{items: items, dispatcher: dispatcher, metrics: metrics, logger: logger, maxRetries: maxRetries}
}

// Record runs the matching pass for a newly persisted item. The item is
// mutated in place with its final match score, links and status. A
// failed counterpart update skips that counterpart only; a failed final
// save of the new item is fatal for the submission.
func (s *MatchService) Record(ctx context.Context, newItem *models.Item) (*models.MatchOutcome, error) {
	candidates, err := s.items.FindCandidates(ctx, newItem)
	if err != nil {
		// Nothing has been written yet, the whole submission is safe
		// to retry.
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load match candidates")
	}

	outcome := &models.MatchOutcome{MatchesFound: []models.MatchCandidate{}}
	reason := fmt.Sprintf("High similarity based on %s at %s", newItem.ItemType, newItem.Location)

	for i := range candidates {
		candidate := &candidates[i]
		score := matching.Score(newItem, candidate)
		if s.metrics != nil {
			s.metrics.RecordMatchComparison()
		}
		if score < matching.PossibleMatchThreshold {
			continue
		}

		if err := s.recordCounterpart(ctx, candidate, newItem.ID, score, reason); err != nil {
			// Counterpart updates are independent pairwise operations;
			// losing one must not abort the rest.
			s.logger.Warn("skipping counterpart after failed update",
				zap.String("item_id", newItem.ID),
				zap.String("counterpart_id", candidate.ID),
				zap.Int("score", score),
				zap.Error(err))
			outcome.Skipped++
			continue
		}

		newItem.MatchedItems = append(newItem.MatchedItems, models.MatchLink{
			ItemID:      candidate.ID,
			Score:       score,
			MatchReason: reason,
			MatchedAt:   time.Now().UTC(),
		})
		outcome.MatchesFound = append(outcome.MatchesFound, models.MatchCandidate{
			ItemID: candidate.ID,
			Title:  candidate.Title,
			Score:  score,
		})
		if score > outcome.MatchScore {
			outcome.MatchScore = score
		}

		confirmed := score >= matching.ConfirmedMatchThreshold
		if s.metrics != nil {
			s.metrics.RecordMatchFound(confirmed)
		}
		priority := models.PriorityMedium
		if confirmed {
			priority = models.PriorityHigh
		}
		s.dispatch(models.Notification{
			UserID:   candidate.UserID,
			Type:     models.NotificationMatch,
			Title:    "Potential Match Found!",
			Message:  fmt.Sprintf("Your %s item %q might match a %s report", candidate.Category, candidate.Title, newItem.Category),
			Priority: priority,
			Data: models.JSONMap{
				"matched_item_id": newItem.ID,
				"match_score":     score,
				"item_type":       newItem.ItemType,
			},
		})
	}

	newItem.MatchScore = outcome.MatchScore

	// Self-promotion is keyed off the running maximum, not any single
	// comparison, so multiple candidates are handled consistently.
	promote := len(outcome.MatchesFound) > 0 && newItem.MatchScore >= matching.ConfirmedMatchThreshold

	if err := s.saveNewItem(ctx, newItem, promote); err != nil {
		// Counterpart links already written stand; their owners were
		// already notified. The submission itself is reported failed.
		return outcome, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save reported item")
	}

	if promote {
		newItem.Status = models.StatusMatched
		s.dispatch(models.Notification{
			UserID:   newItem.UserID,
			Type:     models.NotificationMatch,
			Title:    "Match Found Immediately!",
			Message:  fmt.Sprintf("We found %d potential match(es) for your item", len(outcome.MatchesFound)),
			Priority: models.PriorityHigh,
			Data: models.JSONMap{
				"matches":     outcome.MatchesFound,
				"match_score": newItem.MatchScore,
			},
		})
	}

	return outcome, nil
}

// recordCounterpart applies one side of the pairing with optimistic
// retry: on a version conflict the candidate is re-read and the link
// appended to its latest state, so concurrent recordings against the
// same counterpart all land.
func (s *MatchService) recordCounterpart(ctx context.Context, candidate *models.Item, newItemID string, score int, reason string) error {
	current := candidate
	for attempt := 0; ; attempt++ {
		links := current.MatchedItems
		if !links.Contains(newItemID) {
			links = append(append(models.MatchLinkList{}, links...), models.MatchLink{
				ItemID:      newItemID,
				Score:       score,
				MatchReason: reason,
				MatchedAt:   time.Now().UTC(),
			})
		}
		promote := score >= matching.ConfirmedMatchThreshold

		err := s.items.RecordMatch(ctx, current.ID, current.Version, links, score, promote)
		if err == nil {
			return nil
		}
		if !errors.Is(err, appErrors.ErrVersionConflict) || attempt >= s.maxRetries {
			return err
		}
		if s.metrics != nil {
			s.metrics.RecordMatchConflictRetry()
		}

		fresh, findErr := s.items.FindByID(ctx, current.ID)
		if findErr != nil {
			return findErr
		}
		current = fresh
	}
}

// saveNewItem persists the reporter side. The new item can itself have
// gained links from concurrent recordings between its insert and this
// save, so its links are merged rather than overwritten.
func (s *MatchService) saveNewItem(ctx context.Context, newItem *models.Item, promote bool) error {
	version := newItem.Version
	links := newItem.MatchedItems
	score := newItem.MatchScore

	for attempt := 0; ; attempt++ {
		err := s.items.RecordMatch(ctx, newItem.ID, version, links, score, promote)
		if err == nil {
			newItem.MatchedItems = links
			if score > newItem.MatchScore {
				newItem.MatchScore = score
			}
			newItem.Version = version + 1
			return nil
		}
		if !errors.Is(err, appErrors.ErrVersionConflict) || attempt >= s.maxRetries {
			return err
		}
		if s.metrics != nil {
			s.metrics.RecordMatchConflictRetry()
		}

		fresh, findErr := s.items.FindByID(ctx, newItem.ID)
		if findErr != nil {
			return findErr
		}
		merged := append(models.MatchLinkList{}, fresh.MatchedItems...)
		for _, link := range newItem.MatchedItems {
			if !merged.Contains(link.ItemID) {
				merged = append(merged, link)
			}
		}
		links = merged
		if fresh.MatchScore > score {
			score = fresh.MatchScore
		}
		version = fresh.Version
	}
}

func (s *MatchService) dispatch(n models.Notification) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Dispatch(n)
}
