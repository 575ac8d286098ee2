package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reunitehq/reunite-api/internal/models"
	appErrors "github.com/reunitehq/reunite-api/pkg/errors"
)

type fakeItemRepo struct {
	items       map[string]*models.Item
	created     []*models.Item
	claimErr    error
	statsCalled int
	stats       *models.UserItemStats
}

func newFakeItemRepo(items ...*models.Item) *fakeItemRepo {
	repo := &fakeItemRepo{items: map[string]*models.Item{}}
	for _, item := range items {
		repo.items[item.ID] = item
	}
	return repo
}

func (f *fakeItemRepo) Create(_ context.Context, item *models.Item) error {
	if item.ID == "" {
		item.ID = "item-" + item.Title
	}
	item.Version = 1
	f.items[item.ID] = item
	f.created = append(f.created, item)
	return nil
}

func (f *fakeItemRepo) FindByID(_ context.Context, id string) (*models.Item, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return item, nil
}

func (f *fakeItemRepo) List(_ context.Context, filter models.ItemFilter) ([]models.Item, int, error) {
	var out []models.Item
	for _, item := range f.items {
		if filter.UserID != "" && item.UserID != filter.UserID {
			continue
		}
		out = append(out, *item)
	}
	return out, len(out), nil
}

func (f *fakeItemRepo) Claim(_ context.Context, id, claimantID string, at time.Time) error {
	if f.claimErr != nil {
		return f.claimErr
	}
	item, ok := f.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	item.ClaimedBy = &claimantID
	item.ClaimedAt = &at
	item.Status = models.StatusClaimed
	return nil
}

func (f *fakeItemRepo) MarkReturned(_ context.Context, id, handoverLocation string, at time.Time) error {
	item, ok := f.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	item.Status = models.StatusReturned
	item.HandoverPlace = &handoverLocation
	item.HandoverDate = &at
	return nil
}

func (f *fakeItemRepo) UserStats(context.Context, string) (*models.UserItemStats, error) {
	f.statsCalled++
	if f.stats != nil {
		return f.stats, nil
	}
	return &models.UserItemStats{}, nil
}

type fakeTrustRepo struct {
	users  map[string]*models.User
	awards map[string]int
}

func newFakeTrustRepo(ids ...string) *fakeTrustRepo {
	repo := &fakeTrustRepo{users: map[string]*models.User{}, awards: map[string]int{}}
	for _, id := range ids {
		repo.users[id] = &models.User{ID: id, Active: true, TrustScore: 50}
	}
	return repo
}

func (f *fakeTrustRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeTrustRepo) AddTrustScore(_ context.Context, id string, delta int) error {
	f.awards[id] += delta
	return nil
}

type fakeActivityLog struct {
	activities []*models.Activity
}

func (f *fakeActivityLog) Create(_ context.Context, activity *models.Activity) error {
	f.activities = append(f.activities, activity)
	return nil
}

type fakeMatcher struct {
	outcome *models.MatchOutcome
	err     error
	seen    []*models.Item
}

func (f *fakeMatcher) Record(_ context.Context, item *models.Item) (*models.MatchOutcome, error) {
	f.seen = append(f.seen, item)
	if f.err != nil {
		return nil, f.err
	}
	if f.outcome != nil {
		return f.outcome, nil
	}
	return &models.MatchOutcome{MatchesFound: []models.MatchCandidate{}}, nil
}

func newTestItemService(items *fakeItemRepo, users *fakeTrustRepo, matcher *fakeMatcher, dispatcher *fakeDispatcher, log *fakeActivityLog) *ItemService {
	cacheSvc := NewCacheService(&stubCacheRepo{}, nil, time.Minute, zap.NewNop(), true)
	return NewItemService(items, users, log, matcher, dispatcher, cacheSvc, nil, zap.NewNop())
}

func validReport() ReportItemRequest {
	return ReportItemRequest{
		Title:       "Black Leather Wallet",
		Description: "Lost my wallet with the cards inside",
		Category:    "lost",
		ItemType:    "Wallet",
		Location:    "Central Library",
		Date:        time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		ContactInfo: "owner@example.com",
	}
}

func TestItemServiceReport(t *testing.T) {
	items := newFakeItemRepo()
	users := newFakeTrustRepo("owner")
	matcher := &fakeMatcher{outcome: &models.MatchOutcome{
		MatchesFound: []models.MatchCandidate{{ItemID: "found-1", Score: 85}},
		MatchScore:   85,
	}}
	log := &fakeActivityLog{}
	svc := newTestItemService(items, users, matcher, &fakeDispatcher{}, log)

	item, outcome, err := svc.Report(context.Background(), "owner", validReport())
	require.NoError(t, err)

	assert.Equal(t, models.CategoryLost, item.Category)
	assert.Equal(t, "owner", item.UserID)
	assert.Contains(t, item.Keywords, "black")
	assert.Contains(t, item.Keywords, "wallet")
	assert.NotContains(t, item.Keywords, "my")

	require.Len(t, items.created, 1)
	require.Len(t, matcher.seen, 1)
	assert.Same(t, item, matcher.seen[0])
	assert.Equal(t, 85, outcome.MatchScore)

	require.Len(t, log.activities, 1)
	assert.Equal(t, "item_reported", log.activities[0].Action)
}

func TestItemServiceReportValidation(t *testing.T) {
	svc := newTestItemService(newFakeItemRepo(), newFakeTrustRepo("owner"), &fakeMatcher{}, &fakeDispatcher{}, &fakeActivityLog{})

	req := validReport()
	req.Category = "stolen"
	_, _, err := svc.Report(context.Background(), "owner", req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestItemServiceReportUnknownUser(t *testing.T) {
	svc := newTestItemService(newFakeItemRepo(), newFakeTrustRepo(), &fakeMatcher{}, &fakeDispatcher{}, &fakeActivityLog{})

	_, _, err := svc.Report(context.Background(), "ghost", validReport())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestItemServiceReportMatcherFailureSurfaces(t *testing.T) {
	items := newFakeItemRepo()
	matcher := &fakeMatcher{err: errors.New("candidate lookup failed")}
	svc := newTestItemService(items, newFakeTrustRepo("owner"), matcher, &fakeDispatcher{}, &fakeActivityLog{})

	_, _, err := svc.Report(context.Background(), "owner", validReport())
	require.Error(t, err)
}

func TestItemServiceClaim(t *testing.T) {
	found := &models.Item{ID: "found-1", Title: "Umbrella", Category: models.CategoryFound, Status: models.StatusPending, UserID: "finder"}
	items := newFakeItemRepo(found)
	dispatcher := &fakeDispatcher{}
	svc := newTestItemService(items, newFakeTrustRepo("finder", "claimant"), &fakeMatcher{}, dispatcher, &fakeActivityLog{})

	item, err := svc.Claim(context.Background(), "found-1", "claimant")
	require.NoError(t, err)
	assert.Equal(t, models.StatusClaimed, item.Status)
	require.NotNil(t, item.ClaimedBy)
	assert.Equal(t, "claimant", *item.ClaimedBy)

	finderNotes := dispatcher.forUser("finder")
	require.Len(t, finderNotes, 1)
	assert.Equal(t, models.NotificationClaim, finderNotes[0].Type)
	assert.Equal(t, models.PriorityHigh, finderNotes[0].Priority)
}

func TestItemServiceClaimRejectsLostItem(t *testing.T) {
	lost := &models.Item{ID: "lost-1", Category: models.CategoryLost, Status: models.StatusPending, UserID: "owner"}
	svc := newTestItemService(newFakeItemRepo(lost), newFakeTrustRepo(), &fakeMatcher{}, &fakeDispatcher{}, &fakeActivityLog{})

	_, err := svc.Claim(context.Background(), "lost-1", "claimant")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotClaimable.Code, appErrors.FromError(err).Code)
}

func TestItemServiceClaimRejectsOwnReport(t *testing.T) {
	found := &models.Item{ID: "found-1", Category: models.CategoryFound, Status: models.StatusPending, UserID: "finder"}
	svc := newTestItemService(newFakeItemRepo(found), newFakeTrustRepo(), &fakeMatcher{}, &fakeDispatcher{}, &fakeActivityLog{})

	_, err := svc.Claim(context.Background(), "found-1", "finder")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotClaimable.Code, appErrors.FromError(err).Code)
}

func TestItemServiceReturnRewardsBothParties(t *testing.T) {
	claimant := "claimant"
	found := &models.Item{
		ID:        "found-1",
		Title:     "Umbrella",
		Category:  models.CategoryFound,
		Status:    models.StatusClaimed,
		UserID:    "finder",
		ClaimedBy: &claimant,
	}
	items := newFakeItemRepo(found)
	users := newFakeTrustRepo("finder", "claimant")
	dispatcher := &fakeDispatcher{}
	svc := newTestItemService(items, users, &fakeMatcher{}, dispatcher, &fakeActivityLog{})

	item, err := svc.Return(context.Background(), "found-1", "finder", ReturnItemRequest{HandoverLocation: "Main Entrance"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusReturned, item.Status)
	require.NotNil(t, item.HandoverPlace)
	assert.Equal(t, "Main Entrance", *item.HandoverPlace)

	assert.Equal(t, 10, users.awards["finder"])
	assert.Equal(t, 10, users.awards["claimant"])

	claimantNotes := dispatcher.forUser("claimant")
	require.Len(t, claimantNotes, 1)
	assert.Equal(t, models.NotificationStatus, claimantNotes[0].Type)
	assert.Equal(t, models.PriorityMedium, claimantNotes[0].Priority)
}

func TestItemServiceReturnForbiddenForStranger(t *testing.T) {
	found := &models.Item{ID: "found-1", Category: models.CategoryFound, Status: models.StatusClaimed, UserID: "finder"}
	svc := newTestItemService(newFakeItemRepo(found), newFakeTrustRepo(), &fakeMatcher{}, &fakeDispatcher{}, &fakeActivityLog{})

	_, err := svc.Return(context.Background(), "found-1", "stranger", ReturnItemRequest{HandoverLocation: "Anywhere"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestItemServiceStatsCached(t *testing.T) {
	items := newFakeItemRepo()
	items.stats = &models.UserItemStats{TotalItems: 4, LostItems: 2, ReturnedItems: 1, RecoveryRate: 50}
	svc := newTestItemService(items, newFakeTrustRepo("owner"), &fakeMatcher{}, &fakeDispatcher{}, &fakeActivityLog{})
	ctx := context.Background()

	first, err := svc.Stats(ctx, "owner")
	require.NoError(t, err)
	assert.Equal(t, 4, first.TotalItems)

	second, err := svc.Stats(ctx, "owner")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, items.statsCalled)
}
