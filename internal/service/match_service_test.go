package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reunitehq/reunite-api/internal/models"
	appErrors "github.com/reunitehq/reunite-api/pkg/errors"
)

type recordedMatch struct {
	ID              string
	ExpectedVersion int
	Links           models.MatchLinkList
	Score           int
	Promote         bool
}

type fakeMatchRepo struct {
	mu            sync.Mutex
	candidates    []models.Item
	candidatesErr error

	items     map[string]*models.Item
	recorded  []recordedMatch
	failWith  map[string]error
	conflicts map[string]int
}

func newFakeMatchRepo(candidates ...models.Item) *fakeMatchRepo {
	repo := &fakeMatchRepo{
		candidates: candidates,
		items:      map[string]*models.Item{},
		failWith:   map[string]error{},
		conflicts:  map[string]int{},
	}
	for i := range candidates {
		c := candidates[i]
		repo.items[c.ID] = &c
	}
	return repo
}

func (f *fakeMatchRepo) track(item *models.Item) {
	copied := *item
	f.items[item.ID] = &copied
}

func (f *fakeMatchRepo) FindByID(_ context.Context, id string) (*models.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil, errors.New("item not found")
	}
	copied := *item
	return &copied, nil
}

func (f *fakeMatchRepo) FindCandidates(context.Context, *models.Item) ([]models.Item, error) {
	if f.candidatesErr != nil {
		return nil, f.candidatesErr
	}
	return f.candidates, nil
}

func (f *fakeMatchRepo) RecordMatch(_ context.Context, id string, expectedVersion int, matched models.MatchLinkList, score int, promote bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failWith[id]; err != nil {
		return err
	}
	if f.conflicts[id] > 0 {
		f.conflicts[id]--
		return appErrors.ErrVersionConflict
	}
	item, ok := f.items[id]
	if !ok {
		return errors.New("item not found")
	}
	if item.Version != expectedVersion {
		return appErrors.ErrVersionConflict
	}
	f.recorded = append(f.recorded, recordedMatch{
		ID:              id,
		ExpectedVersion: expectedVersion,
		Links:           matched,
		Score:           score,
		Promote:         promote,
	})
	item.MatchedItems = matched
	if score > item.MatchScore {
		item.MatchScore = score
	}
	if promote && item.Status == models.StatusPending {
		item.Status = models.StatusMatched
	}
	item.Version++
	return nil
}

func (f *fakeMatchRepo) recordsFor(id string) []recordedMatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedMatch
	for _, rec := range f.recorded {
		if rec.ID == id {
			out = append(out, rec)
		}
	}
	return out
}

type fakeDispatcher struct {
	mu            sync.Mutex
	notifications []models.Notification
}

func (f *fakeDispatcher) Dispatch(n models.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, n)
}

func (f *fakeDispatcher) forUser(userID string) []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Notification
	for _, n := range f.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

func lostReport(id, owner string, date time.Time) models.Item {
	return models.Item{
		ID:       id,
		Title:    "Black leather wallet",
		Category: models.CategoryLost,
		ItemType: "Wallet",
		Location: "Central Library",
		Date:     date,
		Status:   models.StatusPending,
		UserID:   owner,
		Version:  1,
	}
}

func foundReport(id, owner string, date time.Time) models.Item {
	item := lostReport(id, owner, date)
	item.Category = models.CategoryFound
	return item
}

func TestMatchServiceRecordConfirmedPair(t *testing.T) {
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	counterpart := foundReport("found-1", "finder", date)
	counterpart.Color = "black"
	counterpart.Brand = "Fossil"

	repo := newFakeMatchRepo(counterpart)
	dispatcher := &fakeDispatcher{}
	svc := NewMatchService(repo, dispatcher, nil, zap.NewNop(), 3)

	newItem := lostReport("lost-1", "owner", date)
	newItem.Color = "Black"
	newItem.Brand = "fossil"
	repo.track(&newItem)

	outcome, err := svc.Record(context.Background(), &newItem)
	require.NoError(t, err)

	// 30 category + 20 type + 15 location + 10 date + 10 color + 10 brand, clamped later.
	require.Len(t, outcome.MatchesFound, 1)
	assert.Equal(t, 95, outcome.MatchScore)
	assert.Equal(t, 95, newItem.MatchScore)
	assert.Equal(t, models.StatusMatched, newItem.Status)

	require.True(t, newItem.MatchedItems.Contains("found-1"))

	counterpartRecords := repo.recordsFor("found-1")
	require.Len(t, counterpartRecords, 1)
	assert.True(t, counterpartRecords[0].Promote)
	require.True(t, counterpartRecords[0].Links.Contains("lost-1"))
	assert.Equal(t, 95, counterpartRecords[0].Links[0].Score)

	finderNotes := dispatcher.forUser("finder")
	require.Len(t, finderNotes, 1)
	assert.Equal(t, models.NotificationMatch, finderNotes[0].Type)
	assert.Equal(t, models.PriorityHigh, finderNotes[0].Priority)

	ownerNotes := dispatcher.forUser("owner")
	require.Len(t, ownerNotes, 1)
	assert.Equal(t, models.PriorityHigh, ownerNotes[0].Priority)
}

func TestMatchServiceRecordPossibleMatchOnly(t *testing.T) {
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	// 30 + 20 + 15 + 7 (three days apart) = 72: possible, not confirmed.
	counterpart := foundReport("found-1", "finder", date.AddDate(0, 0, 3))
	repo := newFakeMatchRepo(counterpart)
	dispatcher := &fakeDispatcher{}
	svc := NewMatchService(repo, dispatcher, nil, zap.NewNop(), 3)

	newItem := lostReport("lost-1", "owner", date)
	repo.track(&newItem)

	outcome, err := svc.Record(context.Background(), &newItem)
	require.NoError(t, err)

	assert.Equal(t, 72, outcome.MatchScore)
	assert.Equal(t, models.StatusPending, newItem.Status)
	require.True(t, newItem.MatchedItems.Contains("found-1"))

	counterpartRecords := repo.recordsFor("found-1")
	require.Len(t, counterpartRecords, 1)
	assert.False(t, counterpartRecords[0].Promote)

	finderNotes := dispatcher.forUser("finder")
	require.Len(t, finderNotes, 1)
	assert.Equal(t, models.PriorityMedium, finderNotes[0].Priority)

	// No summary for the reporter below the confirmed threshold.
	assert.Empty(t, dispatcher.forUser("owner"))
}

func TestMatchServiceRecordBelowThresholdIgnored(t *testing.T) {
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	// 30 + 20 only: different location, dates a month apart.
	counterpart := foundReport("found-1", "finder", date.AddDate(0, 1, 0))
	counterpart.Location = "Bus Station"
	repo := newFakeMatchRepo(counterpart)
	dispatcher := &fakeDispatcher{}
	svc := NewMatchService(repo, dispatcher, nil, zap.NewNop(), 3)

	newItem := lostReport("lost-1", "owner", date)
	repo.track(&newItem)

	outcome, err := svc.Record(context.Background(), &newItem)
	require.NoError(t, err)

	assert.Empty(t, outcome.MatchesFound)
	assert.Zero(t, outcome.MatchScore)
	assert.Empty(t, newItem.MatchedItems)
	assert.Equal(t, models.StatusPending, newItem.Status)
	assert.Empty(t, repo.recordsFor("found-1"))
	assert.Empty(t, dispatcher.notifications)
}

func TestMatchServiceRecordMultipleCandidates(t *testing.T) {
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	// 30 + 20 + 15 = 65: same location, dates too far apart.
	weak := foundReport("found-weak", "finder-1", date.AddDate(0, 0, 20))
	// 30 + 20 + 15 + 7 = 72.
	medium := foundReport("found-medium", "finder-2", date.AddDate(0, 0, 3))
	// 30 + 20 + 15 + 10 + 10 = 85.
	strong := foundReport("found-strong", "finder-3", date)
	strong.Color = "black"

	repo := newFakeMatchRepo(weak, medium, strong)
	dispatcher := &fakeDispatcher{}
	svc := NewMatchService(repo, dispatcher, nil, zap.NewNop(), 3)

	newItem := lostReport("lost-1", "owner", date)
	newItem.Color = "black"
	repo.track(&newItem)

	outcome, err := svc.Record(context.Background(), &newItem)
	require.NoError(t, err)

	require.Len(t, outcome.MatchesFound, 3)
	assert.Equal(t, 85, outcome.MatchScore)
	assert.Equal(t, models.StatusMatched, newItem.Status)

	assert.True(t, newItem.MatchedItems.Contains("found-weak"))
	assert.True(t, newItem.MatchedItems.Contains("found-medium"))
	assert.True(t, newItem.MatchedItems.Contains("found-strong"))

	// Only the confirmed counterpart is promoted.
	assert.False(t, repo.recordsFor("found-weak")[0].Promote)
	assert.False(t, repo.recordsFor("found-medium")[0].Promote)
	assert.True(t, repo.recordsFor("found-strong")[0].Promote)

	assert.Equal(t, models.PriorityMedium, dispatcher.forUser("finder-1")[0].Priority)
	assert.Equal(t, models.PriorityMedium, dispatcher.forUser("finder-2")[0].Priority)
	assert.Equal(t, models.PriorityHigh, dispatcher.forUser("finder-3")[0].Priority)
	require.Len(t, dispatcher.forUser("owner"), 1)
}

func TestMatchServiceRecordSkipsFailedCounterpart(t *testing.T) {
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	broken := foundReport("found-broken", "finder-1", date)
	healthy := foundReport("found-healthy", "finder-2", date)

	repo := newFakeMatchRepo(broken, healthy)
	repo.failWith["found-broken"] = errors.New("disk on fire")
	dispatcher := &fakeDispatcher{}
	svc := NewMatchService(repo, dispatcher, nil, zap.NewNop(), 3)

	newItem := lostReport("lost-1", "owner", date)
	repo.track(&newItem)

	outcome, err := svc.Record(context.Background(), &newItem)
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Skipped)
	require.Len(t, outcome.MatchesFound, 1)
	assert.Equal(t, "found-healthy", outcome.MatchesFound[0].ItemID)

	assert.False(t, newItem.MatchedItems.Contains("found-broken"))
	assert.True(t, newItem.MatchedItems.Contains("found-healthy"))
	assert.Empty(t, dispatcher.forUser("finder-1"))
	require.Len(t, dispatcher.forUser("finder-2"), 1)
}

func TestMatchServiceRecordRetriesVersionConflict(t *testing.T) {
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	counterpart := foundReport("found-1", "finder", date)
	repo := newFakeMatchRepo(counterpart)
	repo.conflicts["found-1"] = 2
	dispatcher := &fakeDispatcher{}
	svc := NewMatchService(repo, dispatcher, nil, zap.NewNop(), 3)

	newItem := lostReport("lost-1", "owner", date)
	repo.track(&newItem)

	outcome, err := svc.Record(context.Background(), &newItem)
	require.NoError(t, err)

	assert.Zero(t, outcome.Skipped)
	require.Len(t, outcome.MatchesFound, 1)
	require.Len(t, repo.recordsFor("found-1"), 1)
}

func TestMatchServiceRecordGivesUpAfterRetryBudget(t *testing.T) {
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	counterpart := foundReport("found-1", "finder", date)
	repo := newFakeMatchRepo(counterpart)
	repo.conflicts["found-1"] = 10
	dispatcher := &fakeDispatcher{}
	svc := NewMatchService(repo, dispatcher, nil, zap.NewNop(), 2)

	newItem := lostReport("lost-1", "owner", date)
	repo.track(&newItem)

	outcome, err := svc.Record(context.Background(), &newItem)
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Skipped)
	assert.Empty(t, outcome.MatchesFound)
	assert.Empty(t, dispatcher.forUser("finder"))
}

func TestMatchServiceRecordCandidateLookupFails(t *testing.T) {
	repo := newFakeMatchRepo()
	repo.candidatesErr = errors.New("connection refused")
	dispatcher := &fakeDispatcher{}
	svc := NewMatchService(repo, dispatcher, nil, zap.NewNop(), 3)

	newItem := lostReport("lost-1", "owner", time.Now())
	repo.track(&newItem)

	outcome, err := svc.Record(context.Background(), &newItem)
	require.Error(t, err)
	assert.Nil(t, outcome)
	assert.Empty(t, repo.recorded)
	assert.Empty(t, dispatcher.notifications)
}

func TestMatchServiceRecordMergesConcurrentLinksOnSave(t *testing.T) {
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	counterpart := foundReport("found-1", "finder", date)
	repo := newFakeMatchRepo(counterpart)
	dispatcher := &fakeDispatcher{}
	svc := NewMatchService(repo, dispatcher, nil, zap.NewNop(), 3)

	newItem := lostReport("lost-1", "owner", date)
	repo.track(&newItem)

	// Simulate a concurrent recorder that already linked another report
	// to the new item and bumped its version.
	stored := repo.items["lost-1"]
	stored.MatchedItems = models.MatchLinkList{{ItemID: "found-other", Score: 90, MatchedAt: date}}
	stored.MatchScore = 90
	stored.Version = 2

	outcome, err := svc.Record(context.Background(), &newItem)
	require.NoError(t, err)
	require.Len(t, outcome.MatchesFound, 1)

	saved := repo.recordsFor("lost-1")
	require.NotEmpty(t, saved)
	final := saved[len(saved)-1]
	assert.True(t, final.Links.Contains("found-1"))
	assert.True(t, final.Links.Contains("found-other"), "concurrent link must survive the merge")
	assert.GreaterOrEqual(t, final.Score, 75)
}
