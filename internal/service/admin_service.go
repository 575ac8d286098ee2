package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/reunitehq/reunite-api/internal/models"
	"github.com/reunitehq/reunite-api/pkg/config"
	appErrors "github.com/reunitehq/reunite-api/pkg/errors"
	"github.com/reunitehq/reunite-api/pkg/export"
)

type adminItemRepository interface {
	List(ctx context.Context, filter models.ItemFilter) ([]models.Item, int, error)
	DashboardCounts(ctx context.Context) (*models.DashboardStats, error)
}

type adminUserRepository interface {
	CountAll(ctx context.Context) (int, error)
}

type activityLister interface {
	ListRecent(ctx context.Context, limit int) ([]models.Activity, error)
}

const dashboardCacheKey = "admin:dashboard"

// AdminService serves the admin dashboard, the activity feed and the
// tabular report exports.
type AdminService struct {
	items      adminItemRepository
	users      adminUserRepository
	activities activityLister
	cache      *CacheService
	cfg        config.DashboardConfig
	csv        *export.CSVExporter
	pdf        *export.PDFExporter
	logger     *zap.Logger
}

// NewAdminService constructs the admin service.
func NewAdminService(items adminItemRepository, users adminUserRepository, activities activityLister, cache *CacheService, cfg config.DashboardConfig, logger *zap.Logger) *AdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminService{
		items:      items,
		users:      users,
		activities: activities,
		cache:      cache,
		cfg:        cfg,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		logger:     logger,
	}
}

// Dashboard aggregates community-wide counters, cached for the
// configured TTL when the dashboard cache is enabled.
func (s *AdminService) Dashboard(ctx context.Context) (*models.DashboardStats, error) {
	if s.cfg.Enabled {
		var cached models.DashboardStats
		if hit, _ := s.cache.Get(ctx, dashboardCacheKey, &cached); hit {
			return &cached, nil
		}
	}

	stats, err := s.items.DashboardCounts(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate dashboard counts")
	}
	totalUsers, err := s.users.CountAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count users")
	}
	stats.TotalUsers = totalUsers

	if s.cfg.Enabled {
		_ = s.cache.Set(ctx, dashboardCacheKey, stats, s.cfg.CacheTTL)
	}
	return stats, nil
}

// ActivityFeed returns the newest audit entries.
func (s *AdminService) ActivityFeed(ctx context.Context, limit int) ([]models.Activity, error) {
	activities, err := s.activities.ListRecent(ctx, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list activities")
	}
	return activities, nil
}

// ExportFormat selects the rendering backend for item exports.
type ExportFormat string

const (
	FormatCSV ExportFormat = "csv"
	FormatPDF ExportFormat = "pdf"
)

// ExportResult carries rendered bytes plus response metadata.
type ExportResult struct {
	Content     []byte
	ContentType string
	Filename    string
}

// ExportItems renders the item reports matching the filter as CSV or PDF.
func (s *AdminService) ExportItems(ctx context.Context, filter models.ItemFilter, format ExportFormat) (*ExportResult, error) {
	if filter.PageSize <= 0 {
		filter.PageSize = 100
	}
	items, _, err := s.items.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load items for export")
	}
	dataset := itemsDataset(items)

	stamp := time.Now().UTC().Format("20060102-150405")
	switch format {
	case FormatCSV:
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
		}
		return &ExportResult{
			Content:     content,
			ContentType: "text/csv",
			Filename:    fmt.Sprintf("items-%s.csv", stamp),
		}, nil
	case FormatPDF:
		content, err := s.pdf.Render(dataset, "Item Reports")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf export")
		}
		return &ExportResult{
			Content:     content,
			ContentType: "application/pdf",
			Filename:    fmt.Sprintf("items-%s.pdf", stamp),
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

func itemsDataset(items []models.Item) export.Dataset {
	headers := []string{"ID", "Title", "Category", "Type", "Location", "Date", "Status", "Score", "Matches", "Reported"}
	rows := make([]map[string]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, map[string]string{
			"ID":       item.ID,
			"Title":    item.Title,
			"Category": string(item.Category),
			"Type":     item.ItemType,
			"Location": item.Location,
			"Date":     item.Date.Format("2006-01-02"),
			"Status":   string(item.Status),
			"Score":    strconv.Itoa(item.MatchScore),
			"Matches":  strconv.Itoa(len(item.MatchedItems)),
			"Reported": item.CreatedAt.Format(time.RFC3339),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
