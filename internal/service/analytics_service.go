package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/fpp-api/internal/models"
	appErrors "github.com/noah-isme/fpp-api/pkg/errors"
	"github.com/noah-isme/fpp-api/pkg/export"
	"github.com/noah-isme/fpp-api/pkg/storage"
)

type analyticsStore interface {
	Summary(ctx context.Context, village string) (*models.VillageSummary, error)
	ListApprovedOrLater(ctx context.Context, village string) ([]models.Request, error)
}

// ExportFormat selects the report rendering.
type ExportFormat string

const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
)

// ExportResult is a rendered village report.
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

// AnalyticsService derives per-village projections over the request store and
// renders delimited/tabular reports of approved-or-later requests.
type AnalyticsService struct {
	repo       analyticsStore
	cache      *CacheService
	csv        *export.CSVExporter
	pdf        *export.PDFExporter
	archive    *storage.LocalStorage
	logger     *zap.Logger
	targetBags int
	cacheTTL   time.Duration
}

// NewAnalyticsService constructs the service. archive may be nil, in which
// case exported reports are not kept on disk.
func NewAnalyticsService(repo analyticsStore, cache *CacheService, archive *storage.LocalStorage, logger *zap.Logger, targetBags int, cacheTTL time.Duration) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if targetBags <= 0 {
		targetBags = 5000
	}
	return &AnalyticsService{
		repo:       repo,
		cache:      cache,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		archive:    archive,
		logger:     logger,
		targetBags: targetBags,
		cacheTTL:   cacheTTL,
	}
}

// Summary returns dashboard counters for the acting VAO's village. The second
// return value reports whether the payload came from cache.
func (s *AnalyticsService) Summary(ctx context.Context, actor *models.JWTClaims) (*models.VillageSummary, bool, error) {
	if actor == nil || actor.Role != models.RoleVAO {
		return nil, false, appErrors.ErrForbidden
	}

	key := summaryCacheKey(actor.Village)
	var cached models.VillageSummary
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, true, nil
	}

	summary, err := s.repo.Summary(ctx, actor.Village)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate analytics")
	}
	summary.Target = s.targetBags

	if err := s.cache.Set(ctx, key, summary, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache analytics summary", zap.String("village", actor.Village), zap.Error(err))
	}
	return summary, false, nil
}

// Export renders the approved-or-later report for the acting VAO's village.
// A copy is archived for the retention job; archive failures do not fail the
// export.
func (s *AnalyticsService) Export(ctx context.Context, actor *models.JWTClaims, format ExportFormat) (*ExportResult, error) {
	if actor == nil || actor.Role != models.RoleVAO {
		return nil, appErrors.ErrForbidden
	}
	if format == "" {
		format = ExportCSV
	}

	requests, err := s.repo.ListApprovedOrLater(ctx, actor.Village)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report data")
	}

	dataset := export.Dataset{
		Headers: []string{"Serial Number", "Farmer Name", "Mobile", "Aadhaar", "Status", "Paddy Bags", "Date"},
	}
	for _, r := range requests {
		serial := "N/A"
		if r.SerialNumber != nil {
			serial = *r.SerialNumber
		}
		bags := 0
		if r.PaddyBags != nil {
			bags = *r.PaddyBags
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Serial Number": serial,
			"Farmer Name":   r.FarmerName,
			"Mobile":        r.FarmerMobile,
			"Aadhaar":       r.Aadhaar,
			"Status":        string(r.Status),
			"Paddy Bags":    strconv.Itoa(bags),
			"Date":          r.CreatedAt.Format(time.RFC3339),
		})
	}

	var (
		data        []byte
		contentType string
		ext         string
	)
	switch format {
	case ExportCSV:
		data, err = s.csv.Render(dataset)
		contentType = "text/csv"
		ext = "csv"
	case ExportPDF:
		data, err = s.pdf.Render(dataset, fmt.Sprintf("Procurement Report - %s", actor.Village))
		contentType = "application/pdf"
		ext = "pdf"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}

	filename := fmt.Sprintf("report-%s-%d.%s", actor.Village, time.Now().UnixMilli(), ext)
	if s.archive != nil {
		if _, err := s.archive.Save(filename, data); err != nil {
			s.logger.Warn("failed to archive report", zap.String("filename", filename), zap.Error(err))
		}
	}

	return &ExportResult{Filename: filename, ContentType: contentType, Data: data}, nil
}

func summaryCacheKey(village string) string {
	return fmt.Sprintf("analytics:village:%s:summary", village)
}

// analyticsCacheKey is the invalidation pattern covering every cached payload
// of one village.
func analyticsCacheKey(village string) string {
	return fmt.Sprintf("analytics:village:%s:*", village)
}
