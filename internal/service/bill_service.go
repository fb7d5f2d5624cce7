package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/fpp-api/internal/models"
	appErrors "github.com/noah-isme/fpp-api/pkg/errors"
	"github.com/noah-isme/fpp-api/pkg/export"
)

type billRequestStore interface {
	GetByID(ctx context.Context, id string) (*models.Request, error)
}

type billUserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// BillService renders the procurement bill PDF for completed requests.
type BillService struct {
	requests billRequestStore
	users    billUserStore
	renderer *export.BillPDFExporter
	logger   *zap.Logger
}

func NewBillService(requests billRequestStore, users billUserStore, logger *zap.Logger) *BillService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BillService{
		requests: requests,
		users:    users,
		renderer: export.NewBillPDFExporter(),
		logger:   logger,
	}
}

// RenderBill produces the bill PDF. It exists only after GenerateBill has
// completed the request; anything earlier is a 404. Accessible to the owning
// farmer and same-village VAOs.
func (s *BillService) RenderBill(ctx context.Context, actor *models.JWTClaims, requestID string) ([]byte, string, error) {
	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if err := requireOwnerOrVillageVAO(actor, request); err != nil {
		return nil, "", err
	}
	if !request.BillGenerated || request.Status != models.StatusCompleted {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "bill has not been generated for this request")
	}

	farmer, err := s.users.FindByID(ctx, request.FarmerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "farmer account not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load farmer")
	}

	serial := ""
	if request.SerialNumber != nil {
		serial = *request.SerialNumber
	}
	bags := 0
	if request.PaddyBags != nil {
		bags = *request.PaddyBags
	}

	data := export.BillData{
		SerialNumber: serial,
		FarmerName:   farmer.Name,
		FarmerMobile: farmer.Mobile,
		Village:      request.Village,
		Aadhaar:      request.Aadhaar,
		PaddyBags:    bags,
		IssuedAt:     request.UpdatedAt,
	}
	if data.IssuedAt.IsZero() {
		data.IssuedAt = time.Now().UTC()
	}

	pdf, err := s.renderer.Render(data)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render bill")
	}

	filename := fmt.Sprintf("bill-%s.pdf", request.ID)
	if serial != "" {
		filename = fmt.Sprintf("bill-%s.pdf", serial)
	}
	return pdf, filename, nil
}
