package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/fpp-api/internal/dto"
	"github.com/noah-isme/fpp-api/internal/models"
	appErrors "github.com/noah-isme/fpp-api/pkg/errors"
	"github.com/noah-isme/fpp-api/pkg/storage"
)

type requestStore interface {
	Create(ctx context.Context, request *models.Request) error
	GetByID(ctx context.Context, id string) (*models.Request, error)
	ListByFarmer(ctx context.Context, farmerID string) ([]models.Request, error)
	ListByVillage(ctx context.Context, village string) ([]models.Request, error)
	ListSerials(ctx context.Context, village string) ([]models.SerialEntry, error)
	CountByFarmerBetween(ctx context.Context, farmerID string, start, end time.Time) (int, error)
	Approve(ctx context.Context, id, village string, year int, notify func(serial string) *models.Notification) (string, error)
	Reject(ctx context.Context, id, reason string, notification *models.Notification) error
	SaveFinalDocs(ctx context.Context, id string, docs models.FinalDocs) error
	CompleteBill(ctx context.Context, id string, paddyBags int, notification *models.Notification) error
}

// transitionAction identifies a lifecycle transition for capability lookup.
type transitionAction string

const (
	actionApprove         transitionAction = "approve"
	actionReject          transitionAction = "reject"
	actionUploadFinalDocs transitionAction = "upload_final_docs"
	actionGenerateBill    transitionAction = "generate_bill"
)

// capability declares who may perform a transition: the required role plus
// the ownership relation to the request.
type capability struct {
	role        models.UserRole
	ownerOnly   bool
	sameVillage bool
}

// transitionPolicy is the single place role and ownership rules live; every
// transition consults it before touching the request.
var transitionPolicy = map[transitionAction]capability{
	actionApprove:         {role: models.RoleVAO, sameVillage: true},
	actionReject:          {role: models.RoleVAO, sameVillage: true},
	actionUploadFinalDocs: {role: models.RoleFarmer, ownerOnly: true},
	actionGenerateBill:    {role: models.RoleVAO, sameVillage: true},
}

// RequestService drives the procurement request lifecycle: submission with
// the season quota, approval with serial assignment, rejection, final
// document collection and billing.
type RequestService struct {
	repo        requestStore
	signer      *storage.SignedURLSigner
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
	seasonQuota int
	now         func() time.Time
}

// NewRequestService constructs the service.
func NewRequestService(repo requestStore, signer *storage.SignedURLSigner, cache *CacheService, validate *validator.Validate, logger *zap.Logger, seasonQuota int) *RequestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if seasonQuota <= 0 {
		seasonQuota = 5
	}
	return &RequestService{
		repo:        repo,
		signer:      signer,
		cache:       cache,
		validator:   validate,
		logger:      logger,
		seasonQuota: seasonQuota,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Submit creates a new PENDING request for the acting farmer, enforcing the
// per-season quota. The request captures the farmer's current village.
func (s *RequestService) Submit(ctx context.Context, actor *models.JWTClaims, input dto.SubmitRequestInput) (*models.Request, error) {
	if actor == nil || actor.Role != models.RoleFarmer {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only farmers can create requests")
	}
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload")
	}

	now := s.now()
	start, end := SeasonWindow(now)
	count, err := s.repo.CountByFarmerBetween(ctx, actor.UserID, start, end)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check season quota")
	}
	if count >= s.seasonQuota {
		return nil, appErrors.Clone(appErrors.ErrQuotaExceeded,
			fmt.Sprintf("limit reached: you can only create %d requests per season", s.seasonQuota))
	}

	request := &models.Request{
		FarmerID:    actor.UserID,
		Village:     actor.Village,
		Aadhaar:     input.Aadhaar,
		Contact:     input.Contact,
		HarvestDate: input.HarvestDate,
		ProofFile:   input.ProofFile,
		Status:      models.StatusPending,
		CreatedAt:   now,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}

	s.invalidateAnalytics(ctx, request.Village)
	s.logger.Info("request submitted",
		zap.String("request_id", request.ID),
		zap.String("farmer_id", actor.UserID),
		zap.String("village", request.Village))
	return request, nil
}

// ListMine returns the acting farmer's requests, newest first.
func (s *RequestService) ListMine(ctx context.Context, actor *models.JWTClaims) ([]models.Request, error) {
	if actor == nil || actor.Role != models.RoleFarmer {
		return nil, appErrors.ErrForbidden
	}
	requests, err := s.repo.ListByFarmer(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	return requests, nil
}

// ListVillage returns every request in the acting VAO's village.
func (s *RequestService) ListVillage(ctx context.Context, actor *models.JWTClaims) ([]models.Request, error) {
	if actor == nil || actor.Role != models.RoleVAO {
		return nil, appErrors.ErrForbidden
	}
	requests, err := s.repo.ListByVillage(ctx, actor.Village)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list village requests")
	}
	return requests, nil
}

// VillageSerials returns the serial projection for the actor's village. Any
// authenticated village member may read it.
func (s *RequestService) VillageSerials(ctx context.Context, actor *models.JWTClaims) ([]models.SerialEntry, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	entries, err := s.repo.ListSerials(ctx, actor.Village)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list village serials")
	}
	return entries, nil
}

// Approve moves a PENDING request to APPROVED, assigning the next village
// serial and notifying the owner in the same transaction.
func (s *RequestService) Approve(ctx context.Context, actor *models.JWTClaims, id string) (*models.Request, error) {
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actionApprove, actor, request); err != nil {
		return nil, err
	}
	if request.Status != models.StatusPending {
		return nil, invalidTransition(request.Status, models.StatusPending)
	}

	year := s.now().Year()
	serial, err := s.repo.Approve(ctx, request.ID, request.Village, year, func(serial string) *models.Notification {
		return &models.Notification{
			UserID:   request.FarmerID,
			Severity: models.SeveritySuccess,
			Message:  fmt.Sprintf("Your request has been APPROVED! Serial Number assigned: %s. Please proceed to sell your paddy.", serial),
		}
	})
	if err != nil {
		return nil, s.transitionError(ctx, id, err, models.StatusPending)
	}

	request.Status = models.StatusApproved
	request.SerialNumber = &serial
	s.invalidateAnalytics(ctx, request.Village)
	s.logger.Info("request approved",
		zap.String("request_id", request.ID),
		zap.String("serial", serial),
		zap.String("vao_id", actor.UserID))
	return request, nil
}

// Reject moves a PENDING request to REJECTED with a mandatory reason.
func (s *RequestService) Reject(ctx context.Context, actor *models.JWTClaims, id string, input dto.RejectRequestInput) (*models.Request, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "rejection reason is required")
	}
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actionReject, actor, request); err != nil {
		return nil, err
	}
	if request.Status != models.StatusPending {
		return nil, invalidTransition(request.Status, models.StatusPending)
	}

	notification := &models.Notification{
		UserID:   request.FarmerID,
		Severity: models.SeverityError,
		Message:  fmt.Sprintf("Your request has been REJECTED. Reason: %s", input.Reason),
	}
	if err := s.repo.Reject(ctx, request.ID, input.Reason, notification); err != nil {
		return nil, s.transitionError(ctx, id, err, models.StatusPending)
	}

	request.Status = models.StatusRejected
	request.RejectionReason = &input.Reason
	s.invalidateAnalytics(ctx, request.Village)
	s.logger.Info("request rejected",
		zap.String("request_id", request.ID),
		zap.String("vao_id", actor.UserID))
	return request, nil
}

// UploadFinalDocs stores the four-document bundle atomically and moves an
// APPROVED request to FINAL_DOCS_UPLOADED. Only the owning farmer may do it.
func (s *RequestService) UploadFinalDocs(ctx context.Context, actor *models.JWTClaims, id string, input dto.FinalDocsInput) (*models.Request, error) {
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actionUploadFinalDocs, actor, request); err != nil {
		return nil, err
	}
	if request.Status != models.StatusApproved {
		return nil, invalidTransition(request.Status, models.StatusApproved)
	}
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "all four documents are required")
	}

	docs := models.FinalDocs{
		LandDoc:    input.LandDoc,
		AadhaarDoc: input.AadhaarDoc,
		BankDoc:    input.BankDoc,
		TruckSheet: input.TruckSheet,
	}
	if err := s.repo.SaveFinalDocs(ctx, request.ID, docs); err != nil {
		return nil, s.transitionError(ctx, id, err, models.StatusApproved)
	}

	request.Status = models.StatusFinalDocsUploaded
	request.LandDoc = &docs.LandDoc
	request.AadhaarDoc = &docs.AadhaarDoc
	request.BankDoc = &docs.BankDoc
	request.TruckSheet = &docs.TruckSheet
	s.invalidateAnalytics(ctx, request.Village)
	s.logger.Info("final docs uploaded", zap.String("request_id", request.ID))
	return request, nil
}

// GenerateBill records the procurement quantity and completes the request,
// notifying the owner in the same transaction.
func (s *RequestService) GenerateBill(ctx context.Context, actor *models.JWTClaims, id string, input dto.GenerateBillInput) (*models.Request, error) {
	if input.PaddyBags < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "paddy bag count cannot be negative")
	}
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actionGenerateBill, actor, request); err != nil {
		return nil, err
	}
	if request.Status != models.StatusFinalDocsUploaded {
		return nil, invalidTransition(request.Status, models.StatusFinalDocsUploaded)
	}

	notification := &models.Notification{
		UserID:   request.FarmerID,
		Severity: models.SeveritySuccess,
		Message:  fmt.Sprintf("Bill Generated! %d bags sold. Please download your bill.", input.PaddyBags),
	}
	if err := s.repo.CompleteBill(ctx, request.ID, input.PaddyBags, notification); err != nil {
		return nil, s.transitionError(ctx, id, err, models.StatusFinalDocsUploaded)
	}

	bags := input.PaddyBags
	request.Status = models.StatusCompleted
	request.PaddyBags = &bags
	request.BillGenerated = true
	s.invalidateAnalytics(ctx, request.Village)
	s.logger.Info("bill generated",
		zap.String("request_id", request.ID),
		zap.Int("paddy_bags", bags))
	return request, nil
}

// FileLinks returns signed download tokens for every file stored on a
// request. Accessible to the owning farmer and same-village VAOs.
func (s *RequestService) FileLinks(ctx context.Context, actor *models.JWTClaims, id string) ([]dto.SignedFileLink, error) {
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireOwnerOrVillageVAO(actor, request); err != nil {
		return nil, err
	}
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "file signing is not configured")
	}

	files := []struct {
		label string
		path  *string
	}{
		{"proofFile", &request.ProofFile},
		{"landDoc", request.LandDoc},
		{"aadhaarDoc", request.AadhaarDoc},
		{"bankDoc", request.BankDoc},
		{"truckSheet", request.TruckSheet},
	}

	links := make([]dto.SignedFileLink, 0, len(files))
	for _, f := range files {
		if f.path == nil || *f.path == "" {
			continue
		}
		token, expiresAt, err := s.signer.Generate(request.ID, *f.path)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign file link")
		}
		links = append(links, dto.SignedFileLink{
			Label:     f.label,
			Path:      *f.path,
			Token:     token,
			ExpiresAt: expiresAt.Unix(),
		})
	}
	return links, nil
}

// ResolveFileToken validates a signed token and returns the stored path.
func (s *RequestService) ResolveFileToken(token string) (string, error) {
	if s.signer == nil {
		return "", appErrors.Clone(appErrors.ErrInternal, "file signing is not configured")
	}
	_, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired file token")
	}
	return relPath, nil
}

func (s *RequestService) load(ctx context.Context, id string) (*models.Request, error) {
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return request, nil
}

// authorize consults the transition policy table for role, ownership and
// village checks.
func (s *RequestService) authorize(action transitionAction, actor *models.JWTClaims, request *models.Request) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	policy, ok := transitionPolicy[action]
	if !ok {
		return appErrors.ErrForbidden
	}
	if actor.Role != policy.role {
		return appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("only %s accounts may perform this action", policy.role))
	}
	if policy.ownerOnly && actor.UserID != request.FarmerID {
		return appErrors.Clone(appErrors.ErrForbidden, "you do not own this request")
	}
	if policy.sameVillage && actor.Village != request.Village {
		return appErrors.Clone(appErrors.ErrForbidden, "request belongs to another village")
	}
	return nil
}

// transitionError maps a guarded-update miss to InvalidTransition with the
// freshest persisted status; a losing concurrent transition fails instead of
// being queued or merged.
func (s *RequestService) transitionError(ctx context.Context, id string, err error, expected models.RequestStatus) error {
	if errors.Is(err, sql.ErrNoRows) {
		if current, loadErr := s.repo.GetByID(ctx, id); loadErr == nil {
			return invalidTransition(current.Status, expected)
		}
		return appErrors.Clone(appErrors.ErrNotFound, "request not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply transition")
}

func (s *RequestService) invalidateAnalytics(ctx context.Context, village string) {
	if s.cache == nil || !s.cache.Enabled() {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, analyticsCacheKey(village)); err != nil {
		s.logger.Warn("failed to invalidate analytics cache", zap.String("village", village), zap.Error(err))
	}
}

func invalidTransition(current, expected models.RequestStatus) error {
	return appErrors.Clone(appErrors.ErrInvalidTransition,
		fmt.Sprintf("request is %s; expected %s", current, expected))
}

func requireOwnerOrVillageVAO(actor *models.JWTClaims, request *models.Request) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleFarmer && actor.UserID == request.FarmerID {
		return nil
	}
	if actor.Role == models.RoleVAO && actor.Village == request.Village {
		return nil
	}
	return appErrors.ErrForbidden
}
