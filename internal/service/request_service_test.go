package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fpp-api/internal/dto"
	"github.com/noah-isme/fpp-api/internal/models"
	appErrors "github.com/noah-isme/fpp-api/pkg/errors"
)

type mockRequestRepo struct {
	requests      map[string]models.Request
	notifications []models.Notification
	nextID        int
}

func newMockRequestRepo() *mockRequestRepo {
	return &mockRequestRepo{requests: make(map[string]models.Request)}
}

func (m *mockRequestRepo) Create(ctx context.Context, request *models.Request) error {
	m.nextID++
	request.ID = fmt.Sprintf("req-%d", m.nextID)
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now().UTC()
	}
	m.requests[request.ID] = *request
	return nil
}

func (m *mockRequestRepo) GetByID(ctx context.Context, id string) (*models.Request, error) {
	request, ok := m.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &request, nil
}

func (m *mockRequestRepo) ListByFarmer(ctx context.Context, farmerID string) ([]models.Request, error) {
	var result []models.Request
	for _, r := range m.requests {
		if r.FarmerID == farmerID {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *mockRequestRepo) ListByVillage(ctx context.Context, village string) ([]models.Request, error) {
	var result []models.Request
	for _, r := range m.requests {
		if r.Village == village {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *mockRequestRepo) ListSerials(ctx context.Context, village string) ([]models.SerialEntry, error) {
	var result []models.SerialEntry
	for _, r := range m.requests {
		if r.Village == village && r.SerialNumber != nil {
			result = append(result, models.SerialEntry{
				SerialNumber: *r.SerialNumber,
				Status:       r.Status,
				Village:      r.Village,
			})
		}
	}
	return result, nil
}

func (m *mockRequestRepo) CountByFarmerBetween(ctx context.Context, farmerID string, start, end time.Time) (int, error) {
	count := 0
	for _, r := range m.requests {
		if r.FarmerID == farmerID && !r.CreatedAt.Before(start) && !r.CreatedAt.After(end) {
			count++
		}
	}
	return count, nil
}

func (m *mockRequestRepo) Approve(ctx context.Context, id, village string, year int, notify func(serial string) *models.Notification) (string, error) {
	request, ok := m.requests[id]
	if !ok || request.Status != models.StatusPending {
		return "", sql.ErrNoRows
	}
	count := 0
	for _, r := range m.requests {
		if r.Village == village && r.Status.HasSerial() {
			count++
		}
	}
	serial := fmt.Sprintf("%s-%d-%04d", village, year, count+1)
	request.Status = models.StatusApproved
	request.SerialNumber = &serial
	m.requests[id] = request
	if n := notify(serial); n != nil {
		m.notifications = append(m.notifications, *n)
	}
	return serial, nil
}

func (m *mockRequestRepo) Reject(ctx context.Context, id, reason string, notification *models.Notification) error {
	request, ok := m.requests[id]
	if !ok || request.Status != models.StatusPending {
		return sql.ErrNoRows
	}
	request.Status = models.StatusRejected
	request.RejectionReason = &reason
	m.requests[id] = request
	if notification != nil {
		m.notifications = append(m.notifications, *notification)
	}
	return nil
}

func (m *mockRequestRepo) SaveFinalDocs(ctx context.Context, id string, docs models.FinalDocs) error {
	request, ok := m.requests[id]
	if !ok || request.Status != models.StatusApproved {
		return sql.ErrNoRows
	}
	request.Status = models.StatusFinalDocsUploaded
	request.LandDoc = &docs.LandDoc
	request.AadhaarDoc = &docs.AadhaarDoc
	request.BankDoc = &docs.BankDoc
	request.TruckSheet = &docs.TruckSheet
	m.requests[id] = request
	return nil
}

func (m *mockRequestRepo) CompleteBill(ctx context.Context, id string, paddyBags int, notification *models.Notification) error {
	request, ok := m.requests[id]
	if !ok || request.Status != models.StatusFinalDocsUploaded {
		return sql.ErrNoRows
	}
	request.Status = models.StatusCompleted
	request.PaddyBags = &paddyBags
	request.BillGenerated = true
	m.requests[id] = request
	if notification != nil {
		m.notifications = append(m.notifications, *notification)
	}
	return nil
}

func farmerClaims(id, village string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleFarmer, Village: village, Name: "Farmer " + id}
}

func vaoClaims(id, village string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleVAO, Village: village, Name: "VAO " + id}
}

func newTestRequestService(repo *mockRequestRepo) *RequestService {
	svc := NewRequestService(repo, nil, nil, nil, nil, 5)
	svc.now = func() time.Time { return time.Date(2026, time.June, 15, 10, 0, 0, 0, time.UTC) }
	return svc
}

func validSubmitInput() dto.SubmitRequestInput {
	return dto.SubmitRequestInput{
		Aadhaar:     "123456789012",
		Contact:     "9876543210",
		HarvestDate: "2026-06-20",
		ProofFile:   "1750000000000-proof.jpg",
	}
}

func seedRequest(repo *mockRequestRepo, farmerID, village string, status models.RequestStatus) string {
	request := &models.Request{
		FarmerID:    farmerID,
		Village:     village,
		Aadhaar:     "123456789012",
		Contact:     "9876543210",
		HarvestDate: "2026-06-20",
		ProofFile:   "proof.jpg",
		Status:      models.StatusPending,
	}
	_ = repo.Create(context.Background(), request)
	if status != models.StatusPending {
		stored := repo.requests[request.ID]
		stored.Status = status
		if status.HasSerial() {
			serial := fmt.Sprintf("%s-2026-%04d", village, 1)
			stored.SerialNumber = &serial
		}
		repo.requests[request.ID] = stored
	}
	return request.ID
}

func TestSubmitCreatesPendingRequest(t *testing.T) {
	repo := newMockRequestRepo()
	svc := newTestRequestService(repo)

	request, err := svc.Submit(context.Background(), farmerClaims("f1", "Thanjavur"), validSubmitInput())
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, request.Status)
	assert.Equal(t, "Thanjavur", request.Village)
	assert.Equal(t, "f1", request.FarmerID)
	assert.Nil(t, request.SerialNumber)
}

func TestSubmitRejectsNonFarmer(t *testing.T) {
	repo := newMockRequestRepo()
	svc := newTestRequestService(repo)

	_, err := svc.Submit(context.Background(), vaoClaims("v1", "Thanjavur"), validSubmitInput())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestSubmitValidatesAadhaar(t *testing.T) {
	repo := newMockRequestRepo()
	svc := newTestRequestService(repo)

	input := validSubmitInput()
	input.Aadhaar = "12345"
	_, err := svc.Submit(context.Background(), farmerClaims("f1", "Thanjavur"), input)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSubmitEnforcesSeasonQuota(t *testing.T) {
	repo := newMockRequestRepo()
	svc := newTestRequestService(repo)
	actor := farmerClaims("f1", "Thanjavur")

	for i := 0; i < 5; i++ {
		_, err := svc.Submit(context.Background(), actor, validSubmitInput())
		require.NoError(t, err)
	}

	_, err := svc.Submit(context.Background(), actor, validSubmitInput())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrQuotaExceeded.Code, appErrors.FromError(err).Code)
}

func TestSubmitQuotaCountsRejectedRequests(t *testing.T) {
	repo := newMockRequestRepo()
	svc := NewRequestService(repo, nil, nil, nil, nil, 2)
	svc.now = func() time.Time { return time.Date(2026, time.June, 15, 10, 0, 0, 0, time.UTC) }
	actor := farmerClaims("f1", "Thanjavur")

	first, err := svc.Submit(context.Background(), actor, validSubmitInput())
	require.NoError(t, err)
	_, err = svc.Reject(context.Background(), vaoClaims("v1", "Thanjavur"), first.ID, dto.RejectRequestInput{Reason: "blurry proof"})
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), actor, validSubmitInput())
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), actor, validSubmitInput())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrQuotaExceeded.Code, appErrors.FromError(err).Code)
}

func TestSubmitQuotaResetsAcrossSeasons(t *testing.T) {
	repo := newMockRequestRepo()
	svc := NewRequestService(repo, nil, nil, nil, nil, 1)
	actor := farmerClaims("f1", "Thanjavur")

	svc.now = func() time.Time { return time.Date(2026, time.September, 29, 10, 0, 0, 0, time.UTC) }
	_, err := svc.Submit(context.Background(), actor, validSubmitInput())
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), actor, validSubmitInput())
	require.Error(t, err)

	// New season opens Oct 1; the counter starts over.
	svc.now = func() time.Time { return time.Date(2026, time.October, 2, 10, 0, 0, 0, time.UTC) }
	_, err = svc.Submit(context.Background(), actor, validSubmitInput())
	require.NoError(t, err)
}

func TestApproveAssignsVillageScopedSerial(t *testing.T) {
	repo := newMockRequestRepo()
	svc := newTestRequestService(repo)
	vao := vaoClaims("v1", "Thanjavur")

	first := seedRequest(repo, "f1", "Thanjavur", models.StatusPending)
	second := seedRequest(repo, "f2", "Thanjavur", models.StatusPending)
	other := seedRequest(repo, "f3", "Madurai", models.StatusPending)

	approved, err := svc.Approve(context.Background(), vao, first)
	require.NoError(t, err)
	require.NotNil(t, approved.SerialNumber)
	assert.Equal(t, "Thanjavur-2026-0001", *approved.SerialNumber)

	approved, err = svc.Approve(context.Background(), vao, second)
	require.NoError(t, err)
	assert.Equal(t, "Thanjavur-2026-0002", *approved.SerialNumber)

	// Another village numbers independently.
	approved, err = svc.Approve(context.Background(), vaoClaims("v2", "Madurai"), other)
	require.NoError(t, err)
	assert.Equal(t, "Madurai-2026-0001", *approved.SerialNumber)
}

func TestApproveNotifiesOwnerWithSerial(t *testing.T) {
	repo := newMockRequestRepo()
	svc := newTestRequestService(repo)

	id := seedRequest(repo, "f1", "Thanjavur", models.StatusPending)
	_, err := svc.Approve(context.Background(), vaoClaims("v1", "Thanjavur"), id)
	require.NoError(t, err)

	require.Len(t, repo.notifications, 1)
	assert.Equal(t, "f1", repo.notifications[0].UserID)
	assert.Equal(t, models.SeveritySuccess, repo.notifications[0].Severity)
	assert.Contains(t, repo.notifications[0].Message, "Thanjavur-2026-0001")
}

func TestApproveRejectsCrossVillageVAO(t *testing.T) {
	repo := newMockRequestRepo()
	svc := newTestRequestService(repo)

	id := seedRequest(repo, "f1", "Thanjavur", models.StatusPending)
	_, err := svc.Approve(context.Background(), vaoClaims("v1", "Madurai"), id)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestApproveTwiceFailsWithInvalidTransition(t *testing.T) {
	repo := newMockRequestRepo()
	svc := newTestRequestService(repo)
	vao := vaoClaims("v1", "Thanjavur")

	id := seedRequest(repo, "f1", "Thanjavur", models.StatusPending)
	_, err := svc.Approve(context.Background(), vao, id)
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), vao, id)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
	assert.Contains(t, appErr.Message, string(models.StatusApproved))
}

func TestRejectRequiresReason(t *testing.T) {
	repo := newMockRequestRepo()
	svc := newTestRequestService(repo)

	id := seedRequest(repo, "f1", "Thanjavur", models.StatusPending)
	_, err := svc.Reject(context.Background(), vaoClaims("v1", "Thanjavur"), id, dto.RejectRequestInput{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRejectStoresReasonAndNotifies(t *testing.T) {
	repo := newMockRequestRepo()
	svc := newTestRequestService(repo)

	id := seedRequest(repo, "f1", "Thanjavur", models.StatusPending)
	request, err := svc.Reject(context.Background(), vaoClaims("v1", "Thanjavur"), id, dto.RejectRequestInput{Reason: "proof illegible"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, request.Status)
	require.NotNil(t, request.RejectionReason)
	assert.Equal(t, "proof illegible", *request.RejectionReason)

	require.Len(t, repo.notifications, 1)
	assert.Equal(t, models.SeverityError, repo.notifications[0].Severity)
	assert.Contains(t, repo.notifications[0].Message, "proof illegible")
}

func TestRejectApprovedRequestFails(t *testing.T) {
	repo := newMockRequestRepo()
	svc := newTestRequestService(repo)

	id := seedRequest(repo, "f1", "Thanjavur", models.StatusApproved)
	_, err := svc.Reject(context.Background(), vaoClaims("v1", "Thanjavur"), id, dto.RejectRequestInput{Reason: "too late"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestUploadFinalDocsRequiresOwner(t *testing.T) {
	repo := newMockRequestRepo()
	svc := newTestRequestService(repo)

	id := seedRequest(repo, "f1", "Thanjavur", models.StatusApproved)
	docs := dto.FinalDocsInput{LandDoc: "l.pdf", AadhaarDoc: "a.pdf", BankDoc: "b.pdf", TruckSheet: "t.pdf"}

	_, err := svc.UploadFinalDocs(context.Background(), farmerClaims("f2", "Thanjavur"), id, docs)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestUploadFinalDocsRequiresAllFour(t *testing.T) {
	repo := newMockRequestRepo()
	svc := newTestRequestService(repo)

	id := seedRequest(repo, "f1", "Thanjavur", models.StatusApproved)
	docs := dto.FinalDocsInput{LandDoc: "l.pdf", AadhaarDoc: "a.pdf", BankDoc: "b.pdf"}

	_, err := svc.UploadFinalDocs(context.Background(), farmerClaims("f1", "Thanjavur"), id, docs)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	// Nothing was partially stored.
	stored, getErr := repo.GetByID(context.Background(), id)
	require.NoError(t, getErr)
	assert.Equal(t, models.StatusApproved, stored.Status)
	assert.Nil(t, stored.LandDoc)
}

func TestUploadFinalDocsBeforeApprovalFails(t *testing.T) {
	repo := newMockRequestRepo()
	svc := newTestRequestService(repo)

	id := seedRequest(repo, "f1", "Thanjavur", models.StatusPending)
	docs := dto.FinalDocsInput{LandDoc: "l.pdf", AadhaarDoc: "a.pdf", BankDoc: "b.pdf", TruckSheet: "t.pdf"}

	_, err := svc.UploadFinalDocs(context.Background(), farmerClaims("f1", "Thanjavur"), id, docs)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestGenerateBillCompletesRequest(t *testing.T) {
	repo := newMockRequestRepo()
	svc := newTestRequestService(repo)

	id := seedRequest(repo, "f1", "Thanjavur", models.StatusFinalDocsUploaded)
	request, err := svc.GenerateBill(context.Background(), vaoClaims("v1", "Thanjavur"), id, dto.GenerateBillInput{PaddyBags: 42})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, request.Status)
	assert.True(t, request.BillGenerated)
	require.NotNil(t, request.PaddyBags)
	assert.Equal(t, 42, *request.PaddyBags)

	require.Len(t, repo.notifications, 1)
	assert.Contains(t, repo.notifications[0].Message, "42 bags")
}

func TestGenerateBillAllowsZeroBags(t *testing.T) {
	repo := newMockRequestRepo()
	svc := newTestRequestService(repo)

	id := seedRequest(repo, "f1", "Thanjavur", models.StatusFinalDocsUploaded)
	request, err := svc.GenerateBill(context.Background(), vaoClaims("v1", "Thanjavur"), id, dto.GenerateBillInput{PaddyBags: 0})
	require.NoError(t, err)
	require.NotNil(t, request.PaddyBags)
	assert.Equal(t, 0, *request.PaddyBags)
}

func TestGenerateBillRejectsNegativeBags(t *testing.T) {
	repo := newMockRequestRepo()
	svc := newTestRequestService(repo)

	id := seedRequest(repo, "f1", "Thanjavur", models.StatusFinalDocsUploaded)
	_, err := svc.GenerateBill(context.Background(), vaoClaims("v1", "Thanjavur"), id, dto.GenerateBillInput{PaddyBags: -1})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestGenerateBillBeforeFinalDocsFails(t *testing.T) {
	repo := newMockRequestRepo()
	svc := newTestRequestService(repo)

	id := seedRequest(repo, "f1", "Thanjavur", models.StatusApproved)
	_, err := svc.GenerateBill(context.Background(), vaoClaims("v1", "Thanjavur"), id, dto.GenerateBillInput{PaddyBags: 10})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestTransitionsOnMissingRequestReturnNotFound(t *testing.T) {
	repo := newMockRequestRepo()
	svc := newTestRequestService(repo)

	_, err := svc.Approve(context.Background(), vaoClaims("v1", "Thanjavur"), "nope")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestListMineScopedToFarmer(t *testing.T) {
	repo := newMockRequestRepo()
	svc := newTestRequestService(repo)

	seedRequest(repo, "f1", "Thanjavur", models.StatusPending)
	seedRequest(repo, "f2", "Thanjavur", models.StatusPending)

	mine, err := svc.ListMine(context.Background(), farmerClaims("f1", "Thanjavur"))
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "f1", mine[0].FarmerID)
}

func TestListVillageScopedToVAOVillage(t *testing.T) {
	repo := newMockRequestRepo()
	svc := newTestRequestService(repo)

	seedRequest(repo, "f1", "Thanjavur", models.StatusPending)
	seedRequest(repo, "f2", "Madurai", models.StatusPending)

	requests, err := svc.ListVillage(context.Background(), vaoClaims("v1", "Thanjavur"))
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, "Thanjavur", requests[0].Village)

	_, err = svc.ListVillage(context.Background(), farmerClaims("f1", "Thanjavur"))
	require.Error(t, err)
}

func TestTransitionPolicyTable(t *testing.T) {
	cases := []struct {
		action transitionAction
		role   models.UserRole
		owner  bool
	}{
		{actionApprove, models.RoleVAO, false},
		{actionReject, models.RoleVAO, false},
		{actionUploadFinalDocs, models.RoleFarmer, true},
		{actionGenerateBill, models.RoleVAO, false},
	}
	for _, tc := range cases {
		policy, ok := transitionPolicy[tc.action]
		require.True(t, ok, string(tc.action))
		assert.Equal(t, tc.role, policy.role, string(tc.action))
		assert.Equal(t, tc.owner, policy.ownerOnly, string(tc.action))
	}
}
