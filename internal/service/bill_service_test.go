package service

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fpp-api/internal/models"
	appErrors "github.com/noah-isme/fpp-api/pkg/errors"
)

func seedCompletedRequest(requests *mockRequestRepo, users *mockUserRepo) string {
	users.users["f1"] = models.User{ID: "f1", Name: "Muthu", Mobile: "9876543210", Role: models.RoleFarmer, Village: "Thanjavur"}

	id := seedRequest(requests, "f1", "Thanjavur", models.StatusCompleted)
	stored := requests.requests[id]
	bags := 42
	stored.PaddyBags = &bags
	stored.BillGenerated = true
	requests.requests[id] = stored
	return id
}

func TestRenderBillForCompletedRequest(t *testing.T) {
	requests := newMockRequestRepo()
	users := newMockUserRepo()
	id := seedCompletedRequest(requests, users)
	svc := NewBillService(requests, users, nil)

	pdf, filename, err := svc.RenderBill(context.Background(), farmerClaims("f1", "Thanjavur"), id)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))
	assert.Contains(t, filename, "Thanjavur-2026-0001")

	// Same-village VAO may download too.
	_, _, err = svc.RenderBill(context.Background(), vaoClaims("v1", "Thanjavur"), id)
	require.NoError(t, err)
}

func TestRenderBillBeforeGenerationIs404(t *testing.T) {
	requests := newMockRequestRepo()
	users := newMockUserRepo()
	users.users["f1"] = models.User{ID: "f1", Name: "Muthu", Role: models.RoleFarmer, Village: "Thanjavur"}
	id := seedRequest(requests, "f1", "Thanjavur", models.StatusFinalDocsUploaded)
	svc := NewBillService(requests, users, nil)

	_, _, err := svc.RenderBill(context.Background(), farmerClaims("f1", "Thanjavur"), id)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRenderBillDeniesOutsiders(t *testing.T) {
	requests := newMockRequestRepo()
	users := newMockUserRepo()
	id := seedCompletedRequest(requests, users)
	svc := NewBillService(requests, users, nil)

	_, _, err := svc.RenderBill(context.Background(), farmerClaims("f2", "Thanjavur"), id)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, _, err = svc.RenderBill(context.Background(), vaoClaims("v2", "Madurai"), id)
	require.Error(t, err)
}
