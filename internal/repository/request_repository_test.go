package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fpp-api/internal/models"
)

func newRequestRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func requestRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "farmer_id", "village", "aadhaar", "contact", "harvest_date", "proof_file", "status",
		"serial_number", "rejection_reason", "land_doc", "aadhaar_doc", "bank_doc", "truck_sheet",
		"paddy_bags", "bill_generated", "created_at", "updated_at",
	})
}

func TestRequestRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectExec("INSERT INTO requests").
		WithArgs(sqlmock.AnyArg(), "f1", "Thanjavur", "123456789012", "9876543210", "2026-06-20",
			"proof.jpg", string(models.StatusPending), false, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	request := &models.Request{
		FarmerID:    "f1",
		Village:     "Thanjavur",
		Aadhaar:     "123456789012",
		Contact:     "9876543210",
		HarvestDate: "2026-06-20",
		ProofFile:   "proof.jpg",
	}
	require.NoError(t, repo.Create(context.Background(), request))
	assert.NotEmpty(t, request.ID)
	assert.Equal(t, models.StatusPending, request.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryGetByIDNotFound(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM requests WHERE id").
		WithArgs("missing").
		WillReturnRows(requestRows())

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryCountByFarmerBetween(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	start := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.September, 30, 23, 59, 59, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM requests WHERE farmer_id = $1 AND created_at BETWEEN $2 AND $3")).
		WithArgs("f1", start, end).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountByFarmerBetween(context.Background(), "f1", start, end)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryApproveAssignsNextSerial(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtextextended($1, 0))")).
		WithArgs("Thanjavur").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM requests WHERE village = $1 AND status IN ($2, $3, $4)")).
		WithArgs("Thanjavur", string(models.StatusApproved), string(models.StatusFinalDocsUploaded), string(models.StatusCompleted)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectExec("UPDATE requests SET status").
		WithArgs("r1", string(models.StatusApproved), "Thanjavur-2026-0003", sqlmock.AnyArg(), string(models.StatusPending)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(sqlmock.AnyArg(), "f1", sqlmock.AnyArg(), string(models.SeveritySuccess), false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	serial, err := repo.Approve(context.Background(), "r1", "Thanjavur", 2026, func(serial string) *models.Notification {
		return &models.Notification{UserID: "f1", Message: "approved " + serial, Severity: models.SeveritySuccess}
	})
	require.NoError(t, err)
	assert.Equal(t, "Thanjavur-2026-0003", serial)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryApproveLostRace(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs("Thanjavur").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM requests WHERE village")).
		WithArgs("Thanjavur", string(models.StatusApproved), string(models.StatusFinalDocsUploaded), string(models.StatusCompleted)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	// Guarded update misses because the request already left PENDING.
	mock.ExpectExec("UPDATE requests SET status").
		WithArgs("r1", string(models.StatusApproved), "Thanjavur-2026-0001", sqlmock.AnyArg(), string(models.StatusPending)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Approve(context.Background(), "r1", "Thanjavur", 2026, nil)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryRejectInsertsNotificationInTx(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE requests SET status").
		WithArgs("r1", string(models.StatusRejected), "blurry proof", sqlmock.AnyArg(), string(models.StatusPending)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(sqlmock.AnyArg(), "f1", sqlmock.AnyArg(), string(models.SeverityError), false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.Reject(context.Background(), "r1", "blurry proof",
		&models.Notification{UserID: "f1", Message: "rejected", Severity: models.SeverityError})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryRejectWrongStatus(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE requests SET status").
		WithArgs("r1", string(models.StatusRejected), "too late", sqlmock.AnyArg(), string(models.StatusPending)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Reject(context.Background(), "r1", "too late", nil)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositorySaveFinalDocs(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE requests SET status").
		WithArgs("r1", string(models.StatusFinalDocsUploaded), "l.pdf", "a.pdf", "b.pdf", "t.pdf",
			sqlmock.AnyArg(), string(models.StatusApproved)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.SaveFinalDocs(context.Background(), "r1", models.FinalDocs{
		LandDoc: "l.pdf", AadhaarDoc: "a.pdf", BankDoc: "b.pdf", TruckSheet: "t.pdf",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryCompleteBill(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE requests SET status").
		WithArgs("r1", string(models.StatusCompleted), 42, sqlmock.AnyArg(), string(models.StatusFinalDocsUploaded)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(sqlmock.AnyArg(), "f1", sqlmock.AnyArg(), string(models.SeveritySuccess), false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.CompleteBill(context.Background(), "r1", 42,
		&models.Notification{UserID: "f1", Message: "bill", Severity: models.SeveritySuccess})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositorySummary(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	rows := sqlmock.NewRows([]string{"total_requests", "pending", "approved", "completed", "total_bags"}).
		AddRow(10, 4, 3, 2, 150)
	mock.ExpectQuery("SELECT(.|\n)+FROM requests WHERE village").
		WithArgs("Thanjavur", string(models.StatusPending), string(models.StatusApproved), string(models.StatusCompleted)).
		WillReturnRows(rows)

	summary, err := repo.Summary(context.Background(), "Thanjavur")
	require.NoError(t, err)
	assert.Equal(t, 10, summary.TotalRequests)
	assert.Equal(t, 4, summary.Pending)
	assert.Equal(t, 150, summary.TotalBags)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryListSerials(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	rows := sqlmock.NewRows([]string{"serial_number", "farmer_name", "status", "village"}).
		AddRow("Thanjavur-2026-0001", "Muthu", string(models.StatusApproved), "Thanjavur").
		AddRow("Thanjavur-2026-0002", "Kumar", string(models.StatusCompleted), "Thanjavur")
	mock.ExpectQuery("SELECT r.serial_number").
		WithArgs("Thanjavur", string(models.StatusApproved), string(models.StatusFinalDocsUploaded), string(models.StatusCompleted)).
		WillReturnRows(rows)

	entries, err := repo.ListSerials(context.Background(), "Thanjavur")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Thanjavur-2026-0001", entries[0].SerialNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}
