package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/fpp-api/internal/models"
)

const requestColumns = `id, farmer_id, village, aadhaar, contact, harvest_date, proof_file, status,
	serial_number, rejection_reason, land_doc, aadhaar_doc, bank_doc, truck_sheet,
	paddy_bags, bill_generated, created_at, updated_at`

// RequestRepository persists procurement requests. Lifecycle transitions run
// as guarded updates inside one transaction together with their notification
// insert, so a transition and its side effects commit or roll back as a unit.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a new request in PENDING status.
func (r *RequestRepository) Create(ctx context.Context, request *models.Request) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.StatusPending
	}
	now := time.Now().UTC()
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	request.UpdatedAt = now

	const query = `INSERT INTO requests
	(id, farmer_id, village, aadhaar, contact, harvest_date, proof_file, status, bill_generated, created_at, updated_at)
	VALUES (:id, :farmer_id, :village, :aadhaar, :contact, :harvest_date, :proof_file, :status, :bill_generated, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

// GetByID fetches a request by identifier.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1`
	var request models.Request
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// ListByFarmer returns a farmer's own requests, newest first.
func (r *RequestRepository) ListByFarmer(ctx context.Context, farmerID string) ([]models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE farmer_id = $1 ORDER BY created_at DESC`
	var requests []models.Request
	if err := r.db.SelectContext(ctx, &requests, query, farmerID); err != nil {
		return nil, fmt.Errorf("list requests by farmer: %w", err)
	}
	return requests, nil
}

// ListByVillage returns every request in a village with farmer info joined,
// newest first.
func (r *RequestRepository) ListByVillage(ctx context.Context, village string) ([]models.Request, error) {
	const query = `SELECT r.id, r.farmer_id, r.village, r.aadhaar, r.contact, r.harvest_date, r.proof_file, r.status,
	r.serial_number, r.rejection_reason, r.land_doc, r.aadhaar_doc, r.bank_doc, r.truck_sheet,
	r.paddy_bags, r.bill_generated, r.created_at, r.updated_at,
	u.name AS farmer_name, u.mobile AS farmer_mobile
	FROM requests r JOIN users u ON u.id = r.farmer_id
	WHERE r.village = $1 ORDER BY r.created_at DESC`
	var requests []models.Request
	if err := r.db.SelectContext(ctx, &requests, query, village); err != nil {
		return nil, fmt.Errorf("list requests by village: %w", err)
	}
	return requests, nil
}

// ListApprovedOrLater returns approved, docs-uploaded and completed requests
// in a village with farmer info joined, oldest first (serial order).
func (r *RequestRepository) ListApprovedOrLater(ctx context.Context, village string) ([]models.Request, error) {
	const query = `SELECT r.id, r.farmer_id, r.village, r.aadhaar, r.contact, r.harvest_date, r.proof_file, r.status,
	r.serial_number, r.rejection_reason, r.land_doc, r.aadhaar_doc, r.bank_doc, r.truck_sheet,
	r.paddy_bags, r.bill_generated, r.created_at, r.updated_at,
	u.name AS farmer_name, u.mobile AS farmer_mobile
	FROM requests r JOIN users u ON u.id = r.farmer_id
	WHERE r.village = $1 AND r.status IN ($2, $3, $4)
	ORDER BY r.serial_number ASC`
	var requests []models.Request
	if err := r.db.SelectContext(ctx, &requests, query, village,
		models.StatusApproved, models.StatusFinalDocsUploaded, models.StatusCompleted); err != nil {
		return nil, fmt.Errorf("list approved requests: %w", err)
	}
	return requests, nil
}

// ListSerials returns the public serial projection for a village.
func (r *RequestRepository) ListSerials(ctx context.Context, village string) ([]models.SerialEntry, error) {
	const query = `SELECT r.serial_number, u.name AS farmer_name, r.status, r.village
	FROM requests r JOIN users u ON u.id = r.farmer_id
	WHERE r.village = $1 AND r.status IN ($2, $3, $4)
	ORDER BY r.serial_number ASC`
	var entries []models.SerialEntry
	if err := r.db.SelectContext(ctx, &entries, query, village,
		models.StatusApproved, models.StatusFinalDocsUploaded, models.StatusCompleted); err != nil {
		return nil, fmt.Errorf("list village serials: %w", err)
	}
	return entries, nil
}

// CountByFarmerBetween counts a farmer's requests created inside a window,
// regardless of status. Used by the season quota check.
func (r *RequestRepository) CountByFarmerBetween(ctx context.Context, farmerID string, start, end time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM requests WHERE farmer_id = $1 AND created_at BETWEEN $2 AND $3`
	var count int
	if err := r.db.GetContext(ctx, &count, query, farmerID, start, end); err != nil {
		return 0, fmt.Errorf("count farmer requests: %w", err)
	}
	return count, nil
}

// Approve assigns the next village serial and moves a PENDING request to
// APPROVED. The whole sequence runs in one transaction holding a per-village
// advisory lock, so concurrent approvals in the same village serialise and
// never produce duplicate or gapped serials. notify builds the owner
// notification once the serial is known; it is inserted in the same
// transaction. Returns sql.ErrNoRows when the request is no longer PENDING.
func (r *RequestRepository) Approve(ctx context.Context, id, village string, year int, notify func(serial string) *models.Notification) (string, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin approve tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, village); err != nil {
		return "", fmt.Errorf("acquire village lock: %w", err)
	}

	var count int
	if err := tx.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM requests WHERE village = $1 AND status IN ($2, $3, $4)`,
		village, models.StatusApproved, models.StatusFinalDocsUploaded, models.StatusCompleted); err != nil {
		return "", fmt.Errorf("count approved in village: %w", err)
	}

	serial := fmt.Sprintf("%s-%d-%04d", village, year, count+1)

	res, err := tx.ExecContext(ctx,
		`UPDATE requests SET status = $2, serial_number = $3, updated_at = $4 WHERE id = $1 AND status = $5`,
		id, models.StatusApproved, serial, time.Now().UTC(), models.StatusPending)
	if err != nil {
		return "", fmt.Errorf("approve request: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return "", sql.ErrNoRows
	}

	if notify != nil {
		if err := insertNotification(ctx, tx, notify(serial)); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit approve tx: %w", err)
	}
	return serial, nil
}

// Reject moves a PENDING request to REJECTED, storing the reason. Returns
// sql.ErrNoRows when the request is no longer PENDING.
func (r *RequestRepository) Reject(ctx context.Context, id, reason string, notification *models.Notification) error {
	return r.transition(ctx, notification, func(tx *sqlx.Tx) (sql.Result, error) {
		return tx.ExecContext(ctx,
			`UPDATE requests SET status = $2, rejection_reason = $3, updated_at = $4 WHERE id = $1 AND status = $5`,
			id, models.StatusRejected, reason, time.Now().UTC(), models.StatusPending)
	})
}

// SaveFinalDocs stores the document bundle and moves an APPROVED request to
// FINAL_DOCS_UPLOADED. Returns sql.ErrNoRows when the request is not APPROVED.
func (r *RequestRepository) SaveFinalDocs(ctx context.Context, id string, docs models.FinalDocs) error {
	return r.transition(ctx, nil, func(tx *sqlx.Tx) (sql.Result, error) {
		return tx.ExecContext(ctx,
			`UPDATE requests SET status = $2, land_doc = $3, aadhaar_doc = $4, bank_doc = $5, truck_sheet = $6, updated_at = $7
			WHERE id = $1 AND status = $8`,
			id, models.StatusFinalDocsUploaded, docs.LandDoc, docs.AadhaarDoc, docs.BankDoc, docs.TruckSheet,
			time.Now().UTC(), models.StatusApproved)
	})
}

// CompleteBill records the bag count and moves a FINAL_DOCS_UPLOADED request
// to COMPLETED with the bill flag set. Returns sql.ErrNoRows when the request
// is not in FINAL_DOCS_UPLOADED.
func (r *RequestRepository) CompleteBill(ctx context.Context, id string, paddyBags int, notification *models.Notification) error {
	return r.transition(ctx, notification, func(tx *sqlx.Tx) (sql.Result, error) {
		return tx.ExecContext(ctx,
			`UPDATE requests SET status = $2, paddy_bags = $3, bill_generated = TRUE, updated_at = $4 WHERE id = $1 AND status = $5`,
			id, models.StatusCompleted, paddyBags, time.Now().UTC(), models.StatusFinalDocsUploaded)
	})
}

// Summary aggregates the per-village dashboard counters.
func (r *RequestRepository) Summary(ctx context.Context, village string) (*models.VillageSummary, error) {
	const query = `SELECT
	COUNT(*) AS total_requests,
	COUNT(*) FILTER (WHERE status = $2) AS pending,
	COUNT(*) FILTER (WHERE status = $3) AS approved,
	COUNT(*) FILTER (WHERE status = $4) AS completed,
	COALESCE(SUM(paddy_bags) FILTER (WHERE status = $4), 0) AS total_bags
	FROM requests WHERE village = $1`
	var summary models.VillageSummary
	if err := r.db.GetContext(ctx, &summary, query, village,
		models.StatusPending, models.StatusApproved, models.StatusCompleted); err != nil {
		return nil, fmt.Errorf("village summary: %w", err)
	}
	return &summary, nil
}

func (r *RequestRepository) transition(ctx context.Context, notification *models.Notification, update func(tx *sqlx.Tx) (sql.Result, error)) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := update(tx)
	if err != nil {
		return fmt.Errorf("apply transition: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}

	if err := insertNotification(ctx, tx, notification); err != nil {
		return err
	}

	return tx.Commit()
}

func insertNotification(ctx context.Context, tx *sqlx.Tx, n *models.Notification) error {
	if n == nil {
		return nil
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications (id, user_id, message, severity, is_read, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.ExecContext(ctx, query, n.ID, n.UserID, n.Message, n.Severity, n.IsRead, n.CreatedAt); err != nil {
		return fmt.Errorf("insert transition notification: %w", err)
	}
	return nil
}
