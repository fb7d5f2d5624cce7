package models

import "time"

// RequestStatus tracks a procurement request through its lifecycle.
type RequestStatus string

const (
	StatusPending           RequestStatus = "PENDING"
	StatusApproved          RequestStatus = "APPROVED"
	StatusRejected          RequestStatus = "REJECTED"
	StatusFinalDocsUploaded RequestStatus = "FINAL_DOCS_UPLOADED"
	StatusCompleted         RequestStatus = "COMPLETED"
)

// HasSerial reports whether the status implies a serial number was assigned.
func (s RequestStatus) HasSerial() bool {
	switch s {
	case StatusApproved, StatusFinalDocsUploaded, StatusCompleted:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition may leave the status.
func (s RequestStatus) Terminal() bool {
	return s == StatusRejected || s == StatusCompleted
}

// SerialStatuses lists every status counted during serial allocation.
func SerialStatuses() []RequestStatus {
	return []RequestStatus{StatusApproved, StatusFinalDocsUploaded, StatusCompleted}
}

// Request is the central procurement entity. Village is captured from the
// farmer profile at submission time and never follows later profile edits.
type Request struct {
	ID              string        `db:"id" json:"id"`
	FarmerID        string        `db:"farmer_id" json:"farmer_id"`
	Village         string        `db:"village" json:"village"`
	Aadhaar         string        `db:"aadhaar" json:"aadhaar"`
	Contact         string        `db:"contact" json:"contact"`
	HarvestDate     string        `db:"harvest_date" json:"harvest_date"`
	ProofFile       string        `db:"proof_file" json:"proof_file"`
	Status          RequestStatus `db:"status" json:"status"`
	SerialNumber    *string       `db:"serial_number" json:"serial_number,omitempty"`
	RejectionReason *string       `db:"rejection_reason" json:"rejection_reason,omitempty"`
	LandDoc         *string       `db:"land_doc" json:"land_doc,omitempty"`
	AadhaarDoc      *string       `db:"aadhaar_doc" json:"aadhaar_doc,omitempty"`
	BankDoc         *string       `db:"bank_doc" json:"bank_doc,omitempty"`
	TruckSheet      *string       `db:"truck_sheet" json:"truck_sheet,omitempty"`
	PaddyBags       *int          `db:"paddy_bags" json:"paddy_bags,omitempty"`
	BillGenerated   bool          `db:"bill_generated" json:"bill_generated"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`

	// FarmerName and FarmerMobile are populated by joined list queries.
	FarmerName   string `db:"farmer_name" json:"farmer_name,omitempty"`
	FarmerMobile string `db:"farmer_mobile" json:"farmer_mobile,omitempty"`
}

// FinalDocs bundles the four documents submitted after approval.
type FinalDocs struct {
	LandDoc    string
	AadhaarDoc string
	BankDoc    string
	TruckSheet string
}

// Complete reports whether every document of the bundle is present.
func (d FinalDocs) Complete() bool {
	return d.LandDoc != "" && d.AadhaarDoc != "" && d.BankDoc != "" && d.TruckSheet != ""
}

// SerialEntry is the public village-serials projection row.
type SerialEntry struct {
	SerialNumber string        `db:"serial_number" json:"serial_number"`
	FarmerName   string        `db:"farmer_name" json:"farmer_name"`
	Status       RequestStatus `db:"status" json:"status"`
	Village      string        `db:"village" json:"village"`
}
