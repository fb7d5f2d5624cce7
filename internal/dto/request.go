package dto

// SubmitRequestInput carries the fields of a new procurement request. The
// proof file has already been stored; ProofFile is its relative path.
type SubmitRequestInput struct {
	Aadhaar     string `json:"aadhaar" validate:"required,min=12,max=12,numeric"`
	Contact     string `json:"contact" validate:"required,min=10"`
	HarvestDate string `json:"harvest_date" validate:"required,datetime=2006-01-02"`
	ProofFile   string `json:"-" validate:"required"`
}

// RejectRequestInput carries the mandatory rejection reason.
type RejectRequestInput struct {
	Reason string `json:"reason" validate:"required"`
}

// FinalDocsInput references the four stored document files.
type FinalDocsInput struct {
	LandDoc    string `json:"-" validate:"required"`
	AadhaarDoc string `json:"-" validate:"required"`
	BankDoc    string `json:"-" validate:"required"`
	TruckSheet string `json:"-" validate:"required"`
}

// GenerateBillInput carries the procurement quantity for billing.
type GenerateBillInput struct {
	PaddyBags int `json:"paddy_bags" validate:"min=0"`
}

// SignedFileLink pairs a stored file with its signed download token.
type SignedFileLink struct {
	Label     string `json:"label"`
	Path      string `json:"path"`
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}
