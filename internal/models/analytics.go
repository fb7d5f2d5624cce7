package models

// VillageSummary aggregates procurement progress for one village.
type VillageSummary struct {
	TotalRequests int `db:"total_requests" json:"totalRequests"`
	Pending       int `db:"pending" json:"pending"`
	Approved      int `db:"approved" json:"approved"`
	Completed     int `db:"completed" json:"completed"`
	TotalBags     int `db:"total_bags" json:"totalBags"`
	Target        int `json:"target"`
}
