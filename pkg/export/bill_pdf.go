package export

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// BillData carries everything the procurement bill document needs.
type BillData struct {
	SerialNumber string
	FarmerName   string
	FarmerMobile string
	Village      string
	Aadhaar      string
	PaddyBags    int
	IssuedAt     time.Time
}

// BillPDFExporter renders the official procurement bill.
type BillPDFExporter struct{}

// NewBillPDFExporter constructs a bill exporter.
func NewBillPDFExporter() *BillPDFExporter {
	return &BillPDFExporter{}
}

// Render produces the bill PDF bytes.
func (e *BillPDFExporter) Render(data BillData) ([]byte, error) {
	if data.SerialNumber == "" {
		return nil, fmt.Errorf("bill requires a serial number")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	pdf.SetTextColor(68, 68, 68)
	pdf.SetFont("Arial", "B", 18)
	pdf.CellFormat(0, 9, "Farmer Paddy Portal", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, "Government of India", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetDrawColor(170, 170, 170)
	pdf.Line(15, pdf.GetY(), 195, pdf.GetY())
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(100, 7, "Paddy Procurement Bill", "", 0, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 7, "Bill No: "+data.SerialNumber, "", 1, "R", false, 0, "")
	pdf.CellFormat(100, 6, "", "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Date: "+data.IssuedAt.Format("02-01-2006"), "", 1, "R", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(0, 6, "Farmer Details:", "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(95, 6, "Name: "+data.FarmerName, "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Aadhaar: "+data.Aadhaar, "", 1, "L", false, 0, "")
	pdf.CellFormat(95, 6, "Mobile: "+data.FarmerMobile, "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Village: "+data.Village, "", 1, "L", false, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(20, 8, "Item", "1", 0, "C", false, 0, "")
	pdf.CellFormat(90, 8, "Description", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 8, "Quantity (Bags)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 8, "Total", "1", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(20, 8, "1", "1", 0, "C", false, 0, "")
	pdf.CellFormat(90, 8, "Paddy Grade A", "1", 0, "L", false, 0, "")
	pdf.CellFormat(40, 8, strconv.Itoa(data.PaddyBags), "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 8, "-", "1", 1, "C", false, 0, "")

	pdf.SetY(260)
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 6, "Valid for all government procurement purposes.", "", 1, "C", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render bill pdf: %w", err)
	}
	return buf.Bytes(), nil
}
