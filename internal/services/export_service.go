package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/Mateo9804/gastoclaro/internal/apperrors"
	"github.com/Mateo9804/gastoclaro/internal/models"
	"github.com/Mateo9804/gastoclaro/internal/repositories"
)

type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportXLSX ExportFormat = "xlsx"
	ExportPDF  ExportFormat = "pdf"
)

// ParseExportFormat defaults to CSV when the value is empty.
func ParseExportFormat(v string) (ExportFormat, error) {
	switch ExportFormat(v) {
	case "", ExportCSV:
		return ExportCSV, nil
	case ExportXLSX, ExportPDF:
		return ExportFormat(v), nil
	}
	return "", apperrors.NewValidation("format", "must be one of csv, xlsx, pdf")
}

var exportContentTypes = map[ExportFormat]string{
	ExportCSV:  "text/csv",
	ExportXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	ExportPDF:  "application/pdf",
}

// ExportColumns is the fixed column set of every export format.
var ExportColumns = []string{"ID", "Vendor", "Invoice Date", "Upload Date", "Amount", "Currency", "Category", "Uploaded By"}

// ExportFilter holds the filters honoured by exports. Status is always completed.
type ExportFilter struct {
	Category   *string
	Date       *models.DateFilter
	UploadDate *models.DateFilter
}

type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
	Rows        int
}

type ExportService interface {
	Export(ctx context.Context, p models.Principal, filter ExportFilter, format ExportFormat) (*ExportFile, error)
}

type exportService struct {
	receiptRepo  repositories.ReceiptRepository
	tenantRepo   repositories.TenantRepository
	entitlements EntitlementService
	clock        clockwork.Clock
	loc          *time.Location
	logger       *zap.Logger
}

func NewExportService(receiptRepo repositories.ReceiptRepository, tenantRepo repositories.TenantRepository, entitlements EntitlementService, clock clockwork.Clock, loc *time.Location, logger *zap.Logger) ExportService {
	if loc == nil {
		loc = time.UTC
	}
	return &exportService{
		receiptRepo:  receiptRepo,
		tenantRepo:   tenantRepo,
		entitlements: entitlements,
		clock:        clock,
		loc:          loc,
		logger:       logger,
	}
}

func (s *exportService) Export(ctx context.Context, p models.Principal, filter ExportFilter, format ExportFormat) (*ExportFile, error) {
	if err := authorize(p, CapExportReceipts); err != nil {
		return nil, err
	}
	tenant, err := s.tenantRepo.GetByID(ctx, *p.TenantID)
	if err != nil {
		return nil, err
	}
	if !s.entitlements.AllowsExport(tenant) {
		return nil, apperrors.NewForbidden("Exports are available on the pro and enterprise plans")
	}

	completed := models.ReceiptStatusCompleted
	receipts, err := s.receiptRepo.List(ctx, tenant.ID, models.ReceiptFilter{
		Status:      &completed,
		Category:    filter.Category,
		Date:        filter.Date,
		UploadDate:  filter.UploadDate,
		OrderByDate: true,
	})
	if err != nil {
		return nil, err
	}

	rows := s.rows(receipts)
	var data []byte
	switch format {
	case ExportXLSX:
		data, err = renderXLSX(rows)
	case ExportPDF:
		data, err = renderPDF(tenant.Name, rows)
	default:
		format = ExportCSV
		data, err = renderCSV(rows)
	}
	if err != nil {
		return nil, fmt.Errorf("render %s export: %w", format, err)
	}

	s.logger.Info("receipts exported",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("format", string(format)),
		zap.Int("rows", len(rows)))

	return &ExportFile{
		Filename:    fmt.Sprintf("expense_report_%s.%s", s.clock.Now().In(s.loc).Format(dateLayout), format),
		ContentType: exportContentTypes[format],
		Data:        data,
		Rows:        len(rows),
	}, nil
}

func (s *exportService) rows(receipts []*models.Receipt) [][]string {
	rows := make([][]string, 0, len(receipts))
	for _, r := range receipts {
		uploader := "N/A"
		if r.UploaderName != nil && *r.UploaderName != "" {
			uploader = *r.UploaderName
		}
		rows = append(rows, []string{
			r.ID.String(),
			r.VendorName,
			r.Date.Format(dateLayout),
			r.CreatedAt.In(s.loc).Format("2006-01-02 15:04:05"),
			r.TotalAmount.StringFixed(2),
			r.Currency,
			r.Category,
			uploader,
		})
	}
	return rows
}

func renderCSV(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(ExportColumns); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderXLSX(rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Expenses"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	for i, h := range ExportColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 38) // id
	_ = f.SetColWidth(sheet, "B", "B", 30) // vendor
	_ = f.SetColWidth(sheet, "C", "D", 20) // dates
	_ = f.SetColWidth(sheet, "E", "F", 12)
	_ = f.SetColWidth(sheet, "G", "H", 24)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func renderPDF(company string, rows [][]string) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(0, 10, tr(fmt.Sprintf("Expense report - %s", company)))
	pdf.Ln(12)

	// ID column is narrowed to the short id prefix.
	colWidths := []float64{24, 62, 26, 38, 26, 20, 40, 41}
	header := func() {
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(240, 240, 240)
		for i, h := range ExportColumns {
			pdf.CellFormat(colWidths[i], 7, h, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(7)
		pdf.SetFont("Arial", "", 9)
	}
	header()

	for _, row := range rows {
		_, pageHeight := pdf.GetPageSize()
		_, _, _, bottom := pdf.GetMargins()
		if pdf.GetY()+7 > pageHeight-bottom {
			pdf.AddPage()
			header()
		}
		for i, v := range row {
			align := "L"
			if i == 4 {
				align = "R"
			}
			if i == 0 && len(v) > 8 {
				v = v[:8]
			}
			pdf.CellFormat(colWidths[i], 7, tr(v), "1", 0, align, false, 0, "")
		}
		pdf.Ln(7)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
