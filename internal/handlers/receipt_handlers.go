package handlers

import (
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Mateo9804/gastoclaro/internal/apperrors"
	"github.com/Mateo9804/gastoclaro/internal/common"
	"github.com/Mateo9804/gastoclaro/internal/models"
	"github.com/Mateo9804/gastoclaro/internal/services"
)

// ReceiptHandlers handles receipt related HTTP requests
type ReceiptHandlers struct {
	receiptService services.ReceiptService
	loc            *time.Location
}

// NewReceiptHandlers creates a new receipt handlers instance
func NewReceiptHandlers(receiptService services.ReceiptService, loc *time.Location) *ReceiptHandlers {
	if loc == nil {
		loc = time.UTC
	}
	return &ReceiptHandlers{receiptService: receiptService, loc: loc}
}

// UpdateReceiptResponse carries the saved receipt and advisory warnings.
type UpdateReceiptResponse struct {
	Receipt  *models.Receipt  `json:"receipt"`
	Warnings []models.Warning `json:"warnings"`
}

// ListReceipts lists the tenant's receipts
func (h *ReceiptHandlers) ListReceipts(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return common.SendAppError(c, err)
	}

	filter, err := parseReceiptFilter(c, h.loc)
	if err != nil {
		return common.SendAppError(c, err)
	}
	if status := c.QueryParam("status"); status != "" {
		s := models.ReceiptStatus(status)
		if !s.Valid() {
			return common.SendValidationError(c, "status", "must be one of pending, processing, completed, error")
		}
		filter.Status = &s
	}
	switch sort := models.ReceiptSort(c.QueryParam("sort")); sort {
	case "", models.SortNewest, models.SortOldest, models.SortAmountHigh, models.SortAmountLow:
		filter.Sort = sort
	default:
		return common.SendValidationError(c, "sort", "must be one of newest, oldest, amount_high, amount_low")
	}

	receipts, err := h.receiptService.List(c.Request().Context(), p, filter)
	if err != nil {
		return common.SendAppError(c, err)
	}
	return c.JSON(http.StatusOK, receipts)
}

// parseReceiptFilter reads the category and date filters shared by list and export.
func parseReceiptFilter(c echo.Context, loc *time.Location) (models.ReceiptFilter, error) {
	var filter models.ReceiptFilter
	if category := strings.TrimSpace(c.QueryParam("category")); category != "" {
		filter.Category = &category
	}
	date, err := common.ParseDateFilter(c.QueryParam("date"), "date", loc)
	if err != nil {
		return filter, apperrors.NewValidation("date", err.Error())
	}
	filter.Date = date
	uploadDate, err := common.ParseDateFilter(c.QueryParam("upload_date"), "upload_date", loc)
	if err != nil {
		return filter, apperrors.NewValidation("upload_date", err.Error())
	}
	filter.UploadDate = uploadDate
	return filter, nil
}

// UploadReceipts stores a multipart batch of receipt files
func (h *ReceiptHandlers) UploadReceipts(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return common.SendAppError(c, err)
	}

	form, err := c.MultipartForm()
	if err != nil {
		return common.SendValidationError(c, "receipts", "a multipart form with receipt files is required")
	}
	headers := form.File["receipts[]"]
	if len(headers) == 0 {
		headers = form.File["receipts"]
	}
	if len(headers) == 0 {
		return common.SendValidationError(c, "receipts", "is required")
	}

	files := make([]services.UploadFile, 0, len(headers))
	for _, fh := range headers {
		files = append(files, uploadFile(fh))
	}

	extractions := collectExtractions(form.Value, len(files))

	created, err := h.receiptService.Upload(c.Request().Context(), p, files, extractions)
	if err != nil {
		return common.SendAppError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

func uploadFile(fh *multipart.FileHeader) services.UploadFile {
	return services.UploadFile{
		Name: fh.Filename,
		Size: fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

var (
	ocrFieldKey = regexp.MustCompile(`^ocr_results\[(\d+)\]\[([a-z_]+)\]$`)
	ocrIndexKey = regexp.MustCompile(`^ocr_results\[(\d*)\]$`)
)

// collectExtractions gathers the OCR results either as bracketed form fields
// (ocr_results[0][vendor_name]) or as one JSON document per file
// (ocr_results[] or ocr_results[0]). Indices line up with the uploaded files.
// Entries stay undecoded until the service knows the tenant's plan.
func collectExtractions(values map[string][]string, n int) []models.ExtractionPayload {
	out := make([]models.ExtractionPayload, n)

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if m := ocrFieldKey.FindStringSubmatch(key); m != nil {
			idx, _ := strconv.Atoi(m[1])
			if idx >= n || len(values[key]) == 0 {
				continue
			}
			if out[idx].Fields == nil {
				out[idx].Fields = map[string]string{}
			}
			out[idx].Fields[m[2]] = values[key][0]
			continue
		}

		m := ocrIndexKey.FindStringSubmatch(key)
		if m == nil {
			continue
		}
		for i, raw := range values[key] {
			idx := i
			if m[1] != "" {
				idx, _ = strconv.Atoi(m[1])
			}
			if idx < n {
				out[idx].JSON = []byte(raw)
			}
		}
	}
	return out
}

// GetReceipt handles GET /receipts/:id
func (h *ReceiptHandlers) GetReceipt(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return common.SendAppError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return common.SendAppError(c, err)
	}
	receipt, err := h.receiptService.Get(c.Request().Context(), p, id)
	if err != nil {
		return common.SendAppError(c, err)
	}
	return c.JSON(http.StatusOK, receipt)
}

// UpdateReceipt applies a partial update and reports business warnings
func (h *ReceiptHandlers) UpdateReceipt(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return common.SendAppError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return common.SendAppError(c, err)
	}
	var patch models.ReceiptPatch
	if err := bindAndValidate(c, &patch); err != nil {
		return common.SendAppError(c, err)
	}

	receipt, warnings, err := h.receiptService.Update(c.Request().Context(), p, id, patch)
	if err != nil {
		return common.SendAppError(c, err)
	}
	return c.JSON(http.StatusOK, UpdateReceiptResponse{Receipt: receipt, Warnings: warnings})
}

// ApproveReceipt handles POST /receipts/:id/approve
func (h *ReceiptHandlers) ApproveReceipt(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return common.SendAppError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return common.SendAppError(c, err)
	}
	receipt, err := h.receiptService.Approve(c.Request().Context(), p, id)
	if err != nil {
		return common.SendAppError(c, err)
	}
	return c.JSON(http.StatusOK, receipt)
}

// DeleteReceipt handles DELETE /receipts/:id
func (h *ReceiptHandlers) DeleteReceipt(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return common.SendAppError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return common.SendAppError(c, err)
	}
	if err := h.receiptService.Delete(c.Request().Context(), p, id); err != nil {
		return common.SendAppError(c, err)
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "Receipt deleted"})
}

// ReceiptHistory returns the audit trail of one receipt
func (h *ReceiptHandlers) ReceiptHistory(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return common.SendAppError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return common.SendAppError(c, err)
	}
	logs, err := h.receiptService.History(c.Request().Context(), p, id)
	if err != nil {
		return common.SendAppError(c, err)
	}
	return c.JSON(http.StatusOK, logs)
}

// ListActivity returns the receipt audit trail of the tenant
func (h *ReceiptHandlers) ListActivity(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return common.SendAppError(c, err)
	}

	filters := &models.AuditLogFilters{}
	if action := strings.ToUpper(c.QueryParam("action")); action != "" {
		filters.Action = &action
	}
	if userID := c.QueryParam("user_id"); userID != "" {
		uid, err := common.ValidateUUID(userID, "user_id")
		if err != nil {
			return common.SendValidationError(c, "user_id", err.Error())
		}
		filters.ChangedBy = &uid
	}
	filters.Limit, _ = strconv.Atoi(c.QueryParam("limit"))
	filters.Offset, _ = strconv.Atoi(c.QueryParam("offset"))

	logs, err := h.receiptService.Activity(c.Request().Context(), p, filters)
	if err != nil {
		return common.SendAppError(c, err)
	}
	return c.JSON(http.StatusOK, logs)
}


