package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Mateo9804/gastoclaro/internal/common"
	"github.com/Mateo9804/gastoclaro/internal/services"
)

type ExportHandlers struct {
	exportService services.ExportService
	loc           *time.Location
}

// NewExportHandlers creates the export handlers; loc is the zone of the date columns
func NewExportHandlers(exportService services.ExportService, loc *time.Location) *ExportHandlers {
	if loc == nil {
		loc = time.UTC
	}
	return &ExportHandlers{exportService: exportService, loc: loc}
}

// ExportReceipts streams the completed receipts as a csv, xlsx or pdf attachment
func (h *ExportHandlers) ExportReceipts(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return common.SendAppError(c, err)
	}
	format, err := services.ParseExportFormat(c.QueryParam("format"))
	if err != nil {
		return common.SendAppError(c, err)
	}
	filter, err := parseReceiptFilter(c, h.loc)
	if err != nil {
		return common.SendAppError(c, err)
	}

	file, err := h.exportService.Export(c.Request().Context(), p, services.ExportFilter{
		Category:   filter.Category,
		Date:       filter.Date,
		UploadDate: filter.UploadDate,
	}, format)
	if err != nil {
		return common.SendAppError(c, err)
	}

	header := c.Response().Header()
	header.Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%s", file.Filename))
	header.Set("Cache-Control", "must-revalidate, post-check=0, pre-check=0")
	header.Set("Pragma", "no-cache")
	header.Set("Expires", "0")
	return c.Blob(http.StatusOK, file.ContentType, file.Data)
}
