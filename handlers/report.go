package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"attendance-insights-api/reports"

	"github.com/gin-gonic/gin"
)

// DownloadReport streams a report as a spreadsheet, or as CSV when
// ?format=csv is given.
func (h *AlertsHandler) DownloadReport(c *gin.Context) {
	crit, ok := bindCriteria(c)
	if !ok {
		return
	}
	rep, err := h.svc.DownloadReport(crit, c.Param("reportType"))
	if err != nil {
		respondError(c, err)
		return
	}

	var (
		buf         bytes.Buffer
		ext         = "xlsx"
		contentType = reports.ContentTypeXLSX
		write       = reports.WriteXLSX
	)
	if strings.EqualFold(c.Query("format"), "csv") {
		ext, contentType, write = "csv", reports.ContentTypeCSV, reports.WriteCSV
	}
	if err := write(&buf, rep.Table); err != nil {
		respondError(c, fmt.Errorf("write %s report: %w", rep.Table.Type, err))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, rep.Filename(ext)))
	c.Header("Access-Control-Expose-Headers", "Content-Disposition")
	c.Data(http.StatusOK, contentType, buf.Bytes())
}
