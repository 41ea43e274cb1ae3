package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"classbook/internal/audit"
	"classbook/internal/model"
)

// handleExport streams the XLSX audit of one month. Admin only.
// GET /api/v1/admin/export.xlsx?month=YYYY-MM
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if !(model.Viewer{Roles: roles(r)}).HasRole(model.RoleAdmin) {
		writeError(w, http.StatusForbidden, "admin role required")
		return
	}

	loc := s.bookings.DefaultLocation()
	month, err := time.ParseInLocation("2006-01", r.URL.Query().Get("month"), loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid month format; expected YYYY-MM")
		return
	}

	var buf bytes.Buffer
	if err := s.exporter.Export(r.Context(), &buf, month, month.AddDate(0, 1, 0)); err != nil {
		s.writeErr(w, r, fmt.Errorf("export: %w", err))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, audit.GenerateFilename(month)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
