package api

import (
	"net/http"
	"strconv"

	"github.com/bulbnet/bulbnet-core/internal/device"
)

// handleListAudit returns paginated audit records with optional filters.
//
// Query parameters:
//   - device_id: filter by device
//   - username: filter by the user (or system label) that made the change
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := device.AuditFilter{
		DeviceID: q.Get("device_id"),
		Username: q.Get("username"),
	}

	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit records", "error", err)
		writeInternalError(w, "Failed to list audit records")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
