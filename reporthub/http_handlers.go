// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package reporthub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/AN-MOL-K/TeamX-Disaster-Hub/internal/auth"
)

// ReportAPI is the service surface the HTTP layer depends on.
type ReportAPI interface {
	SubmitReport(ctx context.Context, userID string, req *SubmitReportRequest) (*SubmitReportResponse, error)
	ListReports(ctx context.Context, filter ListFilter) ([]ReportSummary, error)
	GetReport(ctx context.Context, reportID string) (*ReportDetail, error)
	VerifyReport(ctx context.Context, reportID, userID string) (*VerifyResponse, error)
	PurgeReport(ctx context.Context, reportID string) error
	Stats(ctx context.Context) (*StatsResponse, error)
}

// HTTPReportHandlers provides HTTP handlers for the report hub API.
// Requests must pass through JWTAuth.Middleware first; handlers read
// identity and role from the request context.
type HTTPReportHandlers struct {
	service ReportAPI
	logger  *slog.Logger
}

// NewHTTPReportHandlers creates a new instance of report handlers
func NewHTTPReportHandlers(service ReportAPI, logger *slog.Logger) *HTTPReportHandlers {
	return &HTTPReportHandlers{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes attaches all report hub routes to mux.
func (h *HTTPReportHandlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/reports", h.HandleSubmit)
	mux.HandleFunc("GET /api/reports", h.HandleList)
	mux.HandleFunc("GET /api/reports/{id}", h.HandleGet)
	mux.HandleFunc("POST /api/reports/{id}/verify", h.HandleVerify)
	mux.HandleFunc("DELETE /api/reports/{id}", h.HandlePurge)
	mux.HandleFunc("GET /api/stats", h.HandleStats)
}

func (h *HTTPReportHandlers) identity(w http.ResponseWriter, r *http.Request) (userID string, role Role, ok bool) {
	userID, found := auth.GetUserID(r.Context())
	if !found || userID == "" {
		h.writeError(w, http.StatusUnauthorized, "authentication_failed", "Missing user identity")
		return "", RoleCitizen, false
	}
	roleStr, _ := auth.GetRole(r.Context())
	role, err := ParseRole(roleStr)
	if err != nil {
		role = RoleCitizen
	}
	return userID, role, true
}

// HandleSubmit accepts one queued report from a client
func (h *HTTPReportHandlers) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	userID, role, ok := h.identity(w, r)
	if !ok {
		return
	}
	if !role.Can(CapSubmitReports) {
		h.writeError(w, http.StatusForbidden, "forbidden", "Role cannot submit reports")
		return
	}

	var req SubmitReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse submit request")
		return
	}
	if err := ValidateSubmitRequest(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	response, err := h.service.SubmitReport(r.Context(), userID, &req)
	if err != nil {
		h.logger.Error("Failed to submit report", "error", err, "report_id", req.ReportID, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "submit_failed", "Failed to store report")
		return
	}

	status := http.StatusCreated
	if response.Status == "duplicate" {
		status = http.StatusOK
	}
	h.writeJSON(w, status, response)
}

// HandleList returns the filtered report feed
func (h *HTTPReportHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := h.identity(w, r); !ok {
		return
	}

	filter := ListFilter{
		Type:     r.URL.Query().Get("type"),
		Severity: r.URL.Query().Get("severity"),
		Search:   r.URL.Query().Get("search"),
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	reports, err := h.service.ListReports(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list reports", "error", err)
		h.writeError(w, http.StatusInternalServerError, "list_failed", "Failed to list reports")
		return
	}
	h.writeJSON(w, http.StatusOK, &ListReportsResponse{Reports: reports})
}

// HandleGet returns one report with attachments
func (h *HTTPReportHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := h.identity(w, r); !ok {
		return
	}

	reportID := r.PathValue("id")
	detail, err := h.service.GetReport(r.Context(), reportID)
	if errors.Is(err, ErrReportNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "Report not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to get report", "error", err, "report_id", reportID)
		h.writeError(w, http.StatusInternalServerError, "get_failed", "Failed to load report")
		return
	}
	h.writeJSON(w, http.StatusOK, detail)
}

// HandleVerify records a verification vote on a report
func (h *HTTPReportHandlers) HandleVerify(w http.ResponseWriter, r *http.Request) {
	userID, role, ok := h.identity(w, r)
	if !ok {
		return
	}
	if !role.Can(CapVerifyReports) {
		h.writeError(w, http.StatusForbidden, "forbidden", "Role cannot verify reports")
		return
	}

	reportID := r.PathValue("id")
	response, err := h.service.VerifyReport(r.Context(), reportID, userID)
	if errors.Is(err, ErrReportNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "Report not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to verify report", "error", err, "report_id", reportID, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "verify_failed", "Failed to record verification")
		return
	}
	h.writeJSON(w, http.StatusOK, response)
}

// HandlePurge removes a report entirely
func (h *HTTPReportHandlers) HandlePurge(w http.ResponseWriter, r *http.Request) {
	userID, role, ok := h.identity(w, r)
	if !ok {
		return
	}
	if !role.Can(CapPurgeReports) {
		h.writeError(w, http.StatusForbidden, "forbidden", "Role cannot purge reports")
		return
	}

	reportID := r.PathValue("id")
	err := h.service.PurgeReport(r.Context(), reportID)
	if errors.Is(err, ErrReportNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "Report not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to purge report", "error", err, "report_id", reportID, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "purge_failed", "Failed to purge report")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleStats returns aggregate report counts
func (h *HTTPReportHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	_, role, ok := h.identity(w, r)
	if !ok {
		return
	}
	if !role.Can(CapViewStats) {
		h.writeError(w, http.StatusForbidden, "forbidden", "Role cannot view stats")
		return
	}

	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.logger.Error("Failed to compute stats", "error", err)
		h.writeError(w, http.StatusInternalServerError, "stats_failed", "Failed to compute stats")
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *HTTPReportHandlers) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

func (h *HTTPReportHandlers) writeError(w http.ResponseWriter, status int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(&ErrorResponse{Error: errorCode, Message: message}); err != nil {
		h.logger.Error("Failed to encode error response", "error", err)
	}
}
