package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sandeepkv93/security-monitoring-service/internal/domain"
	"github.com/sandeepkv93/security-monitoring-service/internal/http/response"
	"github.com/sandeepkv93/security-monitoring-service/internal/observability"
	"github.com/sandeepkv93/security-monitoring-service/internal/service"
)

// SecurityHandler serves the administrator security console.
type SecurityHandler struct {
	events       *service.SecurityEventStore
	detector     *service.AnomalyDetector
	orchestrator *service.SecurityResponseOrchestrator
}

func NewSecurityHandler(events *service.SecurityEventStore, detector *service.AnomalyDetector, orchestrator *service.SecurityResponseOrchestrator) *SecurityHandler {
	return &SecurityHandler{events: events, detector: detector, orchestrator: orchestrator}
}

type anomalyReport struct {
	Type     string         `json:"type"`
	UserID   uint           `json:"user_id"`
	Severity string         `json:"severity"`
	Details  map[string]any `json:"details"`
}

type lockdownRequest struct {
	Reason string `json:"reason"`
}

var reportableAnomalies = map[domain.AnomalyType]bool{
	domain.AnomalySuspiciousLogin:     true,
	domain.AnomalyHighFrequency:       true,
	domain.AnomalyPrivilegeEscalation: true,
	domain.AnomalyBruteForce:          true,
}

func (h *SecurityHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	window, ok := parseWindow(r.URL.Query().Get("window"))
	if !ok {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "window must be a positive duration or millisecond count", nil)
		return
	}
	m, err := h.events.GetMetrics(r.Context(), window)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, m)
}

func (h *SecurityHandler) Events(w http.ResponseWriter, r *http.Request) {
	filter, errs := parseEventFilter(r)
	if len(errs) > 0 {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "invalid event filter", errs)
		return
	}
	page, err := h.events.GetSecurityEvents(r.Context(), filter)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, page)
}

func (h *SecurityHandler) Export(w http.ResponseWriter, r *http.Request) {
	format, ok := service.ParseExportFormat(r.URL.Query().Get("format"))
	if !ok {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "format must be json or csv", nil)
		return
	}
	filter, errs := parseEventFilter(r)
	if len(errs) > 0 {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "invalid event filter", errs)
		return
	}
	body, err := h.events.ExportLogs(r.Context(), filter, format)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "security.export", "format", string(format), "bytes", len(body))
	response.Attachment(w, http.StatusOK, format.ContentType(), "security-events."+string(format), body)
}

// Report returns the structured report, or its plain text rendering with format=text.
func (h *SecurityHandler) Report(w http.ResponseWriter, r *http.Request) {
	period, ok := service.ParseReportPeriod(r.URL.Query().Get("period"))
	if !ok {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "period must be daily, weekly or monthly", nil)
		return
	}
	report, err := h.events.GenerateReport(r.Context(), period)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	if strings.EqualFold(r.URL.Query().Get("format"), "text") {
		response.Attachment(w, http.StatusOK, "text/plain; charset=utf-8", "security-report-"+string(period)+".txt", []byte(report.Render()))
		return
	}
	response.JSON(w, r, http.StatusOK, report)
}

// ReportAnomaly accepts an externally detected anomaly and runs it through the same
// persistence and response path as detector findings.
func (h *SecurityHandler) ReportAnomaly(w http.ResponseWriter, r *http.Request) {
	var req anomalyReport
	if !decodeJSON(w, r, &req) {
		return
	}
	var errs []string
	kind := domain.AnomalyType(strings.ToLower(strings.TrimSpace(req.Type)))
	if !reportableAnomalies[kind] {
		errs = append(errs, "type is not a known anomaly type")
	}
	if req.UserID == 0 {
		errs = append(errs, "user_id is required")
	}
	sev, ok := domain.ParseSeverity(req.Severity)
	if !ok {
		errs = append(errs, "severity is invalid")
	}
	if len(errs) > 0 {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "invalid anomaly", errs)
		return
	}
	resp, err := h.detector.HandleAnomaly(r.Context(), domain.AnomalyEvent{
		Type:     kind,
		UserID:   req.UserID,
		Severity: sev,
		Details:  req.Details,
	})
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "security.anomaly.reported", "anomaly_type", string(kind), "target_user_id", req.UserID)
	response.JSON(w, r, http.StatusAccepted, map[string]any{"response": resp})
}

func (h *SecurityHandler) LockdownStatus(w http.ResponseWriter, r *http.Request) {
	state, err := h.orchestrator.LockdownState(r.Context())
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, state)
}

func (h *SecurityHandler) ActivateLockdown(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req lockdownRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := h.orchestrator.ActivateEmergencyLockdown(r.Context(), req.Reason, fmt.Sprintf("admin_%d", id.UserID))
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	state, err := h.orchestrator.LockdownState(r.Context())
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "security.lockdown.activate", "user_id", id.UserID, "changed", resp != nil)
	response.JSON(w, r, http.StatusOK, map[string]any{"activated": resp != nil, "response": resp, "state": state})
}

func (h *SecurityHandler) DeactivateLockdown(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	changed, err := h.orchestrator.DeactivateEmergencyLockdown(r.Context(), id.UserID)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "security.lockdown.deactivate", "user_id", id.UserID, "changed", changed)
	response.JSON(w, r, http.StatusOK, map[string]bool{"deactivated": changed})
}

func (h *SecurityHandler) BlockedIPs(w http.ResponseWriter, r *http.Request) {
	blocks, err := h.orchestrator.ListBlockedIPs(r.Context())
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	if blocks == nil {
		blocks = []service.IPBlock{}
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"blocks": blocks})
}

func (h *SecurityHandler) UnblockIP(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	ip := chi.URLParam(r, "ip")
	if err := h.orchestrator.UnblockIP(r.Context(), ip, id.UserID); err != nil {
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "security.ip.unblock", "user_id", id.UserID, "target_ip", ip)
	response.JSON(w, r, http.StatusOK, map[string]string{"unblocked": ip})
}

func (h *SecurityHandler) UnlockAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	target, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || target == 0 {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "account id must be a positive integer", nil)
		return
	}
	if err := h.orchestrator.UnlockAccount(r.Context(), uint(target), id.UserID); err != nil {
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "security.account.unlock", "user_id", id.UserID, "target_user_id", target)
	response.JSON(w, r, http.StatusOK, map[string]any{"unlocked": target})
}

func (h *SecurityHandler) Responses(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"))
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "limit must be an integer", nil)
		return
	}
	records, err := h.orchestrator.RecentResponses(r.Context(), limit)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	if records == nil {
		records = []domain.SecurityResponseRecord{}
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"responses": records})
}
