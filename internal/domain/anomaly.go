package domain

import "time"

type AnomalyType string

const (
	AnomalySuspiciousLogin     AnomalyType = "suspicious_login"
	AnomalyHighFrequency       AnomalyType = "high_frequency"
	AnomalyPrivilegeEscalation AnomalyType = "privilege_escalation"
	AnomalyBruteForce          AnomalyType = "brute_force"
)

// AnomalyEvent is produced by the detector and consumed once by the orchestrator. It is not persisted.
type AnomalyEvent struct {
	Type       AnomalyType    `json:"type"`
	UserID     uint           `json:"user_id"`
	Severity   Severity       `json:"severity"`
	Details    map[string]any `json:"details,omitempty"`
	DetectedAt time.Time      `json:"detected_at"`
}

// Message returns details.message, or a generic description when absent.
func (e AnomalyEvent) Message() string {
	if msg, ok := e.Details["message"].(string); ok && msg != "" {
		return msg
	}
	return "Anomaly detected"
}
