package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sandeepkv93/security-monitoring-service/internal/domain"
	"github.com/sandeepkv93/security-monitoring-service/internal/repository"
)

type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
)

var csvHeader = []string{"ID", "Type", "Severity", "User ID", "IP Address", "Message", "Created At"}

func ParseExportFormat(raw string) (ExportFormat, bool) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ExportJSON:
		return ExportJSON, true
	case ExportCSV:
		return ExportCSV, true
	default:
		return "", false
	}
}

func (f ExportFormat) ContentType() string {
	if f == ExportCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}

// ExportLogs renders matching events. An empty match set renders "[]" or a header-only CSV.
func (s *SecurityEventStore) ExportLogs(ctx context.Context, filter repository.SecurityEventFilter, format ExportFormat) ([]byte, error) {
	if format != ExportJSON && format != ExportCSV {
		return nil, &ValidationError{Errors: []string{fmt.Sprintf("unsupported export format %q", format)}}
	}
	if filter.Limit <= 0 {
		filter.Limit = repository.MaxPageSize
	}
	page, err := s.GetSecurityEvents(ctx, filter)
	if err != nil {
		return nil, err
	}
	if format == ExportCSV {
		return encodeEventsCSV(page.Events)
	}
	return json.MarshalIndent(page.Events, "", "  ")
}

func encodeEventsCSV(events []domain.SecurityEvent) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, ev := range events {
		userID := ""
		if ev.UserID != nil {
			userID = strconv.FormatUint(uint64(*ev.UserID), 10)
		}
		ip := ""
		if ev.IPAddress != nil {
			ip = *ev.IPAddress
		}
		row := []string{
			strconv.FormatUint(uint64(ev.ID), 10),
			ev.EventType,
			string(ev.Severity),
			userID,
			ip,
			ev.Message,
			ev.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
