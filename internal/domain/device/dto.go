package device

import (
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/workflow"
)

type StatusResponse struct {
	DeviceID    string  `json:"device_id"`
	Name        string  `json:"name"`
	Address     string  `json:"address"`
	Port        int     `json:"port"`
	IsActive    bool    `json:"is_active"`
	Cursor      *string `json:"cursor"`
	LastRunAt   *string `json:"last_run_at"`
	LastSuccess bool    `json:"last_success"`
	LastError   *string `json:"last_error"`
	LastCount   int     `json:"last_count"`
}

// NewStatusResponse renders a device and its state for the status query.
func NewStatusResponse(d Device, s State) StatusResponse {
	resp := StatusResponse{
		DeviceID:    d.ID,
		Name:        d.Name,
		Address:     d.Address,
		Port:        d.Port,
		IsActive:    d.IsActive,
		LastSuccess: s.LastSuccess,
		LastError:   s.LastError,
		LastCount:   s.LastCount,
	}
	if !s.Cursor.IsZero() {
		c := s.Cursor.Watermark.Format(time.RFC3339)
		resp.Cursor = &c
	}
	if s.LastRunAt != nil {
		r := s.LastRunAt.Format(time.RFC3339)
		resp.LastRunAt = &r
	}
	return resp
}

// SyncResult is the outcome of one device pull.
type SyncResult struct {
	DeviceID   string                             `json:"device_id"`
	Success    bool                               `json:"success"`
	Error      string                             `json:"error,omitempty"`
	Pulled     int                                `json:"pulled"`
	Stored     int                                `json:"stored"`
	Duplicates int                                `json:"duplicates"`
	Days       int                                `json:"days"`
	Cursor     *string                            `json:"cursor"`
	Rejected   []attendance.RejectedPunch         `json:"rejected,omitempty"`
	Frozen     []*workflow.ReconciliationConflict `json:"frozen,omitempty"`
}
