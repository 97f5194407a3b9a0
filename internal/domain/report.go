package domain

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ReportReason classifies a content report.
type ReportReason string

// Supported report reasons.
const (
	ReportReasonSpam          ReportReason = "spam"
	ReportReasonHarassment    ReportReason = "harassment"
	ReportReasonInappropriate ReportReason = "inappropriate"
	ReportReasonCopyright     ReportReason = "copyright"
	ReportReasonOther         ReportReason = "other"
)

// Valid reports whether r is a known reason.
func (r ReportReason) Valid() bool {
	switch r {
	case ReportReasonSpam, ReportReasonHarassment, ReportReasonInappropriate,
		ReportReasonCopyright, ReportReasonOther:
		return true
	}
	return false
}

// ReportStatus is the moderation state of a report.
type ReportStatus string

// Possible report status values
const (
	ReportStatusPending   ReportStatus = "pending"
	ReportStatusResolved  ReportStatus = "resolved"
	ReportStatusDismissed ReportStatus = "dismissed"
)

// Valid reports whether s is a known report status.
func (s ReportStatus) Valid() bool {
	return s == ReportStatusPending || s == ReportStatusResolved || s == ReportStatusDismissed
}

// MaxReportDetailsLength bounds the free-text part of a report.
const MaxReportDetailsLength = 1000

// Report validation errors
var (
	ErrInvalidReportReason  = errors.New("invalid report reason")
	ErrReportDetailsTooLong = errors.New("report details must be at most 1000 characters long")
	ErrReportClosed         = errors.New("report has already been handled")
)

// ContentReport is a user's complaint about a published post.
type ContentReport struct {
	ID         uuid.UUID    `json:"id"`
	BlogID     uuid.UUID    `json:"blog_id"`
	ReporterID uuid.UUID    `json:"reporter_id"`
	Reason     ReportReason `json:"reason"`
	Details    string       `json:"details,omitempty"`
	Status     ReportStatus `json:"status"`
	ResolvedBy *uuid.UUID   `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time   `json:"resolved_at,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// NewContentReport creates a pending report.
func NewContentReport(blogID, reporterID uuid.UUID, reason ReportReason, details string) (*ContentReport, error) {
	if blogID == uuid.Nil {
		return nil, ErrEmptyBlogID
	}
	if reporterID == uuid.Nil {
		return nil, ErrEmptyUserID
	}
	if !reason.Valid() {
		return nil, ErrInvalidReportReason
	}
	details = strings.TrimSpace(details)
	if utf8.RuneCountInString(details) > MaxReportDetailsLength {
		return nil, ErrReportDetailsTooLong
	}

	now := time.Now().UTC()
	return &ContentReport{
		ID:         uuid.New(),
		BlogID:     blogID,
		ReporterID: reporterID,
		Reason:     reason,
		Details:    details,
		Status:     ReportStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Close marks a pending report as resolved or dismissed by adminID.
func (r *ContentReport) Close(status ReportStatus, adminID uuid.UUID, now time.Time) error {
	if status != ReportStatusResolved && status != ReportStatusDismissed {
		return ErrInvalidStatus
	}
	if r.Status != ReportStatusPending {
		return ErrReportClosed
	}
	t := now.UTC()
	r.Status = status
	r.ResolvedBy = &adminID
	r.ResolvedAt = &t
	r.UpdatedAt = t
	return nil
}
