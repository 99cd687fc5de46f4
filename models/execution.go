package models

import (
	"fmt"
	"time"
)

// EvidenceType distinguishes uploaded files from external links.
type EvidenceType string

const (
	EvidenceFile EvidenceType = "FILE"
	EvidenceLink EvidenceType = "LINK"
)

// EvidenceStatus is the review state of a submitted evidence.
type EvidenceStatus string

const (
	EvidencePending  EvidenceStatus = "PENDING"
	EvidenceApproved EvidenceStatus = "APPROVED"
	EvidenceRejected EvidenceStatus = "REJECTED"
)

// Evidence is a file or link submitted to substantiate execution of a
// checkpoint. It is exclusively owned by its ExecutionRecord and never
// referenced elsewhere; a re-upload replaces it wholesale.
type Evidence struct {
	Type          EvidenceType   `json:"type"`
	URL           string         `json:"url"`
	FileName      string         `json:"fileName,omitempty"`
	UploadedBy    string         `json:"uploadedBy"`
	UploadedAt    time.Time      `json:"uploadedAt"`
	Status        EvidenceStatus `json:"status,omitempty"`
	AdminComment  string         `json:"adminComment,omitempty"`
	ApprovedBy    string         `json:"approvedBy,omitempty"`
	RejectionDate *time.Time     `json:"rejectionDate,omitempty"`
}

// EffectiveStatus treats a missing status on stored legacy evidence as
// PENDING, matching how historical records predating the status field are
// displayed.
func (e *Evidence) EffectiveStatus() EvidenceStatus {
	if e == nil {
		return ""
	}
	if e.Status == "" {
		return EvidencePending
	}
	return e.Status
}

// Approve moves the evidence to APPROVED. Valid from PENDING or REJECTED;
// APPROVED is terminal for this evidence instance.
func (e *Evidence) Approve(approvedBy, comment string) error {
	switch e.EffectiveStatus() {
	case EvidencePending, EvidenceRejected:
	default:
		return fmt.Errorf("cannot approve evidence in status %s", e.EffectiveStatus())
	}
	e.Status = EvidenceApproved
	e.ApprovedBy = approvedBy
	e.AdminComment = comment
	e.RejectionDate = nil
	return nil
}

// Reject moves the evidence to REJECTED and records the rejection date.
// A reviewer comment is mandatory. Valid only from PENDING.
func (e *Evidence) Reject(comment string) error {
	if e.EffectiveStatus() != EvidencePending {
		return fmt.Errorf("cannot reject evidence in status %s", e.EffectiveStatus())
	}
	if comment == "" {
		return fmt.Errorf("a reviewer comment is required to reject evidence")
	}
	now := time.Now()
	e.Status = EvidenceRejected
	e.AdminComment = comment
	e.RejectionDate = &now
	return nil
}

// DaysOpen returns the whole days elapsed since rejection, used for display
// aging only. Defined only while the evidence is REJECTED.
func (e *Evidence) DaysOpen(now time.Time) int {
	if e.EffectiveStatus() != EvidenceRejected || e.RejectionDate == nil {
		return 0
	}
	return int(now.Sub(*e.RejectionDate).Hours() / 24)
}

// ExecutionRecord is one month's planned/executed/delayed/evidence state for
// a requirement in a given year. Month matches its index in the owning
// twelve-record sequence.
type ExecutionRecord struct {
	Month    int       `json:"month"`
	Planned  bool      `json:"planned"`
	Executed bool      `json:"executed"`
	Delayed  bool      `json:"delayed"`
	Evidence *Evidence `json:"evidence,omitempty"`
}

// Done reports whether this month counts as executed. Evidence presence is
// the operative signal; the executed flag is kept for legacy records that
// were marked done without an upload.
func (r *ExecutionRecord) Done() bool {
	return r.Executed || r.Evidence != nil
}

// AttachEvidence replaces any existing evidence with a fresh PENDING one.
// A re-upload over REJECTED (or APPROVED) evidence starts a new lifecycle;
// rejection fields never survive a re-upload.
func (r *ExecutionRecord) AttachEvidence(ev Evidence) {
	ev.Status = EvidencePending
	ev.ApprovedBy = ""
	ev.RejectionDate = nil
	if ev.UploadedAt.IsZero() {
		ev.UploadedAt = time.Now()
	}
	r.Evidence = &ev
	r.Executed = true
	r.Delayed = false
}

// GeneratePlan builds the twelve execution records for a freshly created
// requirement. Only planned comes from the periodicity; execution state and
// evidence start empty.
func GeneratePlan(p Periodicity) ([]ExecutionRecord, error) {
	scheduled, err := p.Expand()
	if err != nil {
		return nil, err
	}
	plan := make([]ExecutionRecord, MonthsPerYear)
	for i := range plan {
		plan[i] = ExecutionRecord{Month: i, Planned: scheduled[i]}
	}
	return plan, nil
}
