package models

import (
	"errors"
	"testing"
	"time"

	"github.com/agiledragon/gomonkey/v2"
	"github.com/stretchr/testify/assert"
)

// FixedTime is used to patch time.Now in tests.
var FixedTime = time.Date(2025, time.March, 5, 0, 0, 0, 0, time.UTC)

func TestGeneratePlan(t *testing.T) {
	plan, err := GeneratePlan(Quarterly)
	assert.NoError(t, err)
	assert.Len(t, plan, MonthsPerYear)

	scheduled, err := Quarterly.Expand()
	assert.NoError(t, err)
	for i, rec := range plan {
		assert.Equal(t, i, rec.Month)
		assert.Equal(t, scheduled[i], rec.Planned)
		assert.False(t, rec.Executed)
		assert.False(t, rec.Delayed)
		assert.Nil(t, rec.Evidence)
	}
}

func TestGeneratePlanUnknownPeriodicity(t *testing.T) {
	_, err := GeneratePlan(Periodicity("decennial"))
	assert.True(t, errors.Is(err, ErrInvalidPeriodicity))
}

func TestEvidenceLifecycle(t *testing.T) {
	patches := gomonkey.ApplyFunc(time.Now, func() time.Time {
		return FixedTime
	})
	defer patches.Reset()

	var rec ExecutionRecord
	rec.AttachEvidence(Evidence{
		Type:       EvidenceFile,
		URL:        "https://bucket/evidence.pdf",
		FileName:   "evidence.pdf",
		UploadedBy: "worker@plant.local",
	})

	assert.NotNil(t, rec.Evidence)
	assert.Equal(t, EvidencePending, rec.Evidence.Status)
	assert.Equal(t, FixedTime, rec.Evidence.UploadedAt)
	assert.True(t, rec.Executed, "evidence presence marks the month done")
	assert.False(t, rec.Delayed)

	// Approve from PENDING succeeds.
	err := rec.Evidence.Approve("admin@plant.local", "looks good")
	assert.NoError(t, err)
	assert.Equal(t, EvidenceApproved, rec.Evidence.Status)
	assert.Equal(t, "admin@plant.local", rec.Evidence.ApprovedBy)

	// APPROVED is terminal for this instance.
	err = rec.Evidence.Approve("admin@plant.local", "again")
	assert.Error(t, err)
	err = rec.Evidence.Reject("nope")
	assert.Error(t, err)
}

func TestEvidenceRejectAndReupload(t *testing.T) {
	patches := gomonkey.ApplyFunc(time.Now, func() time.Time {
		return FixedTime
	})
	defer patches.Reset()

	var rec ExecutionRecord
	rec.AttachEvidence(Evidence{Type: EvidenceLink, URL: "https://example.com/doc"})

	// Rejecting without a comment is refused.
	err := rec.Evidence.Reject("")
	assert.Error(t, err)

	err = rec.Evidence.Reject("illegible scan")
	assert.NoError(t, err)
	assert.Equal(t, EvidenceRejected, rec.Evidence.Status)
	assert.NotNil(t, rec.Evidence.RejectionDate)
	assert.Equal(t, FixedTime, *rec.Evidence.RejectionDate)

	// Rejected evidence can be approved after review.
	clone := *rec.Evidence
	assert.NoError(t, clone.Approve("admin@plant.local", ""))

	// A re-upload resets the lifecycle to PENDING and clears rejection state.
	rec.AttachEvidence(Evidence{Type: EvidenceFile, URL: "https://bucket/v2.pdf", FileName: "v2.pdf"})
	assert.Equal(t, EvidencePending, rec.Evidence.Status)
	assert.Nil(t, rec.Evidence.RejectionDate)
	assert.Empty(t, rec.Evidence.ApprovedBy)
}

func TestEvidenceDaysOpen(t *testing.T) {
	rejectedAt := FixedTime.AddDate(0, 0, -3)
	ev := Evidence{Status: EvidenceRejected, RejectionDate: &rejectedAt}
	assert.Equal(t, 3, ev.DaysOpen(FixedTime))

	// Not meaningful outside REJECTED.
	pending := Evidence{Status: EvidencePending}
	assert.Equal(t, 0, pending.DaysOpen(FixedTime))
}

func TestEvidenceEffectiveStatusDefaultsToPending(t *testing.T) {
	ev := &Evidence{URL: "https://bucket/legacy.pdf"}
	assert.Equal(t, EvidencePending, ev.EffectiveStatus())

	var missing *Evidence
	assert.Equal(t, EvidenceStatus(""), missing.EffectiveStatus())
}
