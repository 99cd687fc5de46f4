package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"

	model "github.com/afuentesm/NormaTrack/models"
)

func buildRequirement(t *testing.T, id, area string, p model.Periodicity, standards ...string) *model.Requirement {
	t.Helper()
	if len(standards) == 0 {
		standards = []string{"ISO9001"}
	}
	return &model.Requirement{
		ID:              id,
		Clause:          "7.5",
		Standards:       datatypes.NewJSONSlice(standards),
		ResponsibleArea: area,
		Periodicity:     p,
	}
}

func withPlan(t *testing.T, req *model.Requirement, year int, mutate func(plan []model.ExecutionRecord)) *model.Requirement {
	t.Helper()
	plan, err := model.GeneratePlan(req.Periodicity)
	assert.NoError(t, err)
	if mutate != nil {
		mutate(plan)
	}
	assert.NoError(t, req.SetPlan(year, plan))
	return req
}

func TestSpanStatusesQuarterlyCollapsing(t *testing.T) {
	req := buildRequirement(t, "q1", "Quality", model.Quarterly)
	// Executed only in June (month index 5).
	withPlan(t, req, 2025, func(plan []model.ExecutionRecord) {
		plan[5].Executed = true
	})

	spans, err := SpanStatuses(req, 2025)
	assert.NoError(t, err)
	assert.Equal(t, []SpanStatus{SpanPlanned, SpanExecuted, SpanPlanned, SpanPlanned}, spans,
		"only Q2 collapses to executed")
}

func TestSpanStatusesTieBreak(t *testing.T) {
	req := buildRequirement(t, "q2", "Quality", model.Quarterly)
	withPlan(t, req, 2025, func(plan []model.ExecutionRecord) {
		// Q1: delayed and executed in the same span; executed wins.
		plan[0].Delayed = true
		plan[1].Executed = true
		// Q2: delayed only.
		plan[4].Delayed = true
	})

	spans, err := SpanStatuses(req, 2025)
	assert.NoError(t, err)
	assert.Equal(t, SpanExecuted, spans[0])
	assert.Equal(t, SpanDelayed, spans[1])
	assert.Equal(t, SpanPlanned, spans[2])
}

func TestDashboardBimonthlyHalfExecuted(t *testing.T) {
	req := buildRequirement(t, "b1", "Forestry", model.Bimonthly)
	withPlan(t, req, 2025, func(plan []model.ExecutionRecord) {
		for _, m := range []int{0, 2, 4} {
			plan[m].Executed = true
		}
	})

	report, err := BuildDashboard([]model.Requirement{*req}, DashboardFilter{Year: 2025})
	assert.NoError(t, err)
	assert.False(t, report.NotYetApplicable)
	assert.InDelta(t, 50.0, report.Overall, 0.001, "3 of 6 scheduled checkpoints executed")
	assert.Len(t, report.Areas, 1)
	assert.Equal(t, "Forestry", report.Areas[0].Area)
	assert.Equal(t, 6, report.Areas[0].Planned)
	assert.Equal(t, 3, report.Areas[0].Completed)
}

func TestDashboardAnnualApprovedEvidence(t *testing.T) {
	req := buildRequirement(t, "a1", "Safety", model.Annual)
	withPlan(t, req, 2025, nil)

	plan, err := req.PlanForYear(2025)
	assert.NoError(t, err)
	plan[11].AttachEvidence(model.Evidence{
		Type: model.EvidenceFile, URL: "https://bucket/cert.pdf", FileName: "cert.pdf",
	})
	assert.NoError(t, plan[11].Evidence.Approve("admin@plant.local", ""))
	assert.NoError(t, req.SetPlan(2025, plan))

	report, err := BuildDashboard([]model.Requirement{*req}, DashboardFilter{Year: 2025})
	assert.NoError(t, err)
	assert.Equal(t, EvidenceCounts{Pending: 0, Approved: 1, Rejected: 0}, report.Evidence)
	assert.InDelta(t, 100.0, report.Overall, 0.001)
}

func TestDashboardEvidenceCounts(t *testing.T) {
	pendingReq := buildRequirement(t, "e1", "Quality", model.Monthly)
	withPlan(t, pendingReq, 2025, func(plan []model.ExecutionRecord) {
		plan[0].AttachEvidence(model.Evidence{Type: model.EvidenceLink, URL: "https://x/1"})
		plan[1].AttachEvidence(model.Evidence{Type: model.EvidenceLink, URL: "https://x/2"})
	})

	rejectedReq := buildRequirement(t, "e2", "Quality", model.Monthly)
	withPlan(t, rejectedReq, 2025, func(plan []model.ExecutionRecord) {
		plan[3].AttachEvidence(model.Evidence{Type: model.EvidenceLink, URL: "https://x/3"})
		assert.NoError(t, plan[3].Evidence.Reject("wrong document"))
	})

	report, err := BuildDashboard(
		[]model.Requirement{*pendingReq, *rejectedReq},
		DashboardFilter{Year: 2025},
	)
	assert.NoError(t, err)
	assert.Equal(t, EvidenceCounts{Pending: 2, Approved: 0, Rejected: 1}, report.Evidence)
}

func TestDashboardFutureYearNotYetApplicable(t *testing.T) {
	req := buildRequirement(t, "f1", "Quality", model.Monthly)
	withPlan(t, req, 2025, func(plan []model.ExecutionRecord) {
		plan[0].Executed = true
	})

	report, err := BuildDashboard([]model.Requirement{*req}, DashboardFilter{Year: 2027})
	assert.NoError(t, err)
	assert.True(t, report.NotYetApplicable, "2027 is beyond the last year with actuals")
	assert.Zero(t, report.Overall)
	for _, rc := range report.Requirements {
		assert.Zero(t, rc.Completed)
		for _, span := range rc.Spans {
			assert.NotEqual(t, SpanExecuted, span)
			assert.NotEqual(t, SpanDelayed, span)
		}
	}
}

func TestDashboardMalformedPlanSkipAndReport(t *testing.T) {
	good := buildRequirement(t, "g1", "Quality", model.Monthly)
	withPlan(t, good, 2025, func(plan []model.ExecutionRecord) {
		for i := range plan {
			plan[i].Executed = true
		}
	})

	bad := buildRequirement(t, "bad1", "Quality", model.Monthly)
	bad.Plans = datatypes.NewJSONType(model.PlanMap{
		2025: {{Month: 0, Planned: true}},
	})

	report, err := BuildDashboard([]model.Requirement{*good, *bad}, DashboardFilter{Year: 2025})
	assert.Error(t, err, "the malformed requirement is reported")
	assert.Contains(t, err.Error(), "bad1")
	assert.Len(t, report.Requirements, 1, "the healthy requirement still aggregates")
	assert.InDelta(t, 100.0, report.Overall, 0.001)
	assert.Len(t, report.Problems, 1)
}

func TestDashboardFilters(t *testing.T) {
	qual := buildRequirement(t, "s1", "Quality", model.Monthly, "ISO9001")
	withPlan(t, qual, 2025, func(plan []model.ExecutionRecord) {
		for i := range plan {
			plan[i].Executed = true
		}
	})
	forestry := buildRequirement(t, "s2", "Forestry", model.Monthly, "FSC-CoC")
	withPlan(t, forestry, 2025, func(plan []model.ExecutionRecord) {
		plan[0].Executed = true
	})

	all := []model.Requirement{*qual, *forestry}

	byStandard, err := BuildDashboard(all, DashboardFilter{Year: 2025, Standard: "ISO9001"})
	assert.NoError(t, err)
	assert.Len(t, byStandard.Requirements, 1)
	assert.Equal(t, "s1", byStandard.Requirements[0].ID)

	byArea, err := BuildDashboard(all, DashboardFilter{Year: 2025, Area: "Forestry"})
	assert.NoError(t, err)
	assert.Len(t, byArea.Requirements, 1)
	assert.Equal(t, "s2", byArea.Requirements[0].ID)
}

func TestDashboardYearOverYearDeterioration(t *testing.T) {
	req := buildRequirement(t, "y1", "Quality", model.Bimonthly)
	// 2024: all six checkpoints executed.
	withPlan(t, req, 2024, func(plan []model.ExecutionRecord) {
		for _, m := range []int{0, 2, 4, 6, 8, 10} {
			plan[m].Executed = true
		}
	})
	// 2025: only three executed.
	withPlan(t, req, 2025, func(plan []model.ExecutionRecord) {
		for _, m := range []int{0, 2, 4} {
			plan[m].Executed = true
		}
	})

	report, err := BuildDashboard([]model.Requirement{*req}, DashboardFilter{Year: 2025})
	assert.NoError(t, err)
	assert.NotNil(t, report.Deterioration)
	assert.InDelta(t, -50.0, *report.Deterioration, 0.001, "regression from 100% to 50%")
}
