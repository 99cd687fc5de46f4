package services

import (
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"

	model "github.com/afuentesm/NormaTrack/models"
)

// SpanStatus is the collapsed state of one checkpoint span (the contiguous
// block of months sharing a single checkpoint under a non-monthly
// periodicity).
type SpanStatus string

const (
	SpanExecuted SpanStatus = "executed"
	SpanDelayed  SpanStatus = "delayed"
	SpanPlanned  SpanStatus = "planned"
	SpanBlank    SpanStatus = "blank"
)

// DashboardFilter narrows the aggregation scope. Zero values mean "all".
// A zero Year defaults to the current year.
type DashboardFilter struct {
	Standard string
	Area     string
	Year     int
}

// RequirementCompliance is the per-requirement slice of the dashboard.
type RequirementCompliance struct {
	ID         string       `json:"id"`
	Clause     string       `json:"clause"`
	SubClause  string       `json:"subClause"`
	Area       string       `json:"area"`
	Planned    int          `json:"planned"`
	Completed  int          `json:"completed"`
	Percentage float64      `json:"percentage"`
	Spans      []SpanStatus `json:"spans"`
}

// AreaCompliance folds all requirements of one responsible area.
type AreaCompliance struct {
	Area       string  `json:"area"`
	Planned    int     `json:"planned"`
	Completed  int     `json:"completed"`
	Percentage float64 `json:"percentage"`
}

// EvidenceCounts tallies execution records by evidence review status.
// Records without evidence contribute to none of the counts.
type EvidenceCounts struct {
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

// DashboardReport is the aggregator output consumed by the dashboard and
// report views.
type DashboardReport struct {
	Year             int                     `json:"year"`
	NotYetApplicable bool                    `json:"notYetApplicable"`
	Overall          float64                 `json:"overall"`
	Deterioration    *float64                `json:"deterioration,omitempty"`
	Areas            []AreaCompliance        `json:"areas"`
	Requirements     []RequirementCompliance `json:"requirements"`
	Evidence         EvidenceCounts          `json:"evidence"`
	Problems         []string                `json:"problems,omitempty"`
}

// SpanStatuses collapses a year's twelve execution records into per-span
// states, the same grouping the calendar rendering uses. Ties break toward
// executed > delayed > planned > blank, evaluated span by span.
func SpanStatuses(req *model.Requirement, year int) ([]SpanStatus, error) {
	plan, err := req.PlanForYear(year)
	if err != nil {
		return nil, err
	}
	spanLen, err := req.Periodicity.SpanLength()
	if err != nil {
		return nil, err
	}

	statuses := make([]SpanStatus, 0, model.MonthsPerYear/spanLen)
	for start := 0; start < model.MonthsPerYear; start += spanLen {
		var done, delayed, planned bool
		for i := start; i < start+spanLen; i++ {
			rec := &plan[i]
			done = done || rec.Done()
			delayed = delayed || rec.Delayed
			planned = planned || rec.Planned
		}
		switch {
		case done:
			statuses = append(statuses, SpanExecuted)
		case delayed:
			statuses = append(statuses, SpanDelayed)
		case planned:
			statuses = append(statuses, SpanPlanned)
		default:
			statuses = append(statuses, SpanBlank)
		}
	}
	return statuses, nil
}

// spanPlannedFlags reports, span by span, whether the span carries a
// scheduled checkpoint. Needed separately from SpanStatuses because a span
// can be executed off-schedule.
func spanPlannedFlags(req *model.Requirement, year int) ([]bool, error) {
	plan, err := req.PlanForYear(year)
	if err != nil {
		return nil, err
	}
	spanLen, err := req.Periodicity.SpanLength()
	if err != nil {
		return nil, err
	}
	flags := make([]bool, 0, model.MonthsPerYear/spanLen)
	for start := 0; start < model.MonthsPerYear; start += spanLen {
		planned := false
		for i := start; i < start+spanLen; i++ {
			planned = planned || plan[i].Planned
		}
		flags = append(flags, planned)
	}
	return flags, nil
}

// requirementCompliance counts planned and completed checkpoint spans for
// one requirement in one year.
func requirementCompliance(req *model.Requirement, year int) (RequirementCompliance, error) {
	rc := RequirementCompliance{
		ID:        req.ID,
		Clause:    req.Clause,
		SubClause: req.SubClause,
		Area:      req.ResponsibleArea,
	}
	statuses, err := SpanStatuses(req, year)
	if err != nil {
		return rc, err
	}
	plannedFlags, err := spanPlannedFlags(req, year)
	if err != nil {
		return rc, err
	}
	rc.Spans = statuses
	for i, planned := range plannedFlags {
		if !planned {
			continue
		}
		rc.Planned++
		if statuses[i] == SpanExecuted {
			rc.Completed++
		}
	}
	if rc.Planned > 0 {
		rc.Percentage = float64(rc.Completed) / float64(rc.Planned) * 100
	}
	return rc, nil
}

// evidenceCounts tallies evidence statuses across the durable execution
// records of one year.
func evidenceCounts(reqs []model.Requirement, year int) EvidenceCounts {
	var counts EvidenceCounts
	for i := range reqs {
		plan, ok, err := reqs[i].StoredPlan(year)
		if err != nil || !ok {
			continue
		}
		for j := range plan {
			switch plan[j].Evidence.EffectiveStatus() {
			case model.EvidencePending:
				counts.Pending++
			case model.EvidenceApproved:
				counts.Approved++
			case model.EvidenceRejected:
				counts.Rejected++
			}
		}
	}
	return counts
}

// matchesFilter applies the standard/area scope.
func matchesFilter(req *model.Requirement, f DashboardFilter) bool {
	if f.Area != "" && req.ResponsibleArea != f.Area {
		return false
	}
	if f.Standard != "" {
		for _, std := range req.Standards {
			if std == f.Standard {
				return true
			}
		}
		return false
	}
	return true
}

// BuildDashboard folds a collection of requirements into compliance
// percentages and evidence counts. Requirements with malformed plans are
// skipped and reported; the pass never dies on a single bad record. The
// returned error, when non-nil, is a multierror naming every skipped
// requirement while the report still covers the rest.
func BuildDashboard(reqs []model.Requirement, f DashboardFilter) (*DashboardReport, error) {
	year := f.Year
	if year == 0 {
		year = time.Now().Year()
	}
	report := &DashboardReport{Year: year}

	scoped := make([]model.Requirement, 0, len(reqs))
	for i := range reqs {
		if matchesFilter(&reqs[i], f) {
			scoped = append(scoped, reqs[i])
		}
	}

	lastActual, hasActuals := 0, false
	for i := range scoped {
		if y, ok := scoped[i].LastActualYear(); ok {
			hasActuals = true
			if y > lastActual {
				lastActual = y
			}
		}
	}
	report.NotYetApplicable = !hasActuals || year > lastActual

	var errs *multierror.Error
	byArea := map[string]*AreaCompliance{}
	totalPlanned, totalCompleted := 0, 0

	for i := range scoped {
		req := &scoped[i]
		rc, err := requirementCompliance(req, year)
		if err != nil {
			errs = multierror.Append(errs, err)
			report.Problems = append(report.Problems, err.Error())
			continue
		}
		if report.NotYetApplicable {
			// Projected view: the schedule is meaningful, completion is not.
			rc.Completed = 0
			rc.Percentage = 0
			for j, span := range rc.Spans {
				if span == SpanExecuted || span == SpanDelayed {
					rc.Spans[j] = SpanPlanned
				}
			}
		}
		report.Requirements = append(report.Requirements, rc)

		area := byArea[rc.Area]
		if area == nil {
			area = &AreaCompliance{Area: rc.Area}
			byArea[rc.Area] = area
		}
		area.Planned += rc.Planned
		area.Completed += rc.Completed
		totalPlanned += rc.Planned
		totalCompleted += rc.Completed
	}

	names := make([]string, 0, len(byArea))
	for name := range byArea {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		area := byArea[name]
		if area.Planned > 0 {
			area.Percentage = float64(area.Completed) / float64(area.Planned) * 100
		}
		report.Areas = append(report.Areas, *area)
	}
	if totalPlanned > 0 && !report.NotYetApplicable {
		report.Overall = float64(totalCompleted) / float64(totalPlanned) * 100
	}

	report.Evidence = evidenceCounts(scoped, year)

	// Year-over-year movement; negative means regression.
	if !report.NotYetApplicable && year-1 >= 1 && year-1 <= lastActual {
		prevPlanned, prevCompleted := 0, 0
		prevComputable := false
		for i := range scoped {
			rc, err := requirementCompliance(&scoped[i], year-1)
			if err != nil {
				continue
			}
			prevPlanned += rc.Planned
			prevCompleted += rc.Completed
			prevComputable = true
		}
		if prevComputable && prevPlanned > 0 {
			prev := float64(prevCompleted) / float64(prevPlanned) * 100
			diff := report.Overall - prev
			report.Deterioration = &diff
		}
	}

	return report, errs.ErrorOrNil()
}

// Dashboard loads the requirement collection and aggregates it. Malformed
// plans surface in the report's problem list without failing the request.
func (s *TrackerService) Dashboard(f DashboardFilter) (*DashboardReport, error) {
	reqs, err := s.ListRequirements("", "")
	if err != nil {
		return nil, err
	}
	report, aggErr := BuildDashboard(reqs, f)
	if aggErr != nil {
		log.Printf("[Dashboard] %d requirement(s) skipped: %v", len(report.Problems), aggErr)
	}
	return report, nil
}

// DaysOpen exposes rejection aging for display. Defined only for REJECTED
// evidence; everything else reports an error.
func (s *TrackerService) DaysOpen(id string, year, month int) (int, error) {
	req, err := s.GetRequirement(id)
	if err != nil {
		return 0, err
	}
	plan, ok, err := req.StoredPlan(year)
	if err != nil {
		return 0, err
	}
	if !ok || month < 0 || month >= model.MonthsPerYear || plan[month].Evidence == nil {
		return 0, fmt.Errorf("evidence for requirement %s year %d month %d: %w",
			id, year, month, model.ErrNotFound)
	}
	ev := plan[month].Evidence
	if ev.EffectiveStatus() != model.EvidenceRejected {
		return 0, fmt.Errorf("evidence is not rejected")
	}
	return ev.DaysOpen(time.Now()), nil
}
