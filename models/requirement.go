package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LegacyPlanYear is the year the single monthlyPlan sequence belongs to on
// records created before plans became a per-year map.
const LegacyPlanYear = 2025

// PlanMap maps a year to its twelve execution records.
type PlanMap map[int][]ExecutionRecord

// Requirement is a single compliance obligation: an audit clause tied to one
// or more standards and one responsible area, with a periodicity-driven
// monthly execution plan per year.
type Requirement struct {
	// ID is a unique identifier for the requirement, stored as a UUID in the
	// database. In Elasticsearch, it's indexed as a keyword for exact matching.
	ID string `gorm:"type:uuid;primaryKey" json:"id" elastic:"type:keyword"`

	// Clause is the top-level section code of the standard (e.g. "7.5").
	Clause string `gorm:"not null" json:"clause" elastic:"type:keyword"`

	// SubClause is the specific sub-item code, unique together with clause,
	// title and area.
	SubClause string `json:"subClause" elastic:"type:keyword"`

	// ClauseTitle is the section heading, indexed as text for search.
	ClauseTitle string `json:"clauseTitle" elastic:"type:text,analyzer:standard"`

	// Description is the official wording of the standard.
	Description string `json:"description" elastic:"type:text,analyzer:standard"`

	// Contextualization is the organization-specific explanation of how the
	// clause applies.
	Contextualization string `json:"contextualization" elastic:"type:text,analyzer:standard"`

	// RelatedQuestions is the audit task/criterion text.
	RelatedQuestions string `json:"relatedQuestions" elastic:"type:text,analyzer:standard"`

	// Standards is the non-empty set of standard identifiers this requirement
	// belongs to. A requirement may map to several standards at once.
	Standards datatypes.JSONSlice[string] `json:"standards" elastic:"type:keyword"`

	// ResponsibleArea is the key of the accountable organizational unit.
	ResponsibleArea string `gorm:"not null" json:"responsibleArea" elastic:"type:keyword"`

	// Periodicity is fixed at creation and assumed immutable afterward.
	Periodicity Periodicity `gorm:"type:varchar(20);not null" json:"periodicity" elastic:"type:keyword"`

	// Compliance2024 and Compliance2025 are flattened legacy compliance
	// snapshots predating the per-year plan map.
	Compliance2024 bool `json:"compliance2024"`
	Compliance2025 bool `json:"compliance2025"`

	// Plans maps each year to its twelve execution records, stored as JSONB.
	Plans datatypes.JSONType[PlanMap] `json:"plans"`

	// MonthlyPlan is the legacy single-year plan, treated as the plan for
	// LegacyPlanYear when Plans lacks an entry for it.
	MonthlyPlan datatypes.JSONType[[]ExecutionRecord] `json:"monthlyPlan,omitempty"`

	// EvidenceFile and EvidenceURL are the oldest legacy evidence shape,
	// folded into Plans by Normalize.
	EvidenceFile string `json:"evidenceFile,omitempty"`
	EvidenceURL  string `json:"evidenceUrl,omitempty"`

	CreatedAt time.Time `json:"createdAt" elastic:"type:date"`
	UpdatedAt time.Time `json:"updatedAt" elastic:"type:date"`

	// SearchContent is a computed field for full-text search, combining the
	// clause title, description and contextualization. It's not stored in the
	// database but is indexed in Elasticsearch.
	SearchContent string `gorm:"-" json:"-" elastic:"type:text,analyzer:standard"`
}

// BeforeSave is a GORM hook to populate SearchContent before indexing.
func (r *Requirement) BeforeSave(tx *gorm.DB) error {
	r.SearchContent = r.ClauseTitle + " " + r.Description + " " + r.Contextualization
	return nil
}

// BeforeCreate assigns the id in Go so the sqlite fallback works without a
// database-side uuid default.
func (r *Requirement) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// Validate checks the invariants a requirement must satisfy at creation.
func (r *Requirement) Validate() error {
	if len(r.Standards) == 0 {
		return fmt.Errorf("requirement must belong to at least one standard")
	}
	for _, s := range r.Standards {
		if s == "" {
			return fmt.Errorf("standard identifiers must be non-empty")
		}
	}
	if r.ResponsibleArea == "" {
		return fmt.Errorf("responsible area is required")
	}
	if _, err := r.Periodicity.Expand(); err != nil {
		return err
	}
	return nil
}

// StoredPlan returns the durable plan entry for a year, if one exists.
// A stored entry with a month count other than twelve is malformed.
func (r *Requirement) StoredPlan(year int) ([]ExecutionRecord, bool, error) {
	plans := r.Plans.Data()
	if plan, ok := plans[year]; ok {
		if len(plan) != MonthsPerYear {
			return nil, true, r.malformed(year, len(plan))
		}
		return plan, true, nil
	}
	if year == LegacyPlanYear {
		if legacy := r.MonthlyPlan.Data(); legacy != nil {
			if len(legacy) != MonthsPerYear {
				return nil, true, r.malformed(year, len(legacy))
			}
			return legacy, true, nil
		}
	}
	return nil, false, nil
}

// PlanForYear returns the twelve execution records for a year: the stored
// entry when one exists (manual planned overrides are preserved, never
// recomputed), otherwise a plan derived on demand from the periodicity. The
// derived plan is not persisted until something is actually recorded for
// that year.
func (r *Requirement) PlanForYear(year int) ([]ExecutionRecord, error) {
	plan, ok, err := r.StoredPlan(year)
	if err != nil {
		return nil, err
	}
	if ok {
		return plan, nil
	}
	return GeneratePlan(r.Periodicity)
}

// SetPlan stores the plan for a year durably.
func (r *Requirement) SetPlan(year int, plan []ExecutionRecord) error {
	if len(plan) != MonthsPerYear {
		return r.malformed(year, len(plan))
	}
	plans := r.Plans.Data()
	if plans == nil {
		plans = PlanMap{}
	}
	plans[year] = plan
	r.Plans = datatypes.NewJSONType(plans)
	return nil
}

// PlanYears lists the years that carry durable plan entries, legacy
// monthlyPlan included.
func (r *Requirement) PlanYears() []int {
	years := make([]int, 0, len(r.Plans.Data())+1)
	for y := range r.Plans.Data() {
		years = append(years, y)
	}
	if _, ok := r.Plans.Data()[LegacyPlanYear]; !ok && r.MonthlyPlan.Data() != nil {
		years = append(years, LegacyPlanYear)
	}
	return years
}

// LastActualYear is the most recent year with any recorded execution, delay
// or evidence. Years beyond it carry no meaningful compliance data and are
// reported as not yet applicable. The second result is false when nothing
// has been recorded at all.
func (r *Requirement) LastActualYear() (int, bool) {
	last, found := 0, false
	for _, year := range r.PlanYears() {
		plan, ok, err := r.StoredPlan(year)
		if err != nil || !ok {
			continue
		}
		for i := range plan {
			rec := &plan[i]
			if rec.Executed || rec.Delayed || rec.Evidence != nil {
				if !found || year > last {
					last, found = year, true
				}
				break
			}
		}
	}
	return last, found
}

// Normalize folds all legacy evidence shapes into the canonical plans map:
// monthlyPlan becomes the LegacyPlanYear entry, and the top-level
// evidenceFile/evidenceUrl strings become a FILE evidence on the last
// planned month of that year. Deduplication is by (year, month) with plans
// taking precedence over monthlyPlan, and monthlyPlan over the flat strings.
// Returns true when anything changed and the record should be re-persisted.
func (r *Requirement) Normalize() (bool, error) {
	changed := false
	plans := r.Plans.Data()
	if plans == nil {
		plans = PlanMap{}
	}

	if legacy := r.MonthlyPlan.Data(); legacy != nil {
		if len(legacy) != MonthsPerYear {
			return false, r.malformed(LegacyPlanYear, len(legacy))
		}
		if stored, ok := plans[LegacyPlanYear]; !ok {
			plans[LegacyPlanYear] = legacy
		} else if len(stored) == MonthsPerYear {
			// Month-wise merge: a month the canonical entry left untouched
			// still keeps whatever the legacy plan recorded there.
			for i := range stored {
				if stored[i].Evidence != nil || stored[i].Executed || stored[i].Delayed {
					continue
				}
				if legacy[i].Evidence == nil && !legacy[i].Executed && !legacy[i].Delayed {
					continue
				}
				stored[i].Executed = legacy[i].Executed
				stored[i].Delayed = legacy[i].Delayed
				stored[i].Evidence = legacy[i].Evidence
			}
			plans[LegacyPlanYear] = stored
		}
		r.MonthlyPlan = datatypes.JSONType[[]ExecutionRecord]{}
		changed = true
	}

	if r.EvidenceFile != "" || r.EvidenceURL != "" {
		plan, ok := plans[LegacyPlanYear]
		if !ok {
			generated, err := GeneratePlan(r.Periodicity)
			if err != nil {
				return changed, err
			}
			plan = generated
		}
		if idx := lastPlannedMonth(plan); idx >= 0 && plan[idx].Evidence == nil {
			plan[idx].AttachEvidence(Evidence{
				Type:     EvidenceFile,
				URL:      r.EvidenceURL,
				FileName: r.EvidenceFile,
			})
			plans[LegacyPlanYear] = plan
		}
		r.EvidenceFile = ""
		r.EvidenceURL = ""
		changed = true
	}

	if changed {
		r.Plans = datatypes.NewJSONType(plans)
	}
	return changed, nil
}

func lastPlannedMonth(plan []ExecutionRecord) int {
	for i := len(plan) - 1; i >= 0; i-- {
		if plan[i].Planned {
			return i
		}
	}
	return -1
}

func (r *Requirement) malformed(year, got int) error {
	return fmt.Errorf("requirement %s year %d: %w: %d months instead of %d",
		r.ID, year, ErrMalformedPlan, got, MonthsPerYear)
}
