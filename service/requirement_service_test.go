package services

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	model "github.com/afuentesm/NormaTrack/models"
)

// newTestService wires the service against a private in-memory database, the
// same engine the local-storage fallback uses. S3, Elasticsearch and the
// Postgres listener stay nil; those paths degrade gracefully.
func newTestService(t *testing.T) *TrackerService {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	assert.NoError(t, err)

	err = db.AutoMigrate(
		&model.Requirement{},
		&model.Area{},
		&model.Plant{},
		&model.StandardDef{},
		&model.User{},
	)
	assert.NoError(t, err)

	return &TrackerService{
		db:             db,
		requirementHub: newSnapshotHub[model.Requirement](),
		userHub:        newSnapshotHub[model.User](),
	}
}

func newStoredRequirement(t *testing.T, svc *TrackerService, p model.Periodicity) *model.Requirement {
	t.Helper()
	req := &model.Requirement{
		Clause:          "8.5",
		SubClause:       "8.5.1",
		ClauseTitle:     "Control of production",
		Standards:       datatypes.NewJSONSlice([]string{"ISO9001"}),
		ResponsibleArea: "Production",
		Periodicity:     p,
	}
	assert.NoError(t, svc.CreateRequirement(req))
	return req
}

func TestCreateRequirementGeneratesPlan(t *testing.T) {
	svc := newTestService(t)
	req := newStoredRequirement(t, svc, model.Quarterly)
	assert.NotEmpty(t, req.ID)

	stored, err := svc.GetRequirement(req.ID)
	assert.NoError(t, err)

	plan, ok, err := stored.StoredPlan(time.Now().Year())
	assert.NoError(t, err)
	assert.True(t, ok, "the creation year's plan is durable from the start")
	assert.True(t, plan[2].Planned)
	assert.False(t, plan[0].Planned)
}

func TestCreateRequirementValidation(t *testing.T) {
	svc := newTestService(t)

	err := svc.CreateRequirement(&model.Requirement{
		Clause:          "4.1",
		Standards:       datatypes.NewJSONSlice([]string{"ISO9001"}),
		ResponsibleArea: "Quality",
		Periodicity:     model.Periodicity("whenever"),
	})
	assert.True(t, errors.Is(err, model.ErrInvalidPeriodicity))

	err = svc.CreateRequirement(&model.Requirement{
		Clause:          "4.1",
		ResponsibleArea: "Quality",
		Periodicity:     model.Monthly,
	})
	assert.Error(t, err, "a requirement must belong to at least one standard")
}

func TestDeleteRequirementIdempotence(t *testing.T) {
	svc := newTestService(t)
	keep := newStoredRequirement(t, svc, model.Monthly)
	doomed := newStoredRequirement(t, svc, model.Annual)

	assert.NoError(t, svc.DeleteRequirement(doomed.ID))

	// The second delete reports NotFound instead of corrupting anything.
	err := svc.DeleteRequirement(doomed.ID)
	assert.True(t, errors.Is(err, model.ErrNotFound))

	report, err := svc.Dashboard(DashboardFilter{Year: time.Now().Year()})
	assert.NoError(t, err)
	assert.Len(t, report.Requirements, 1)
	assert.Equal(t, keep.ID, report.Requirements[0].ID)
}

func TestUpdateRequirementPartialMerge(t *testing.T) {
	svc := newTestService(t)
	req := newStoredRequirement(t, svc, model.Monthly)

	updated, err := svc.UpdateRequirement(req.ID, map[string]interface{}{
		"clauseTitle": "Control of production and service provision",
	})
	assert.NoError(t, err)
	assert.Equal(t, "Control of production and service provision", updated.ClauseTitle)
	assert.Equal(t, req.Clause, updated.Clause, "untouched fields survive the merge")
	assert.Equal(t, req.ResponsibleArea, updated.ResponsibleArea)

	// Periodicity is fixed at creation.
	_, err = svc.UpdateRequirement(req.ID, map[string]interface{}{
		"periodicity": "annual",
	})
	assert.Error(t, err)

	_, err = svc.UpdateRequirement("no-such-id", map[string]interface{}{
		"clauseTitle": "x",
	})
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestSubscribeRequirementsDeliversSnapshots(t *testing.T) {
	svc := newTestService(t)

	snapshots, cancel, err := svc.SubscribeRequirements()
	assert.NoError(t, err)
	defer cancel()

	initial := <-snapshots
	assert.Empty(t, initial)

	req := newStoredRequirement(t, svc, model.Monthly)

	next := <-snapshots
	assert.Len(t, next, 1)
	assert.Equal(t, req.ID, next[0].ID)

	assert.NoError(t, svc.DeleteRequirement(req.ID))
	final := <-snapshots
	assert.Empty(t, final)
}

func TestSubscribeUsersDeliversSnapshots(t *testing.T) {
	svc := newTestService(t)

	snapshots, cancel, err := svc.SubscribeUsers()
	assert.NoError(t, err)
	defer cancel()

	initial := <-snapshots
	assert.Empty(t, initial)

	user := &model.User{Name: "Reviewer", Email: "reviewer@plant.local"}
	assert.NoError(t, svc.CreateUser(user, "S3cret!pass"))

	next := <-snapshots
	assert.Len(t, next, 1)
	assert.Equal(t, "reviewer@plant.local", next[0].Email)
	assert.Equal(t, model.RoleViewer, next[0].Role)

	assert.NoError(t, svc.DeleteUser(user.ID))
	final := <-snapshots
	assert.Empty(t, final)
}

func TestSubscriberSeesLatestNotBacklog(t *testing.T) {
	hub := newSnapshotHub[int]()
	ch, cancel := hub.subscribe()
	defer cancel()

	hub.broadcast([]int{1})
	hub.broadcast([]int{1, 2})
	hub.broadcast([]int{1, 2, 3})

	got := <-ch
	assert.Equal(t, []int{1, 2, 3}, got, "a slow consumer sees only the latest snapshot")
}

func TestMarkExecutionPersistsDurably(t *testing.T) {
	svc := newTestService(t)
	req := newStoredRequirement(t, svc, model.Bimonthly)

	year := time.Now().Year() + 1

	executed := true
	_, err := svc.MarkExecution(req.ID, year, 0, &executed, nil)
	assert.NoError(t, err)

	stored, err := svc.GetRequirement(req.ID)
	assert.NoError(t, err)
	plan, ok, err := stored.StoredPlan(year)
	assert.NoError(t, err)
	assert.True(t, ok, "recording an actual makes the derived year durable")
	assert.True(t, plan[0].Executed)

	_, err = svc.MarkExecution(req.ID, year, 12, &executed, nil)
	assert.True(t, errors.Is(err, model.ErrInvalidTarget))
}

func TestLinkEvidenceLifecycleThroughService(t *testing.T) {
	svc := newTestService(t)
	req := newStoredRequirement(t, svc, model.Annual)
	year := time.Now().Year()

	_, err := svc.LinkEvidence(req.ID, year, 11, "https://example.com/audit", "worker@plant.local")
	assert.NoError(t, err)

	// Approving missing evidence is NotFound.
	_, err = svc.ApproveEvidence(req.ID, year, 3, "admin@plant.local", "")
	assert.True(t, errors.Is(err, model.ErrNotFound))

	_, err = svc.ApproveEvidence(req.ID, year, 11, "admin@plant.local", "verified")
	assert.NoError(t, err)

	report, err := svc.Dashboard(DashboardFilter{Year: year})
	assert.NoError(t, err)
	assert.Equal(t, EvidenceCounts{Approved: 1}, report.Evidence)
	assert.InDelta(t, 100.0, report.Overall, 0.001)

	// Rejecting approved evidence is a refused transition.
	_, err = svc.RejectEvidence(req.ID, year, 11, "too late")
	assert.Error(t, err)
}

func TestLinkEvidenceInvalidTarget(t *testing.T) {
	svc := newTestService(t)
	req := newStoredRequirement(t, svc, model.Monthly)

	_, err := svc.LinkEvidence(req.ID, 2025, -1, "https://example.com/x", "")
	assert.True(t, errors.Is(err, model.ErrInvalidTarget))

	_, err = svc.LinkEvidence("", 2025, 0, "https://example.com/x", "")
	assert.True(t, errors.Is(err, model.ErrInvalidTarget))

	_, err = svc.LinkEvidence("missing-id", 2025, 0, "https://example.com/x", "")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestAuthenticateAndSeedAdmin(t *testing.T) {
	svc := newTestService(t)

	assert.NoError(t, svc.SeedDefaultAdmin("admin@plant.local", "S3cret!pass"))
	// Seeding twice is a no-op.
	assert.NoError(t, svc.SeedDefaultAdmin("other@plant.local", "x"))

	users, err := svc.ListUsers()
	assert.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, model.RoleAdmin, users[0].Role)

	user, err := svc.Authenticate("admin@plant.local", "S3cret!pass")
	assert.NoError(t, err)
	assert.Equal(t, "admin@plant.local", user.Email)

	_, err = svc.Authenticate("admin@plant.local", "wrong")
	assert.Error(t, err)
	_, err = svc.Authenticate("ghost@plant.local", "whatever")
	assert.Error(t, err)
}

func TestNormalizeAllMigratesLegacyShapes(t *testing.T) {
	svc := newTestService(t)

	legacy, err := model.GeneratePlan(model.Quarterly)
	assert.NoError(t, err)
	legacy[5].Executed = true

	req := &model.Requirement{
		ID:              "legacy-1",
		Clause:          "6.1",
		Standards:       datatypes.NewJSONSlice([]string{"ISO9001"}),
		ResponsibleArea: "Quality",
		Periodicity:     model.Quarterly,
		MonthlyPlan:     datatypes.NewJSONType(legacy),
	}
	assert.NoError(t, svc.db.Create(req).Error)

	assert.NoError(t, svc.NormalizeAll())

	stored, err := svc.GetRequirement("legacy-1")
	assert.NoError(t, err)
	assert.Nil(t, stored.MonthlyPlan.Data(), "legacy shape is gone after the pass")

	plan, ok, err := stored.StoredPlan(model.LegacyPlanYear)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, plan[5].Executed)
}
