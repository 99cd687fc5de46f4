package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	model "github.com/afuentesm/NormaTrack/models"
)

// CreateRequirement validates the requirement, generates the execution plan
// for the creation year and persists it. The freshly created requirement is
// indexed for search and pushed to all subscribers.
func (s *TrackerService) CreateRequirement(req *model.Requirement) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if req.ID == "" {
		// Postgres fills ids via gen_random_uuid(); the sqlite fallback has
		// no such default.
		req.ID = uuid.NewString()
	}

	year := time.Now().Year()
	if _, ok, _ := req.StoredPlan(year); !ok {
		plan, err := model.GeneratePlan(req.Periodicity)
		if err != nil {
			return err
		}
		if err := req.SetPlan(year, plan); err != nil {
			return err
		}
	}

	if err := s.db.Create(req).Error; err != nil {
		log.Printf("[CreateRequirement] Error saving requirement: %v", err)
		return fmt.Errorf("%w: saving requirement: %w", model.ErrTransport, err)
	}
	log.Printf("Requirement %s (%s %s) created", req.ID, req.Clause, req.SubClause)

	s.indexRequirement(req)
	s.notifyChange(req.ID)
	if err := s.broadcastRequirements(); err != nil {
		log.Printf("[CreateRequirement] broadcast failed: %v", err)
	}
	return nil
}

// GetRequirement fetches a single requirement by id.
func (s *TrackerService) GetRequirement(id string) (*model.Requirement, error) {
	var req model.Requirement
	if err := s.db.First(&req, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("requirement %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: fetching requirement %s: %w", model.ErrTransport, id, err)
	}
	return &req, nil
}

// ListRequirements returns all requirements, optionally filtered by standard
// identifier and responsible area. Standards live in a JSON column, so the
// standard filter is applied in memory; the collection is single-tenant
// record keeping, not a big dataset.
func (s *TrackerService) ListRequirements(standard, area string) ([]model.Requirement, error) {
	query := s.db
	if area != "" {
		query = query.Where("responsible_area = ?", area)
	}
	var reqs []model.Requirement
	if err := query.Find(&reqs).Error; err != nil {
		return nil, fmt.Errorf("%w: listing requirements: %w", model.ErrTransport, err)
	}
	if standard == "" {
		return reqs, nil
	}
	filtered := make([]model.Requirement, 0, len(reqs))
	for _, req := range reqs {
		for _, std := range req.Standards {
			if std == standard {
				filtered = append(filtered, req)
				break
			}
		}
	}
	return filtered, nil
}

// allowed column targets for partial updates. Periodicity is fixed at
// creation and deliberately absent; plans are mutated through the evidence
// and execution paths only.
var updatableFields = map[string]string{
	"clause":            "clause",
	"subClause":         "sub_clause",
	"clauseTitle":       "clause_title",
	"description":       "description",
	"contextualization": "contextualization",
	"relatedQuestions":  "related_questions",
	"responsibleArea":   "responsible_area",
	"standards":         "standards",
	"compliance2024":    "compliance2024",
	"compliance2025":    "compliance2025",
}

// UpdateRequirement applies a partial-field merge, the granularity the
// persistence layer provides (last write wins per field group).
func (s *TrackerService) UpdateRequirement(id string, fields map[string]interface{}) (*model.Requirement, error) {
	req, err := s.GetRequirement(id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	for key, value := range fields {
		column, ok := updatableFields[key]
		if !ok {
			return nil, fmt.Errorf("field %q is not updatable", key)
		}
		if key == "standards" {
			raw, err := json.Marshal(value)
			if err != nil {
				return nil, fmt.Errorf("invalid standards value: %w", err)
			}
			var stds []string
			if err := json.Unmarshal(raw, &stds); err != nil || len(stds) == 0 {
				return nil, fmt.Errorf("requirement must belong to at least one standard")
			}
			updates[column] = raw
			continue
		}
		updates[column] = value
	}
	updates["updated_at"] = time.Now()

	if err := s.db.Model(req).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("%w: updating requirement %s: %w", model.ErrTransport, id, err)
	}

	req, err = s.GetRequirement(id)
	if err != nil {
		return nil, err
	}
	s.indexRequirement(req)
	s.notifyChange(id)
	if err := s.broadcastRequirements(); err != nil {
		log.Printf("[UpdateRequirement] broadcast failed: %v", err)
	}
	return req, nil
}

// DeleteRequirement removes a requirement permanently. Deleting an already
// deleted id reports NotFound, so a retried delete is safe and visible.
func (s *TrackerService) DeleteRequirement(id string) error {
	result := s.db.Delete(&model.Requirement{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("%w: deleting requirement %s: %w", model.ErrTransport, id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("requirement %s: %w", id, model.ErrNotFound)
	}
	log.Printf("Requirement %s deleted", id)

	s.removeFromIndex(id)
	s.notifyChange(id)
	if err := s.broadcastRequirements(); err != nil {
		log.Printf("[DeleteRequirement] broadcast failed: %v", err)
	}
	return nil
}

// MarkExecution records the executed/delayed flags for one month of one
// year. The plan entry becomes durable at this point if it was only derived
// so far; a stored plan keeps its manual planned overrides untouched.
func (s *TrackerService) MarkExecution(id string, year, month int, executed, delayed *bool) (*model.Requirement, error) {
	if month < 0 || month >= model.MonthsPerYear {
		return nil, fmt.Errorf("%w: month %d out of range", model.ErrInvalidTarget, month)
	}
	req, err := s.GetRequirement(id)
	if err != nil {
		return nil, err
	}
	plan, err := req.PlanForYear(year)
	if err != nil {
		return nil, err
	}
	if executed != nil {
		plan[month].Executed = *executed
	}
	if delayed != nil {
		plan[month].Delayed = *delayed
	}
	if err := req.SetPlan(year, plan); err != nil {
		return nil, err
	}
	if err := s.savePlans(req); err != nil {
		return nil, err
	}
	s.notifyChange(id)
	if err := s.broadcastRequirements(); err != nil {
		log.Printf("[MarkExecution] broadcast failed: %v", err)
	}
	return req, nil
}

// savePlans persists only the plans column of a requirement.
func (s *TrackerService) savePlans(req *model.Requirement) error {
	err := s.db.Model(req).Updates(map[string]interface{}{
		"plans":      req.Plans,
		"updated_at": time.Now(),
	}).Error
	if err != nil {
		return fmt.Errorf("%w: saving plans for requirement %s: %w", model.ErrTransport, req.ID, err)
	}
	return nil
}

// NormalizeAll runs the one-time migration pass that folds legacy evidence
// shapes (monthlyPlan, flat evidenceFile/evidenceUrl) into the canonical
// plans map. Called once at startup; records that fail to normalize are
// reported and left as they are.
func (s *TrackerService) NormalizeAll() error {
	var reqs []model.Requirement
	if err := s.db.Find(&reqs).Error; err != nil {
		return fmt.Errorf("%w: loading requirements for normalization: %w", model.ErrTransport, err)
	}
	migrated := 0
	for i := range reqs {
		req := &reqs[i]
		changed, err := req.Normalize()
		if err != nil {
			log.Printf("[NormalizeAll] requirement %s not normalized: %v", req.ID, err)
			continue
		}
		if !changed {
			continue
		}
		err = s.db.Model(req).Updates(map[string]interface{}{
			"plans":         req.Plans,
			"monthly_plan":  req.MonthlyPlan,
			"evidence_file": "",
			"evidence_url":  "",
		}).Error
		if err != nil {
			log.Printf("[NormalizeAll] failed to persist requirement %s: %v", req.ID, err)
			continue
		}
		migrated++
	}
	if migrated > 0 {
		log.Printf("Normalized legacy plan shapes on %d requirements", migrated)
	}
	return nil
}

// SubscribeRequirements delivers a full-collection snapshot immediately and
// on every subsequent change, local or from another writer on the same
// database. The returned cancel function releases the subscription.
func (s *TrackerService) SubscribeRequirements() (<-chan []model.Requirement, func(), error) {
	ch, cancel := s.requirementHub.subscribe()
	if err := s.broadcastRequirements(); err != nil {
		cancel()
		return nil, nil, err
	}
	return ch, cancel, nil
}

// SubscribeUsers delivers user-collection snapshots the same way.
func (s *TrackerService) SubscribeUsers() (<-chan []model.User, func(), error) {
	ch, cancel := s.userHub.subscribe()
	if err := s.broadcastUsers(); err != nil {
		cancel()
		return nil, nil, err
	}
	return ch, cancel, nil
}

func (s *TrackerService) broadcastRequirements() error {
	var reqs []model.Requirement
	if err := s.db.Find(&reqs).Error; err != nil {
		return fmt.Errorf("%w: loading requirement snapshot: %w", model.ErrTransport, err)
	}
	s.requirementHub.broadcast(reqs)
	return nil
}

func (s *TrackerService) broadcastUsers() error {
	var users []model.User
	if err := s.db.Find(&users).Error; err != nil {
		return fmt.Errorf("%w: loading user snapshot: %w", model.ErrTransport, err)
	}
	s.userHub.broadcast(users)
	return nil
}

// indexRequirement indexes the requirement in Elasticsearch. Search is an
// optional feature; indexing failures are logged and never break the write.
func (s *TrackerService) indexRequirement(req *model.Requirement) {
	if s.esClient == nil {
		return
	}

	doc := map[string]interface{}{
		"id":                req.ID,
		"clause":            req.Clause,
		"sub_clause":        req.SubClause,
		"clause_title":      req.ClauseTitle,
		"description":       req.Description,
		"contextualization": req.Contextualization,
		"related_questions": req.RelatedQuestions,
		"responsible_area":  req.ResponsibleArea,
		"standards":         []string(req.Standards),
		"search_content":    req.ClauseTitle + " " + req.Description + " " + req.Contextualization,
		"timestamp":         time.Now().UTC(),
	}

	body, err := json.Marshal(doc)
	if err != nil {
		log.Printf("[indexRequirement] marshal failed: %v", err)
		return
	}

	res, err := s.esClient.Index(
		"requirements",
		bytes.NewReader(body),
		s.esClient.Index.WithDocumentID(req.ID),
		s.esClient.Index.WithContext(context.Background()),
	)
	if err != nil {
		log.Printf("[indexRequirement] Elasticsearch indexing error: %v", err)
		return
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Printf("[indexRequirement] Elasticsearch indexing failed: %s", res.String())
	}
}

func (s *TrackerService) removeFromIndex(id string) {
	if s.esClient == nil {
		return
	}
	res, err := s.esClient.Delete("requirements", id,
		s.esClient.Delete.WithContext(context.Background()))
	if err != nil {
		log.Printf("[removeFromIndex] Elasticsearch delete error: %v", err)
		return
	}
	res.Body.Close()
}

// SearchRequirements runs a full-text search over clause titles,
// descriptions and contextualizations.
func (s *TrackerService) SearchRequirements(query string) ([]map[string]interface{}, error) {
	if s.esClient == nil {
		return nil, fmt.Errorf("elasticsearch client is not initialized")
	}

	searchQuery := map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"clause_title", "description", "contextualization", "search_content"},
			},
		},
	}
	body, err := json.Marshal(searchQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search query: %w", err)
	}

	res, err := s.esClient.Search(
		s.esClient.Search.WithContext(context.Background()),
		s.esClient.Search.WithIndex("requirements"),
		s.esClient.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: search request failed: %w", model.ErrTransport, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search failed: %s", res.String())
	}

	var result map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	hitsMap, ok := result["hits"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid hits structure in search response")
	}
	hitsArray, ok := hitsMap["hits"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid hits array in search response")
	}

	var matches []map[string]interface{}
	for _, hit := range hitsArray {
		hitMap, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}
		source, ok := hitMap["_source"].(map[string]interface{})
		if !ok {
			continue
		}
		matches = append(matches, source)
	}
	return matches, nil
}
