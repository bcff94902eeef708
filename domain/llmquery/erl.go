// Package llmquery turns natural-language questions into ontology-grounded
// entity-relation graphs through a five-stage pipeline: free generation,
// candidate retrieval, grammar-constrained regeneration, database
// enrichment, and completion. Progress is published to a cache so callers
// can poll long-running queries.
package llmquery

import (
	"encoding/json"
	"time"

	"github.com/onset-project/onset/domain/catalog"
	"github.com/onset-project/onset/domain/ontology"
)

// Constraint is a property restriction attached to an entity, e.g.
// "birth_date greater_than 1990".
type Constraint struct {
	Property string `json:"property"`
	Value    string `json:"value,omitempty"`
	Modifier string `json:"modifier,omitempty"`
}

// Entity is one node of the query graph. Identifier is the model's own
// handle ("person 1"), Type the ontology class label it claims.
type Entity struct {
	Identifier  string       `json:"identifier"`
	Type        string       `json:"type"`
	Constraints []Constraint `json:"constraints"`
}

// Relation is one edge of the query graph, referencing entities by their
// identifiers.
type Relation struct {
	Entity   string `json:"entity"`
	Relation string `json:"relation"`
	Target   string `json:"target"`
}

// EntitiesRelations is the raw graph a generation stage produces.
type EntitiesRelations struct {
	Relations []Relation `json:"relations"`
	Entities  []Entity   `json:"entities"`
}

// CandidateRelation is a retrieved link proposed as grounding for a
// relation label. The resolved row travels with the candidate so stage-4
// enrichment can stay scoped to exactly what retrieval recovered.
type CandidateRelation struct {
	Entity   string  `json:"entity"`
	Relation string  `json:"relation"`
	Target   string  `json:"target"`
	Score    float64 `json:"score"`

	Link *catalog.SubjectLinkRow `json:"-"`
}

// CandidateEntity is a retrieved subject proposed as an entity type.
type CandidateEntity struct {
	Type  string  `json:"type"`
	Score float64 `json:"score"`

	Subject *ontology.Subject `json:"-"`
}

// CandidateConstraint is a retrieved property edge proposed as grounding
// for a constraint.
type CandidateConstraint struct {
	Property string  `json:"property"`
	Value    string  `json:"value,omitempty"`
	Modifier string  `json:"modifier,omitempty"`
	Score    float64 `json:"score"`
	Type     string  `json:"type,omitempty"`

	Link *catalog.SubjectLinkRow `json:"-"`
}

// Candidates accumulates every retrieval hit for one query graph. Anything
// missed here can never be recovered by a later stage.
type Candidates struct {
	Relations   []CandidateRelation   `json:"relations"`
	Entities    []CandidateEntity     `json:"entities"`
	Constraints []CandidateConstraint `json:"constraints"`
}

// LinkIDs returns the distinct link ids behind the relation candidates.
func (c *Candidates) LinkIDs() []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, r := range c.Relations {
		if r.Link != nil && !seen[r.Link.LinkID] {
			seen[r.Link.LinkID] = true
			ids = append(ids, r.Link.LinkID)
		}
	}
	return ids
}

// ConstraintLinkIDs returns the distinct link ids behind the constraint
// candidates.
func (c *Candidates) ConstraintLinkIDs() []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, cc := range c.Constraints {
		if cc.Link != nil && !seen[cc.Link.LinkID] {
			seen[cc.Link.LinkID] = true
			ids = append(ids, cc.Link.LinkID)
		}
	}
	return ids
}

// SubjectIDs returns the distinct subject ids behind the entity candidates.
func (c *Candidates) SubjectIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, e := range c.Entities {
		if e.Subject != nil && !seen[e.Subject.ID] {
			seen[e.Subject.ID] = true
			ids = append(ids, e.Subject.ID)
		}
	}
	return ids
}

// EnrichedConstraint is a constraint bound to its concrete property edge.
type EnrichedConstraint struct {
	Constraint
	Link *catalog.SubjectLinkRow `json:"link,omitempty"`
}

// EnrichedEntity is an entity bound to its concrete ontology subject.
type EnrichedEntity struct {
	Identifier  string               `json:"identifier"`
	Type        string               `json:"type"`
	Subject     *ontology.Subject    `json:"subject,omitempty"`
	Constraints []EnrichedConstraint `json:"constraints"`
}

// EnrichedRelation is a relation bound to its concrete link row.
type EnrichedRelation struct {
	Entity   string                  `json:"entity"`
	Relation string                  `json:"relation"`
	Target   string                  `json:"target"`
	Link     *catalog.SubjectLinkRow `json:"link,omitempty"`
}

// EnrichedEntitiesRelations is the final grounded graph: every entity
// participates in at least one relation, every relation carries its link.
type EnrichedEntitiesRelations struct {
	Relations []EnrichedRelation `json:"relations"`
	Entities  []EnrichedEntity   `json:"entities"`
}

// QueryStatus is the lifecycle state of one pipeline run.
type QueryStatus string

const (
	StatusPending   QueryStatus = "pending"
	StatusRunning   QueryStatus = "running"
	StatusSucceeded QueryStatus = "succeeded"
	StatusFailed    QueryStatus = "failed"
)

// MaxSteps is the number of pipeline stages.
const MaxSteps = 5

// QueryProgress tracks one in-flight pipeline run. RelationsSteps is
// append-only, one snapshot per completed stage; the record is never
// mutated after the terminal stage writes it.
type QueryProgress struct {
	ID                string                     `json:"id"`
	StartTime         string                     `json:"start_time"`
	Progress          int                        `json:"progress"`
	MaxSteps          int                        `json:"max_steps"`
	Message           string                     `json:"message"`
	Status            QueryStatus                `json:"status"`
	Error             string                     `json:"error,omitempty"`
	RelationsSteps    []json.RawMessage          `json:"relations_steps"`
	EnrichedRelations *EnrichedEntitiesRelations `json:"enriched_relations,omitempty"`
}

// NewQueryProgress creates the initial record written at submission time.
func NewQueryProgress(id string, start time.Time) *QueryProgress {
	return &QueryProgress{
		ID:             id,
		StartTime:      start.UTC().Format(time.RFC3339),
		Progress:       0,
		MaxSteps:       MaxSteps,
		Message:        msgQueryingERL,
		Status:         StatusPending,
		RelationsSteps: []json.RawMessage{},
	}
}

// appendStep marshals a stage snapshot onto the record. A snapshot that
// cannot marshal is skipped rather than failing the stage.
func (p *QueryProgress) appendStep(snapshot any) {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	p.RelationsSteps = append(p.RelationsSteps, raw)
}
