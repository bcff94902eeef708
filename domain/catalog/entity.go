// Package catalog is the persistent candidate store: ontology subjects,
// subject links, and topics with their precomputed embeddings, keyed by
// ontology snapshot hash.
package catalog

import (
	"github.com/uptrace/bun"
)

// SubjectRow is one ontology class or named individual in the store.
// Rows are written in bulk during snapshot ingest and immutable afterwards
// except for topic reassignment.
type SubjectRow struct {
	bun.BaseModel `bun:"table:subjects"`

	SubjectID     string  `bun:"subject_id,pk" json:"subject_id"`
	OntoHash      string  `bun:"onto_hash,pk" json:"onto_hash"`
	ParentID      *string `bun:"parent_id" json:"parent_id,omitempty"`
	Label         string  `bun:"label" json:"label"`
	Comment       string  `bun:"comment" json:"comment,omitempty"`
	SubjectType   string  `bun:"subject_type" json:"subject_type"`
	TopicID       *int64  `bun:"topic_id" json:"topic_id,omitempty"`
	InstanceCount int64   `bun:"instance_count" json:"instance_count"`

	// Embedding is written through raw SQL with a vector cast and read back
	// as text; bun never maps the column directly.
	Embedding []float32 `bun:"-" json:"-"`
}

// LinkType discriminates schema-level from instance-level links.
const (
	LinkTypeClass    = "class"
	LinkTypeInstance = "instance"
)

// SubjectLinkRow is one subject-to-subject or subject-to-literal property
// edge. Exactly one of ToID and ToProptype is set: subject targets carry
// ToID, literal-valued properties carry the datatype in ToProptype.
type SubjectLinkRow struct {
	bun.BaseModel `bun:"table:subject_links"`

	LinkID        int64   `bun:"link_id,pk,autoincrement" json:"link_id"`
	OntoHash      string  `bun:"onto_hash" json:"onto_hash"`
	FromID        string  `bun:"from_id" json:"from_id"`
	ToID          *string `bun:"to_id" json:"to_id,omitempty"`
	ToProptype    *string `bun:"to_proptype" json:"to_proptype,omitempty"`
	PropertyID    string  `bun:"property_id" json:"property_id"`
	LinkType      string  `bun:"link_type" json:"link_type"`
	Label         string  `bun:"label" json:"label"`
	Description   string  `bun:"description" json:"description,omitempty"`
	InstanceCount int64   `bun:"instance_count" json:"instance_count"`
	TopicID       *int64  `bun:"topic_id" json:"topic_id,omitempty"`

	Embedding []float32 `bun:"-" json:"-"`
}

// IsInstanceRelation reports whether the link targets another subject.
func (l *SubjectLinkRow) IsInstanceRelation() bool {
	return l.ToID != nil
}

// IsPropertyRelation reports whether the link targets a literal datatype.
func (l *SubjectLinkRow) IsPropertyRelation() bool {
	return l.ToID == nil && l.ToProptype != nil
}

// TopicRow is one node of the hierarchical topic clustering. Roots carry a
// null parent id; the tree invariant is enforced by traversal guards, not
// the schema.
type TopicRow struct {
	bun.BaseModel `bun:"table:topics"`

	TopicID       int64  `bun:"topic_id,pk,autoincrement" json:"topic_id"`
	OntoHash      string `bun:"onto_hash" json:"onto_hash"`
	ParentTopicID *int64 `bun:"parent_topic_id" json:"parent_topic_id,omitempty"`
	Topic         string `bun:"topic" json:"topic"`
	DocString     string `bun:"doc_string" json:"doc_string,omitempty"`
	Count         int64  `bun:"count" json:"count"`

	Embedding []float32 `bun:"-" json:"-"`
}
