// Package guidance is the fuzzy retrieval engine: similarity-ranked lookups
// over the candidate store, blending free-text query vectors with topic
// centroids and enforcing hierarchy and relation-kind filters.
package guidance

import (
	"strings"

	"github.com/onset-project/onset/domain/catalog"
	"github.com/onset-project/onset/domain/ontology"
	"github.com/onset-project/onset/pkg/apperror"
)

// ResultType selects which result kinds a fuzzy search returns.
type ResultType string

const (
	ResultTypeSubject ResultType = "subject"
	ResultTypeLink    ResultType = "link"
	ResultTypeBoth    ResultType = "both"
)

// RelationType narrows link results to one edge flavor.
type RelationType string

const (
	RelationTypeAny      RelationType = ""
	RelationTypeInstance RelationType = "instance"
	RelationTypeProperty RelationType = "property"
)

// OrderMode selects the ranking criterion.
type OrderMode string

const (
	OrderByScore     OrderMode = "score"
	OrderByInstances OrderMode = "instances"
)

// FuzzyQuery is one retrieval request. An empty Q and an empty TopicIDs list
// are both treated as absent; with neither present the search degrades to a
// uniform query vector and ranks by the secondary ordering alone.
type FuzzyQuery struct {
	Q              string       `json:"q"`
	TopicIDs       []int64      `json:"topic_ids,omitempty"`
	MixTopicFactor *float64     `json:"mix_topic_factor,omitempty"`
	FromIDs        []string     `json:"from_ids,omitempty"`
	ToID           string       `json:"to_id,omitempty"`
	Limit          int          `json:"limit,omitempty"`
	Skip           int          `json:"skip,omitempty"`
	Type           ResultType   `json:"type,omitempty"`
	RelationType   RelationType `json:"relation_type,omitempty"`
	Order          OrderMode    `json:"order,omitempty"`
	IncludeThing   *bool        `json:"include_thing,omitempty"`
}

// Normalize applies defaults and validates enum fields. Limit stays as
// given; the service clamps it against the configured default and maximum.
func (q *FuzzyQuery) Normalize() error {
	q.Q = strings.TrimSpace(q.Q)

	if q.Type == "" {
		q.Type = ResultTypeBoth
	}
	switch q.Type {
	case ResultTypeSubject, ResultTypeLink, ResultTypeBoth:
	default:
		return apperror.ErrValidation.WithMessage("type must be one of subject|link|both")
	}

	switch q.RelationType {
	case RelationTypeAny, RelationTypeInstance, RelationTypeProperty:
	default:
		return apperror.ErrValidation.WithMessage("relation_type must be one of instance|property")
	}

	if q.Order == "" {
		q.Order = OrderByScore
	}
	switch q.Order {
	case OrderByScore, OrderByInstances:
	default:
		return apperror.ErrValidation.WithMessage("order must be one of score|instances")
	}

	if q.Skip < 0 {
		q.Skip = 0
	}
	return nil
}

// MixFactor returns the topic blend weight, falling back to the configured
// default when the request leaves it unset.
func (q *FuzzyQuery) MixFactor(fallback float64) float64 {
	if q.MixTopicFactor == nil {
		return fallback
	}
	return *q.MixTopicFactor
}

// WantThing reports whether the universal root class joins ancestor sets.
func (q *FuzzyQuery) WantThing() bool {
	if q.IncludeThing == nil {
		return true
	}
	return *q.IncludeThing
}

// FuzzyResult is one ranked hit: a subject or a link, never both. Score is
// cosine similarity (1 - distance); Distance is what the merge sorts on.
type FuzzyResult struct {
	Subject  *ontology.Subject       `json:"subject,omitempty"`
	Link     *catalog.SubjectLinkRow `json:"link,omitempty"`
	Score    float64                 `json:"score"`
	Distance float64                 `json:"distance"`

	instanceCount int64
}

// FuzzySearchResponse wraps the merged, globally re-sorted result list.
type FuzzySearchResponse struct {
	Results []FuzzyResult `json:"results"`
	Total   int           `json:"total"`
}

// TopicNode is one node of the topic tree returned by /api/topics.
type TopicNode struct {
	TopicID   int64        `json:"topic_id"`
	Topic     string       `json:"topic"`
	DocString string       `json:"doc_string,omitempty"`
	Count     int64        `json:"count"`
	Children  []*TopicNode `json:"children,omitempty"`
}

// LinkListRequest parameterizes the plain (non-vector) link lookup.
type LinkListRequest struct {
	FromIDs []string `json:"from_ids,omitempty"`
	ToIDs   []string `json:"to_ids,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}
