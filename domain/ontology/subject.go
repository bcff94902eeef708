// Package ontology provides the read-only view over the source ontology:
// subject enrichment, class hierarchy walks, and snapshot hashing.
package ontology

// PropertyValue is one object of a subject-predicate-object triple.
type PropertyValue struct {
	Value string `json:"value"`
	Label string `json:"label,omitempty"`
}

// Property groups all objects sharing one predicate on a subject.
type Property struct {
	Property string          `json:"property"`
	Label    string          `json:"label,omitempty"`
	Values   []PropertyValue `json:"values"`
}

// FirstValue returns the first object value, or "" when the property is empty.
func (p Property) FirstValue() string {
	if len(p.Values) > 0 {
		return p.Values[0].Value
	}
	return ""
}

// SubjectType discriminates ontology classes from named individuals.
type SubjectType string

const (
	SubjectClass      SubjectType = "class"
	SubjectIndividual SubjectType = "individual"
)

// Subject is an enriched ontology node: a class or a named individual with
// its outgoing edges materialized.
type Subject struct {
	ID            string              `json:"subject_id"`
	Label         string              `json:"label"`
	SPO           map[string]Property `json:"spos,omitempty"`
	Type          SubjectType         `json:"subject_type"`
	InstanceCount int64               `json:"instance_count"`
}

// IsOfType reports whether the subject is the given class or declares it as
// a direct superclass.
func (s *Subject) IsOfType(subjectID string) bool {
	if s == nil {
		return false
	}
	if s.ID == subjectID {
		return true
	}
	for _, v := range s.SPO["rdfs:subClassOf"].Values {
		if v.Value == subjectID {
			return true
		}
	}
	return false
}

// DomainID returns the declared rdfs:domain of a property subject, or "".
func (s *Subject) DomainID() string {
	return s.SPO["rdfs:domain"].FirstValue()
}

// RangeID returns the declared rdfs:range of a property subject, or "".
func (s *Subject) RangeID() string {
	return s.SPO["rdfs:range"].FirstValue()
}

// Comment returns the rdfs:comment annotation, or "".
func (s *Subject) Comment() string {
	return s.SPO["rdfs:comment"].FirstValue()
}

// ParentID returns the first declared superclass, or "".
func (s *Subject) ParentID() string {
	return s.SPO["rdfs:subClassOf"].FirstValue()
}
