package ontology

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/onset-project/onset/internal/config"
	"github.com/onset-project/onset/pkg/logger"
)

// maxHierarchyDepth bounds ancestor walks; subclass chains deeper than this
// indicate a cycle in the source ontology.
const maxHierarchyDepth = 64

// Manager is the read-only ontology surface the retrieval and enrichment
// layers depend on. All operations are idempotent and side-effect free.
type Manager interface {
	// EnrichSubject materializes a subject with all its outgoing edges
	EnrichSubject(ctx context.Context, id string) (*Subject, error)

	// GetParents returns the ordered ancestor chain of a class, nearest first
	GetParents(ctx context.Context, id string) ([]string, error)

	// PropertyCount counts triples using the given property
	PropertyCount(ctx context.Context, propertyID string) (int64, error)

	// QueryRows runs a raw SELECT query against the ontology
	QueryRows(ctx context.Context, query string) ([]Binding, error)

	// ListClasses enumerates every owl:Class in the ontology
	ListClasses(ctx context.Context) ([]string, error)

	// SnapshotHash returns a stable identifier for the current ontology
	// contents, used to key rows in the candidate store
	SnapshotHash(ctx context.Context) (string, error)
}

// sparqlManager implements Manager against a SPARQL endpoint.
type sparqlManager struct {
	client     *SPARQLClient
	rootClass  string
	sampleSize int
	shortened  map[string]string // namespace IRI -> prefix
	log        *slog.Logger
}

// NewManager creates the ontology manager. Without a configured endpoint a
// noop manager is returned that echoes ids back as bare subjects.
func NewManager(cfg *config.Config, log *slog.Logger) Manager {
	ontoCfg := cfg.Ontology
	if !ontoCfg.IsConfigured() {
		log.Info("ontology manager disabled - no SPARQL endpoint configured")
		return &noopManager{}
	}

	shortened := make(map[string]string, len(standardPrefixes)+len(ontoCfg.Prefixes))
	for prefix, ns := range standardPrefixes {
		shortened[ns] = prefix
	}
	for prefix, ns := range ontoCfg.Prefixes {
		shortened[ns] = prefix
	}

	return &sparqlManager{
		client:     NewSPARQLClient(ontoCfg.Endpoint, ontoCfg.Timeout, ontoCfg.Prefixes, log),
		rootClass:  ontoCfg.RootClass,
		sampleSize: ontoCfg.SampleSize,
		shortened:  shortened,
		log:        log.With(logger.Scope("ontology")),
	}
}

// ref renders an id as a SPARQL term: full IRIs get wrapped in angle
// brackets, prefixed names pass through.
func ref(id string) string {
	if strings.HasPrefix(id, "http://") || strings.HasPrefix(id, "https://") {
		return "<" + id + ">"
	}
	return id
}

// shorten converts a full IRI back to its prefixed form when a known
// namespace matches, otherwise returns it unchanged.
func (m *sparqlManager) shorten(iri string) string {
	for ns, prefix := range m.shortened {
		if strings.HasPrefix(iri, ns) {
			return prefix + ":" + iri[len(ns):]
		}
	}
	return iri
}

func (m *sparqlManager) EnrichSubject(ctx context.Context, id string) (*Subject, error) {
	rows, err := m.client.Select(ctx, fmt.Sprintf(
		"SELECT ?p ?o WHERE { %s ?p ?o . }", ref(id)))
	if err != nil {
		return nil, err
	}

	spo := make(map[string]Property)
	for _, row := range rows {
		pred := m.shorten(row["p"].Value)
		obj := row["o"].Value
		if row["o"].Type == "uri" {
			obj = m.shorten(obj)
		}
		prop := spo[pred]
		prop.Property = pred
		prop.Values = append(prop.Values, PropertyValue{Value: obj})
		spo[pred] = prop
	}

	subj := &Subject{
		ID:    id,
		Label: id,
		SPO:   spo,
		Type:  SubjectClass,
	}
	if label := spo["rdfs:label"].FirstValue(); label != "" {
		subj.Label = label
	}
	for _, v := range spo["rdf:type"].Values {
		if v.Value == "owl:NamedIndividual" {
			subj.Type = SubjectIndividual
			break
		}
	}
	return subj, nil
}

func (m *sparqlManager) GetParents(ctx context.Context, id string) ([]string, error) {
	var parents []string
	visited := map[string]bool{id: true}
	current := id

	for depth := 0; depth < maxHierarchyDepth; depth++ {
		rows, err := m.client.Select(ctx, fmt.Sprintf(
			"SELECT ?sup WHERE { %s rdfs:subClassOf ?sup . }", ref(current)))
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return parents, nil
		}

		next := m.shorten(rows[0]["sup"].Value)
		if visited[next] {
			m.log.Warn("subclass cycle detected", slog.String("subject", next))
			return parents, nil
		}
		visited[next] = true
		parents = append(parents, next)
		current = next
	}

	return parents, fmt.Errorf("class hierarchy deeper than %d for %s", maxHierarchyDepth, id)
}

func (m *sparqlManager) PropertyCount(ctx context.Context, propertyID string) (int64, error) {
	rows, err := m.client.Select(ctx, fmt.Sprintf(
		"SELECT (COUNT(?s) AS ?count) WHERE { ?s %s ?o . }", ref(propertyID)))
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	count, err := strconv.ParseInt(rows[0]["count"].Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse property count: %w", err)
	}
	return count, nil
}

func (m *sparqlManager) QueryRows(ctx context.Context, query string) ([]Binding, error) {
	return m.client.Select(ctx, query)
}

func (m *sparqlManager) ListClasses(ctx context.Context) ([]string, error) {
	rows, err := m.client.Select(ctx,
		"SELECT DISTINCT ?cls WHERE { ?cls rdf:type owl:Class . }")
	if err != nil {
		return nil, err
	}
	classes := make([]string, 0, len(rows))
	for _, row := range rows {
		classes = append(classes, m.shorten(row["cls"].Value))
	}
	sort.Strings(classes)
	return classes, nil
}

func (m *sparqlManager) SnapshotHash(ctx context.Context) (string, error) {
	rows, err := m.client.Select(ctx, fmt.Sprintf(
		"SELECT ?s ?p ?o WHERE { ?s ?p ?o . } ORDER BY ?s ?p ?o LIMIT %d", m.sampleSize))
	if err != nil {
		return "", err
	}

	h := sha256.New()
	for _, row := range rows {
		fmt.Fprintf(h, "%s|%s|%s\n", row["s"].Value, row["p"].Value, row["o"].Value)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// noopManager serves development setups without an ontology endpoint.
type noopManager struct{}

func (n *noopManager) EnrichSubject(ctx context.Context, id string) (*Subject, error) {
	return &Subject{ID: id, Label: id, Type: SubjectClass}, nil
}

func (n *noopManager) GetParents(ctx context.Context, id string) ([]string, error) {
	return nil, nil
}

func (n *noopManager) PropertyCount(ctx context.Context, propertyID string) (int64, error) {
	return 0, nil
}

func (n *noopManager) QueryRows(ctx context.Context, query string) ([]Binding, error) {
	return nil, nil
}

func (n *noopManager) ListClasses(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (n *noopManager) SnapshotHash(ctx context.Context) (string, error) {
	return "local-dev", nil
}
