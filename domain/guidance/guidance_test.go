package guidance

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onset-project/onset/domain/catalog"
	"github.com/onset-project/onset/domain/ontology"
	"github.com/onset-project/onset/pkg/apperror"
)

const testDimension = 4

type fakeStore struct {
	subjectHits []catalog.SubjectHit
	linkHits    []catalog.LinkHit
	topics      []catalog.TopicRow
	centroids   [][]float32

	lastSubjectParams catalog.SubjectSearchParams
	lastLinkParams    catalog.LinkSearchParams
}

func (f *fakeStore) SearchSubjects(ctx context.Context, params catalog.SubjectSearchParams) ([]catalog.SubjectHit, error) {
	f.lastSubjectParams = params
	return f.subjectHits, nil
}

func (f *fakeStore) SearchLinks(ctx context.Context, params catalog.LinkSearchParams) ([]catalog.LinkHit, error) {
	f.lastLinkParams = params
	return f.linkHits, nil
}

func (f *fakeStore) ListLinks(ctx context.Context, ontoHash string, fromIDs, toIDs []string, limit int) ([]catalog.SubjectLinkRow, error) {
	var rows []catalog.SubjectLinkRow
	for _, hit := range f.linkHits {
		rows = append(rows, hit.Row)
	}
	return rows, nil
}

func (f *fakeStore) ListTopics(ctx context.Context, ontoHash string) ([]catalog.TopicRow, error) {
	return f.topics, nil
}

func (f *fakeStore) TopicEmbeddings(ctx context.Context, ontoHash string, topicIDs []int64) ([][]float32, error) {
	return f.centroids, nil
}

type fakeEmbedder struct {
	vector []float32
	calls  int
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	f.calls++
	return f.vector, nil
}

type fakeManager struct {
	parents map[string][]string
}

func (f *fakeManager) EnrichSubject(ctx context.Context, id string) (*ontology.Subject, error) {
	return &ontology.Subject{ID: id, Label: id, Type: ontology.SubjectClass}, nil
}

func (f *fakeManager) GetParents(ctx context.Context, id string) ([]string, error) {
	return f.parents[id], nil
}

func (f *fakeManager) PropertyCount(ctx context.Context, propertyID string) (int64, error) {
	return 0, nil
}

func (f *fakeManager) QueryRows(ctx context.Context, query string) ([]ontology.Binding, error) {
	return nil, nil
}

func (f *fakeManager) ListClasses(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (f *fakeManager) SnapshotHash(ctx context.Context) (string, error) {
	return "test-hash", nil
}

func newTestService(store *fakeStore, mgr *fakeManager, emb *fakeEmbedder) *Service {
	if mgr == nil {
		mgr = &fakeManager{}
	}
	if emb == nil {
		emb = &fakeEmbedder{vector: []float32{1, 0, 0, 0}}
	}
	return &Service{
		store:        store,
		onto:         mgr,
		embedder:     emb,
		dimension:    testDimension,
		defaultLimit: 10,
		maxLimit:     100,
		topicAlpha:   0.3,
		rootClass:    "owl:Thing",
		log:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }

func TestNormalizeDefaults(t *testing.T) {
	q := &FuzzyQuery{Q: "  migraine  "}
	require.NoError(t, q.Normalize())

	assert.Equal(t, "migraine", q.Q)
	assert.Equal(t, ResultTypeBoth, q.Type)
	assert.Equal(t, OrderByScore, q.Order)
	assert.Equal(t, 0, q.Limit, "limit defaulting belongs to the service")
	assert.Equal(t, 0.3, q.MixFactor(0.3))
	assert.Equal(t, 0.25, (&FuzzyQuery{MixTopicFactor: floatPtr(0.25)}).MixFactor(0.3))
	assert.True(t, q.WantThing())
}

func TestNormalizeRejectsBadEnums(t *testing.T) {
	tests := []struct {
		name  string
		query FuzzyQuery
	}{
		{name: "bad type", query: FuzzyQuery{Type: "graph"}},
		{name: "bad relation type", query: FuzzyQuery{RelationType: "edge"}},
		{name: "bad order", query: FuzzyQuery{Order: "alphabetical"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Normalize()
			require.Error(t, err)
			var appErr *apperror.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, "validation_error", appErr.Code)
		})
	}
}

func TestBuildQueryVectorTextOnly(t *testing.T) {
	emb := &fakeEmbedder{vector: []float32{0.5, 0.5, 0, 0}}
	svc := newTestService(&fakeStore{}, nil, emb)

	vec, err := svc.BuildQueryVector(context.Background(), "test-hash", &FuzzyQuery{Q: "migraine"})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5, 0, 0}, vec)
	assert.Equal(t, 1, emb.calls)
}

func TestBuildQueryVectorTopicCentroid(t *testing.T) {
	store := &fakeStore{centroids: [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
	}}
	svc := newTestService(store, nil, &fakeEmbedder{})

	vec, err := svc.BuildQueryVector(context.Background(), "test-hash", &FuzzyQuery{TopicIDs: []int64{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5, 0, 0}, vec)
}

func TestBuildQueryVectorBlend(t *testing.T) {
	store := &fakeStore{centroids: [][]float32{{0, 0, 1, 0}}}
	emb := &fakeEmbedder{vector: []float32{1, 0, 0, 0}}
	svc := newTestService(store, nil, emb)

	// alpha 0.25: 0.75*text + 0.25*topic
	vec, err := svc.BuildQueryVector(context.Background(), "test-hash", &FuzzyQuery{
		Q:              "migraine",
		TopicIDs:       []int64{3},
		MixTopicFactor: floatPtr(0.25),
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, vec[0], 1e-6)
	assert.InDelta(t, 0.25, vec[2], 1e-6)
}

func TestBuildQueryVectorBlendUsesConfiguredAlpha(t *testing.T) {
	store := &fakeStore{centroids: [][]float32{{0, 0, 1, 0}}}
	emb := &fakeEmbedder{vector: []float32{1, 0, 0, 0}}
	svc := newTestService(store, nil, emb)

	// No explicit mix factor: the configured topic alpha (0.3) applies.
	vec, err := svc.BuildQueryVector(context.Background(), "test-hash", &FuzzyQuery{
		Q:        "migraine",
		TopicIDs: []int64{3},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.7, vec[0], 1e-6)
	assert.InDelta(t, 0.3, vec[2], 1e-6)
}

func TestBuildQueryVectorUniformFallback(t *testing.T) {
	emb := &fakeEmbedder{vector: []float32{1, 0, 0, 0}}
	svc := newTestService(&fakeStore{}, nil, emb)

	vec, err := svc.BuildQueryVector(context.Background(), "test-hash", &FuzzyQuery{})
	require.NoError(t, err)
	require.Len(t, vec, testDimension)
	for _, v := range vec {
		assert.InDelta(t, 1.0/testDimension, v, 1e-6)
	}
	assert.Equal(t, 0, emb.calls, "empty text must not be embedded")
}

func TestSearchFuzzyMergesByDistance(t *testing.T) {
	toID := "bto:Disease"
	store := &fakeStore{
		subjectHits: []catalog.SubjectHit{
			{Row: catalog.SubjectRow{SubjectID: "bto:Treatment"}, Distance: 0.3},
		},
		linkHits: []catalog.LinkHit{
			{Row: catalog.SubjectLinkRow{LinkID: 1, FromID: "bto:Drug", ToID: &toID}, Distance: 0.1},
			{Row: catalog.SubjectLinkRow{LinkID: 2, FromID: "bto:Drug", ToID: &toID}, Distance: 0.5},
		},
	}
	svc := newTestService(store, nil, nil)

	resp, err := svc.SearchFuzzy(context.Background(), &FuzzyQuery{Q: "treatment"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)

	assert.NotNil(t, resp.Results[0].Link)
	assert.EqualValues(t, 1, resp.Results[0].Link.LinkID)
	assert.NotNil(t, resp.Results[1].Subject)
	assert.Equal(t, "bto:Treatment", resp.Results[1].Subject.ID)
	assert.NotNil(t, resp.Results[2].Link)
	assert.EqualValues(t, 2, resp.Results[2].Link.LinkID)

	assert.InDelta(t, 0.9, resp.Results[0].Score, 1e-9)
	assert.InDelta(t, 0.7, resp.Results[1].Score, 1e-9)
	assert.InDelta(t, 0.5, resp.Results[2].Score, 1e-9)
}

func TestSearchFuzzyAppliesConfiguredDefaultLimit(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store, nil, nil)

	_, err := svc.SearchFuzzy(context.Background(), &FuzzyQuery{Q: "x"})
	require.NoError(t, err)
	assert.Equal(t, svc.defaultLimit, store.lastSubjectParams.Limit)
	assert.Equal(t, svc.defaultLimit, store.lastLinkParams.Limit)

	_, err = svc.SearchFuzzy(context.Background(), &FuzzyQuery{Q: "x", Limit: 7})
	require.NoError(t, err)
	assert.Equal(t, 7, store.lastSubjectParams.Limit)

	_, err = svc.SearchFuzzy(context.Background(), &FuzzyQuery{Q: "x", Limit: 9999})
	require.NoError(t, err)
	assert.Equal(t, svc.maxLimit, store.lastSubjectParams.Limit)
}

func TestSearchFuzzyBothKeepsEachKindUpToLimit(t *testing.T) {
	toID := "bto:Disease"
	store := &fakeStore{
		subjectHits: []catalog.SubjectHit{
			{Row: catalog.SubjectRow{SubjectID: "bto:A"}, Distance: 0.1},
			{Row: catalog.SubjectRow{SubjectID: "bto:B"}, Distance: 0.2},
		},
		linkHits: []catalog.LinkHit{
			{Row: catalog.SubjectLinkRow{LinkID: 1, ToID: &toID}, Distance: 0.3},
			{Row: catalog.SubjectLinkRow{LinkID: 2, ToID: &toID}, Distance: 0.4},
		},
	}
	svc := newTestService(store, nil, nil)

	// Each sub-search honors the limit on its own; the merged list may hold
	// up to twice the requested count.
	resp, err := svc.SearchFuzzy(context.Background(), &FuzzyQuery{Q: "x", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 4)
	assert.Equal(t, 4, resp.Total)
}

func TestSearchFuzzyOrderByInstances(t *testing.T) {
	store := &fakeStore{
		subjectHits: []catalog.SubjectHit{
			{Row: catalog.SubjectRow{SubjectID: "bto:Rare", InstanceCount: 2}, Distance: 0.1},
		},
		linkHits: []catalog.LinkHit{
			{Row: catalog.SubjectLinkRow{LinkID: 1, InstanceCount: 50}, Distance: 0.9},
		},
	}
	svc := newTestService(store, nil, nil)

	resp, err := svc.SearchFuzzy(context.Background(), &FuzzyQuery{Q: "x", Order: OrderByInstances})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)

	assert.True(t, store.lastSubjectParams.OrderByInstances)
	assert.True(t, store.lastLinkParams.OrderByInstances)
	assert.NotNil(t, resp.Results[0].Link, "higher instance count ranks first")
	assert.NotNil(t, resp.Results[1].Subject)
}

func TestSearchFuzzyAncestorExpansion(t *testing.T) {
	mgr := &fakeManager{parents: map[string][]string{
		"bto:Patient": {"bto:Person", "bto:Agent"},
	}}
	store := &fakeStore{}
	svc := newTestService(store, mgr, nil)

	_, err := svc.SearchFuzzy(context.Background(), &FuzzyQuery{
		Q:       "relations",
		Type:    ResultTypeLink,
		FromIDs: []string{"bto:Patient"},
	})
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"bto:Patient", "bto:Person", "bto:Agent", "owl:Thing"},
		store.lastLinkParams.FromIDs)
}

func TestSearchFuzzyAncestorExpansionWithoutThing(t *testing.T) {
	mgr := &fakeManager{parents: map[string][]string{
		"bto:Patient": {"bto:Person"},
	}}
	store := &fakeStore{}
	svc := newTestService(store, mgr, nil)

	_, err := svc.SearchFuzzy(context.Background(), &FuzzyQuery{
		Q:            "relations",
		Type:         ResultTypeLink,
		FromIDs:      []string{"bto:Patient"},
		ToID:         "bto:Disease",
		IncludeThing: boolPtr(false),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"bto:Patient", "bto:Person"}, store.lastLinkParams.FromIDs)
	assert.Equal(t, []string{"bto:Disease"}, store.lastLinkParams.ToIDs)
}

func TestSearchFuzzyRelationTypePassthrough(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store, nil, nil)

	_, err := svc.SearchFuzzy(context.Background(), &FuzzyQuery{
		Q:            "date of birth",
		Type:         ResultTypeLink,
		RelationType: RelationTypeProperty,
	})
	require.NoError(t, err)
	assert.Equal(t, catalog.RelationProperty, store.lastLinkParams.Kind)
}

func TestSearchFuzzySubjectOnlySkipsLinks(t *testing.T) {
	store := &fakeStore{
		subjectHits: []catalog.SubjectHit{
			{Row: catalog.SubjectRow{SubjectID: "bto:Disease", InstanceCount: 7}, Distance: 0.2},
		},
		linkHits: []catalog.LinkHit{
			{Row: catalog.SubjectLinkRow{LinkID: 1}, Distance: 0.01},
		},
	}
	svc := newTestService(store, nil, nil)

	resp, err := svc.SearchFuzzy(context.Background(), &FuzzyQuery{Q: "disease", Type: ResultTypeSubject})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	require.NotNil(t, resp.Results[0].Subject)
	assert.EqualValues(t, 7, resp.Results[0].Subject.InstanceCount)
	assert.Equal(t, catalog.LinkSearchParams{}, store.lastLinkParams, "link search must not run")
}

func TestSearchFuzzyDegenerateQuery(t *testing.T) {
	store := &fakeStore{
		subjectHits: []catalog.SubjectHit{
			{Row: catalog.SubjectRow{SubjectID: "bto:A"}, Distance: 0.4},
		},
	}
	svc := newTestService(store, nil, nil)

	resp, err := svc.SearchFuzzy(context.Background(), &FuzzyQuery{Type: ResultTypeSubject})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	for _, v := range store.lastSubjectParams.Vector {
		assert.InDelta(t, 1.0/testDimension, v, 1e-6)
	}
}

func TestTopicTree(t *testing.T) {
	root := int64(1)
	store := &fakeStore{topics: []catalog.TopicRow{
		{TopicID: 1, Topic: "clinical", Count: 10},
		{TopicID: 2, ParentTopicID: &root, Topic: "treatment", Count: 4},
		{TopicID: 3, ParentTopicID: &root, Topic: "diagnosis", Count: 6},
	}}
	svc := newTestService(store, nil, nil)

	tree, err := svc.TopicTree(context.Background())
	require.NoError(t, err)
	require.Len(t, tree, 1)
	assert.Equal(t, "clinical", tree[0].Topic)
	assert.Len(t, tree[0].Children, 2)
}

func TestTopicTreeCycleTerminates(t *testing.T) {
	one, two := int64(1), int64(2)
	store := &fakeStore{topics: []catalog.TopicRow{
		{TopicID: 1, ParentTopicID: &two, Topic: "a"},
		{TopicID: 2, ParentTopicID: &one, Topic: "b"},
		{TopicID: 3, Topic: "root"},
	}}
	svc := newTestService(store, nil, nil)

	tree, err := svc.TopicTree(context.Background())
	require.NoError(t, err)
	require.Len(t, tree, 1, "cyclic topics are unreachable from roots")
	assert.Equal(t, "root", tree[0].Topic)
}
