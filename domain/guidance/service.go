package guidance

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/onset-project/onset/domain/catalog"
	"github.com/onset-project/onset/domain/ontology"
	"github.com/onset-project/onset/internal/config"
	"github.com/onset-project/onset/pkg/embeddings"
	"github.com/onset-project/onset/pkg/logger"
	"github.com/onset-project/onset/pkg/mathutil"
)

// Store is the candidate-store surface the retrieval engine needs.
type Store interface {
	SearchSubjects(ctx context.Context, params catalog.SubjectSearchParams) ([]catalog.SubjectHit, error)
	SearchLinks(ctx context.Context, params catalog.LinkSearchParams) ([]catalog.LinkHit, error)
	ListLinks(ctx context.Context, ontoHash string, fromIDs, toIDs []string, limit int) ([]catalog.SubjectLinkRow, error)
	ListTopics(ctx context.Context, ontoHash string) ([]catalog.TopicRow, error)
	TopicEmbeddings(ctx context.Context, ontoHash string, topicIDs []int64) ([][]float32, error)
}

// Embedder encodes free text into query vectors.
type Embedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// Service executes fuzzy retrieval over the candidate store.
type Service struct {
	store        Store
	onto         ontology.Manager
	embedder     Embedder
	dimension    int
	defaultLimit int
	maxLimit     int
	topicAlpha   float64
	rootClass    string
	log          *slog.Logger

	hashMu   sync.Mutex
	ontoHash string
}

// NewService creates a new guidance service
func NewService(
	repo *catalog.Repository,
	onto ontology.Manager,
	embeddingsSvc *embeddings.Service,
	cfg *config.Config,
	log *slog.Logger,
) *Service {
	return &Service{
		store:        repo,
		onto:         onto,
		embedder:     embeddingsSvc,
		dimension:    cfg.Embeddings.Dimension,
		defaultLimit: cfg.Search.DefaultLimit,
		maxLimit:     cfg.Search.MaxLimit,
		topicAlpha:   cfg.Search.TopicAlpha,
		rootClass:    cfg.Ontology.RootClass,
		log:          log.With(logger.Scope("guidance.svc")),
	}
}

// snapshotHash resolves and caches the current ontology snapshot hash. The
// hash is stable for the process lifetime; a resolution failure is retried
// on the next call.
func (s *Service) snapshotHash(ctx context.Context) (string, error) {
	s.hashMu.Lock()
	defer s.hashMu.Unlock()
	if s.ontoHash != "" {
		return s.ontoHash, nil
	}
	hash, err := s.onto.SnapshotHash(ctx)
	if err != nil {
		return "", err
	}
	s.ontoHash = hash
	return hash, nil
}

// BuildQueryVector constructs the search vector for a query: the encoded
// free text, the mean of the requested topic centroids, a blend of the two
// weighted by the mix factor, or a uniform fallback when neither is given.
func (s *Service) BuildQueryVector(ctx context.Context, ontoHash string, q *FuzzyQuery) ([]float32, error) {
	var textVec, topicVec []float32

	if q.Q != "" {
		vec, err := s.embedder.EmbedQuery(ctx, q.Q)
		if err != nil {
			return nil, err
		}
		textVec = vec
	}

	if len(q.TopicIDs) > 0 {
		centroids, err := s.store.TopicEmbeddings(ctx, ontoHash, q.TopicIDs)
		if err != nil {
			return nil, err
		}
		topicVec = mathutil.MeanVector(centroids)
	}

	switch {
	case textVec != nil && topicVec != nil:
		return mathutil.BlendVectors(textVec, topicVec, float32(q.MixFactor(s.topicAlpha))), nil
	case textVec != nil:
		return textVec, nil
	case topicVec != nil:
		return topicVec, nil
	default:
		return mathutil.UniformVector(s.dimension), nil
	}
}

// SearchFuzzy runs subject and/or link retrieval for one query and merges
// the hits into a single globally ordered list.
func (s *Service) SearchFuzzy(ctx context.Context, q *FuzzyQuery) (*FuzzySearchResponse, error) {
	if err := q.Normalize(); err != nil {
		return nil, err
	}
	limit := mathutil.ClampLimit(q.Limit, s.defaultLimit, s.maxLimit)

	ontoHash, err := s.snapshotHash(ctx)
	if err != nil {
		return nil, err
	}

	vector, err := s.BuildQueryVector(ctx, ontoHash, q)
	if err != nil {
		return nil, err
	}

	byInstances := q.Order == OrderByInstances
	var results []FuzzyResult

	if q.Type == ResultTypeSubject || q.Type == ResultTypeBoth {
		hits, err := s.store.SearchSubjects(ctx, catalog.SubjectSearchParams{
			OntoHash:         ontoHash,
			Vector:           vector,
			OrderByInstances: byInstances,
			Limit:            limit,
			Skip:             q.Skip,
		})
		if err != nil {
			return nil, err
		}
		for _, hit := range hits {
			subject, err := s.onto.EnrichSubject(ctx, hit.Row.SubjectID)
			if err != nil {
				return nil, err
			}
			subject.InstanceCount = hit.Row.InstanceCount
			results = append(results, FuzzyResult{
				Subject:       subject,
				Score:         1 - hit.Distance,
				Distance:      hit.Distance,
				instanceCount: hit.Row.InstanceCount,
			})
		}
	}

	if q.Type == ResultTypeLink || q.Type == ResultTypeBoth {
		params := catalog.LinkSearchParams{
			OntoHash:         ontoHash,
			Vector:           vector,
			Kind:             catalog.RelationKind(q.RelationType),
			OrderByInstances: byInstances,
			Limit:            limit,
			Skip:             q.Skip,
		}
		if len(q.FromIDs) > 0 {
			params.FromIDs, err = s.ancestorSet(ctx, q.FromIDs, q.WantThing())
			if err != nil {
				return nil, err
			}
		}
		if q.ToID != "" {
			params.ToIDs, err = s.ancestorSet(ctx, []string{q.ToID}, q.WantThing())
			if err != nil {
				return nil, err
			}
		}

		hits, err := s.store.SearchLinks(ctx, params)
		if err != nil {
			return nil, err
		}
		for i := range hits {
			results = append(results, FuzzyResult{
				Link:          &hits[i].Row,
				Score:         1 - hits[i].Distance,
				Distance:      hits[i].Distance,
				instanceCount: hits[i].Row.InstanceCount,
			})
		}
	}

	// Subjects and links share one relevance-ordered list. Each sub-search
	// carries its own limit, so a both-typed query may return up to twice
	// the requested count.
	if byInstances {
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].instanceCount > results[j].instanceCount
		})
	} else {
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Distance < results[j].Distance
		})
	}

	return &FuzzySearchResponse{Results: results, Total: len(results)}, nil
}

// ancestorSet expands subject ids to include their full ancestor chains.
// Instance data usually hangs off an ancestor class rather than the leaf, so
// a link attached to any ancestor of the requested id matches.
func (s *Service) ancestorSet(ctx context.Context, ids []string, includeThing bool) ([]string, error) {
	seen := make(map[string]bool)
	var expanded []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			expanded = append(expanded, id)
		}
	}

	for _, id := range ids {
		add(id)
		parents, err := s.onto.GetParents(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, p := range parents {
			add(p)
		}
	}
	if includeThing {
		add(s.rootClass)
	}
	return expanded, nil
}

// SearchLinks is the plain filtered link lookup without vector ranking.
func (s *Service) SearchLinks(ctx context.Context, req *LinkListRequest) ([]catalog.SubjectLinkRow, error) {
	ontoHash, err := s.snapshotHash(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.ListLinks(ctx, ontoHash, req.FromIDs, req.ToIDs, req.Limit)
}

// TopicTree assembles the hierarchical topic tree for the snapshot. Roots
// have a null parent id; traversal carries a visited set so a corrupt
// parent chain cannot recurse forever.
func (s *Service) TopicTree(ctx context.Context) ([]*TopicNode, error) {
	ontoHash, err := s.snapshotHash(ctx)
	if err != nil {
		return nil, err
	}
	topics, err := s.store.ListTopics(ctx, ontoHash)
	if err != nil {
		return nil, err
	}

	nodes := make(map[int64]*TopicNode, len(topics))
	children := make(map[int64][]int64)
	var rootIDs []int64
	for _, t := range topics {
		nodes[t.TopicID] = &TopicNode{
			TopicID:   t.TopicID,
			Topic:     t.Topic,
			DocString: t.DocString,
			Count:     t.Count,
		}
		if t.ParentTopicID == nil {
			rootIDs = append(rootIDs, t.TopicID)
		} else {
			children[*t.ParentTopicID] = append(children[*t.ParentTopicID], t.TopicID)
		}
	}

	visited := make(map[int64]bool)
	var build func(id int64) *TopicNode
	build = func(id int64) *TopicNode {
		if visited[id] {
			s.log.Warn("topic tree cycle detected", slog.Int64("topic_id", id))
			return nil
		}
		visited[id] = true
		node := nodes[id]
		for _, childID := range children[id] {
			if child := build(childID); child != nil {
				node.Children = append(node.Children, child)
			}
		}
		return node
	}

	var roots []*TopicNode
	for _, id := range rootIDs {
		if root := build(id); root != nil {
			roots = append(roots, root)
		}
	}
	return roots, nil
}
