package llmquery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onset-project/onset/domain/catalog"
	"github.com/onset-project/onset/domain/guidance"
	"github.com/onset-project/onset/domain/ontology"
	"github.com/onset-project/onset/internal/config"
	"github.com/onset-project/onset/pkg/apperror"
	"github.com/onset-project/onset/pkg/llm"
	"github.com/onset-project/onset/pkg/logger"
)

// Retriever is the fuzzy-search surface the pipeline recalls candidates
// through.
type Retriever interface {
	SearchFuzzy(ctx context.Context, q *guidance.FuzzyQuery) (*guidance.FuzzySearchResponse, error)
}

// Generator runs one schema-constrained generation call.
type Generator interface {
	GenerateJSON(ctx context.Context, req llm.Request) (string, error)
}

// Resolver resolves labels to concrete rows, scoped to an explicit id set.
type Resolver interface {
	LinkByLabel(ctx context.Context, ontoHash, label string, linkIDs []int64) (*catalog.SubjectLinkRow, error)
	SubjectByLabel(ctx context.Context, ontoHash, label string, subjectIDs []string) (*catalog.SubjectRow, error)
}

// EnrichmentStore runs enrichment lookups inside a read-only transaction.
type EnrichmentStore interface {
	InReadOnlyTx(ctx context.Context, fn func(ctx context.Context, r Resolver) error) error
}

// QueryRequest is the submission payload.
type QueryRequest struct {
	Q        string `json:"q"`
	ZeroShot bool   `json:"zero_shot,omitempty"`
}

// Service orchestrates the five-stage query pipeline.
type Service struct {
	retriever      Retriever
	generator      Generator
	onto           ontology.Manager
	store          EnrichmentStore
	cache          ProgressCache
	candidateLimit int
	log            *slog.Logger

	hashMu   sync.Mutex
	ontoHash string
}

// NewService creates a new llmquery service
func NewService(
	guidanceSvc *guidance.Service,
	llmSvc *llm.Service,
	onto ontology.Manager,
	store EnrichmentStore,
	cache ProgressCache,
	cfg *config.Config,
	log *slog.Logger,
) *Service {
	return &Service{
		retriever:      guidanceSvc,
		generator:      llmSvc,
		onto:           onto,
		store:          store,
		cache:          cache,
		candidateLimit: cfg.Search.CandidateLimit,
		log:            log.With(logger.Scope("llmquery.svc")),
	}
}

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

// StartQuery allocates a progress record, kicks the pipeline off on its own
// goroutine, and returns immediately. The record id doubles as the poll key.
func (s *Service) StartQuery(ctx context.Context, req *QueryRequest) (*QueryProgress, error) {
	if req.Q == "" {
		return nil, apperror.ErrBadRequest.WithMessage("q is required")
	}

	now := time.Now()
	key := fmt.Sprintf("query:%s:%s", uuid.NewString(), now.UTC().Format(time.RFC3339))
	progress := NewQueryProgress(key, now)
	if err := s.cache.Put(ctx, key, progress); err != nil {
		return nil, err
	}
	queriesSubmitted.Inc()

	// The goroutine owns the record from here; hand the caller a copy.
	initial := *progress
	go s.run(context.Background(), progress, req.Q, req.ZeroShot)

	return &initial, nil
}

// Progress returns the current record for a query id, or not-found once it
// has expired from the cache.
func (s *Service) Progress(ctx context.Context, id string) (*QueryProgress, error) {
	return s.cache.Get(ctx, id)
}

// run executes the pipeline stages sequentially. Any stage error marks the
// run failed with the reason; the record keeps every snapshot written so
// far.
func (s *Service) run(ctx context.Context, progress *QueryProgress, query string, zeroShot bool) {
	progress.Status = StatusRunning
	s.put(ctx, progress)

	if err := s.runStages(ctx, progress, query, zeroShot); err != nil {
		s.log.Error("query pipeline failed",
			slog.String("query_id", progress.ID),
			slog.Int("stage", progress.Progress+1),
			logger.Error(err),
		)
		progress.Status = StatusFailed
		progress.Error = err.Error()
		s.put(ctx, progress)
		queriesFinished.WithLabelValues(string(StatusFailed)).Inc()
		return
	}
	queriesFinished.WithLabelValues(string(StatusSucceeded)).Inc()
}

func (s *Service) runStages(ctx context.Context, progress *QueryProgress, query string, zeroShot bool) error {
	start := time.Now()
	erl, err := s.queryERL(ctx, query, zeroShot)
	if err != nil {
		return err
	}
	stageDuration.WithLabelValues("query_erl").Observe(time.Since(start).Seconds())
	progress.Progress = 1
	progress.Message = msgFetchingCandidates
	progress.appendStep(erl)
	s.put(ctx, progress)

	start = time.Now()
	candidates, err := s.candidatesForERL(ctx, erl)
	if err != nil {
		return err
	}
	stageDuration.WithLabelValues("candidates").Observe(time.Since(start).Seconds())
	progress.Progress = 2
	progress.Message = msgQueryingCandidates
	progress.appendStep(candidates)
	s.put(ctx, progress)

	start = time.Now()
	constrained, err := s.queryConstrained(ctx, query, candidates, zeroShot)
	if err != nil {
		return err
	}
	stageDuration.WithLabelValues("query_constrained").Observe(time.Since(start).Seconds())
	progress.Progress = 3
	progress.Message = msgEnrichingResults
	progress.appendStep(constrained)
	s.put(ctx, progress)

	start = time.Now()
	enriched, err := s.enrich(ctx, constrained, candidates)
	if err != nil {
		return err
	}
	stageDuration.WithLabelValues("enrich").Observe(time.Since(start).Seconds())
	progress.Progress = 4
	progress.appendStep(enriched)
	s.put(ctx, progress)

	progress.Progress = 5
	progress.Message = msgQueryCompleted
	progress.Status = StatusSucceeded
	progress.EnrichedRelations = enriched
	s.put(ctx, progress)
	return nil
}

// put writes a progress update. Intermediate write failures are logged and
// ignored so a flaky cache cannot kill an otherwise healthy run.
func (s *Service) put(ctx context.Context, progress *QueryProgress) {
	if err := s.cache.Put(ctx, progress.ID, progress); err != nil {
		s.log.Warn("failed to write query progress",
			slog.String("query_id", progress.ID),
			logger.Error(err),
		)
	}
}

// queryERL is stage 1: unconstrained generation of a first-pass graph.
func (s *Service) queryERL(ctx context.Context, query string, zeroShot bool) (*EntitiesRelations, error) {
	req := llm.Request{
		System: erlSystemPrompt,
		User:   query,
		Schema: BuildERLSchema(),
	}
	if !zeroShot {
		req.Examples = []llm.Example{erlExample}
	}
	raw, err := s.generator.GenerateJSON(ctx, req)
	if err != nil {
		return nil, err
	}
	return DecodeERL(raw)
}

// candidatesForERL is stage 2: recall ontology candidates for every
// relation, entity, and constraint of the stage-1 graph. Zero hits for a
// slot are not an error; the slot just degrades to an unconstrained string
// in stage 3.
func (s *Service) candidatesForERL(ctx context.Context, erl *EntitiesRelations) (*Candidates, error) {
	candidates := &Candidates{
		Relations:   []CandidateRelation{},
		Entities:    []CandidateEntity{},
		Constraints: []CandidateConstraint{},
	}
	labels := newLabelCache(s.onto)

	for _, relation := range erl.Relations {
		resp, err := s.retriever.SearchFuzzy(ctx, &guidance.FuzzyQuery{
			Q:            fmt.Sprintf("A %s is %s of %s", relation.Entity, relation.Relation, relation.Target),
			Limit:        s.candidateLimit,
			Type:         guidance.ResultTypeLink,
			RelationType: guidance.RelationTypeInstance,
		})
		if err != nil {
			return nil, err
		}
		for _, res := range resp.Results {
			if res.Link == nil {
				continue
			}
			candidates.Relations = append(candidates.Relations, CandidateRelation{
				Entity:   labels.resolve(ctx, res.Link.FromID),
				Relation: res.Link.Label,
				Target:   linkTargetLabel(ctx, labels, res.Link),
				Score:    res.Score,
				Link:     res.Link,
			})
		}
	}

	for _, entity := range erl.Entities {
		resp, err := s.retriever.SearchFuzzy(ctx, &guidance.FuzzyQuery{
			Q:     "A " + entity.Type,
			Limit: s.candidateLimit,
			Type:  guidance.ResultTypeSubject,
		})
		if err != nil {
			return nil, err
		}
		for _, res := range resp.Results {
			if res.Subject == nil {
				continue
			}
			candidates.Entities = append(candidates.Entities, CandidateEntity{
				Type:    res.Subject.Label,
				Score:   res.Score,
				Subject: res.Subject,
			})
		}

		for _, constraint := range entity.Constraints {
			resp, err := s.retriever.SearchFuzzy(ctx, &guidance.FuzzyQuery{
				Q:            fmt.Sprintf("The %s of is %s %s", constraint.Property, constraint.Modifier, constraint.Value),
				Limit:        s.candidateLimit,
				Type:         guidance.ResultTypeLink,
				RelationType: guidance.RelationTypeProperty,
			})
			if err != nil {
				return nil, err
			}
			for _, res := range resp.Results {
				if res.Link == nil {
					continue
				}
				cc := CandidateConstraint{
					Property: res.Link.Label,
					Score:    res.Score,
					Link:     res.Link,
				}
				if res.Link.ToProptype != nil {
					cc.Type = *res.Link.ToProptype
				}
				candidates.Constraints = append(candidates.Constraints, cc)
			}
		}
	}

	return candidates, nil
}

// queryConstrained is stage 3: regenerate against the candidate-derived
// schema so every produced label is one the retrieval stage recovered.
func (s *Service) queryConstrained(ctx context.Context, query string, candidates *Candidates, zeroShot bool) (*EntitiesRelations, error) {
	req := llm.Request{
		System: constrainedSystemPrompt,
		User:   query,
		Schema: BuildConstrainedSchema(candidates),
	}
	if !zeroShot {
		req.Examples = []llm.Example{erlExample}
	}
	raw, err := s.generator.GenerateJSON(ctx, req)
	if err != nil {
		return nil, err
	}
	return DecodeERL(raw)
}

// enrich is stage 4: rebind every surviving label to its concrete row,
// scoped to the stage-2 candidate set, then correct relation directions,
// synthesize placeholder entities for dangling references, and prune
// orphans. Unresolvable labels are dropped silently.
func (s *Service) enrich(ctx context.Context, erl *EntitiesRelations, candidates *Candidates) (*EnrichedEntitiesRelations, error) {
	ontoHash, err := s.snapshotHash(ctx)
	if err != nil {
		return nil, err
	}

	relLinkIDs := candidates.LinkIDs()
	conLinkIDs := candidates.ConstraintLinkIDs()
	subjectIDs := candidates.SubjectIDs()

	enriched := &EnrichedEntitiesRelations{
		Relations: []EnrichedRelation{},
		Entities:  []EnrichedEntity{},
	}

	err = s.store.InReadOnlyTx(ctx, func(ctx context.Context, r Resolver) error {
		for _, relation := range erl.Relations {
			row, err := r.LinkByLabel(ctx, ontoHash, relation.Relation, relLinkIDs)
			if err != nil {
				return err
			}
			if row == nil {
				continue
			}
			enriched.Relations = append(enriched.Relations, EnrichedRelation{
				Entity:   relation.Entity,
				Relation: relation.Relation,
				Target:   relation.Target,
				Link:     row,
			})
		}

		for _, entity := range erl.Entities {
			row, err := r.SubjectByLabel(ctx, ontoHash, entity.Type, subjectIDs)
			if err != nil {
				return err
			}
			if row == nil {
				continue
			}
			subject, err := s.onto.EnrichSubject(ctx, row.SubjectID)
			if err != nil {
				return err
			}
			subject.InstanceCount = row.InstanceCount

			enrichedEntity := EnrichedEntity{
				Identifier:  entity.Identifier,
				Type:        entity.Type,
				Subject:     subject,
				Constraints: []EnrichedConstraint{},
			}
			for _, constraint := range entity.Constraints {
				crow, err := r.LinkByLabel(ctx, ontoHash, constraint.Property, conLinkIDs)
				if err != nil {
					return err
				}
				if crow == nil {
					continue
				}
				enrichedEntity.Constraints = append(enrichedEntity.Constraints, EnrichedConstraint{
					Constraint: constraint,
					Link:       crow,
				})
			}
			enriched.Entities = append(enriched.Entities, enrichedEntity)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.correctDirections(enriched)
	if err := s.synthesizePlaceholders(ctx, enriched); err != nil {
		return nil, err
	}
	pruneOrphans(enriched)
	return enriched, nil
}

// correctDirections swaps a relation's endpoints when the bound entities
// contradict the link's declared domain/range.
func (s *Service) correctDirections(enriched *EnrichedEntitiesRelations) {
	byID := make(map[string]*EnrichedEntity, len(enriched.Entities))
	for i := range enriched.Entities {
		byID[enriched.Entities[i].Identifier] = &enriched.Entities[i]
	}

	for i := range enriched.Relations {
		relation := &enriched.Relations[i]
		if relation.Link == nil {
			continue
		}
		entity, target := byID[relation.Entity], byID[relation.Target]
		if entity == nil || target == nil {
			continue
		}

		domain := relation.Link.FromID
		var rangeID string
		if relation.Link.ToID != nil {
			rangeID = *relation.Link.ToID
		}

		domainSwapped := !entity.Subject.IsOfType(domain) && target.Subject.IsOfType(domain)
		rangeSwapped := rangeID != "" && !target.Subject.IsOfType(rangeID) && entity.Subject.IsOfType(rangeID)
		if domainSwapped || rangeSwapped {
			relation.Entity, relation.Target = relation.Target, relation.Entity
		}
	}
}

// synthesizePlaceholders appends entities for relation endpoints that
// reference an identifier absent from the entity list, built from the
// link's own declared endpoint subject.
func (s *Service) synthesizePlaceholders(ctx context.Context, enriched *EnrichedEntitiesRelations) error {
	present := make(map[string]bool, len(enriched.Entities))
	for _, e := range enriched.Entities {
		present[e.Identifier] = true
	}

	appendPlaceholder := func(identifier, subjectID string) error {
		if identifier == "" || subjectID == "" || present[identifier] {
			return nil
		}
		subject, err := s.onto.EnrichSubject(ctx, subjectID)
		if err != nil {
			return err
		}
		enriched.Entities = append(enriched.Entities, EnrichedEntity{
			Identifier:  identifier,
			Type:        subject.Label,
			Subject:     subject,
			Constraints: []EnrichedConstraint{},
		})
		present[identifier] = true
		return nil
	}

	for _, relation := range enriched.Relations {
		if relation.Link == nil {
			continue
		}
		if err := appendPlaceholder(relation.Entity, relation.Link.FromID); err != nil {
			return err
		}
		if relation.Link.ToID != nil {
			if err := appendPlaceholder(relation.Target, *relation.Link.ToID); err != nil {
				return err
			}
		}
	}
	return nil
}

// pruneOrphans removes entities that participate in zero relations.
func pruneOrphans(enriched *EnrichedEntitiesRelations) {
	referenced := make(map[string]bool, 2*len(enriched.Relations))
	for _, relation := range enriched.Relations {
		referenced[relation.Entity] = true
		referenced[relation.Target] = true
	}

	kept := enriched.Entities[:0]
	for _, entity := range enriched.Entities {
		if referenced[entity.Identifier] {
			kept = append(kept, entity)
		}
	}
	enriched.Entities = kept
}

// labelCache memoizes subject-id → label lookups within one stage.
type labelCache struct {
	onto   ontology.Manager
	labels map[string]string
}

func newLabelCache(onto ontology.Manager) *labelCache {
	return &labelCache{onto: onto, labels: make(map[string]string)}
}

// resolve returns the subject's label, falling back to the id itself when
// the ontology lookup fails.
func (c *labelCache) resolve(ctx context.Context, subjectID string) string {
	if label, ok := c.labels[subjectID]; ok {
		return label
	}
	label := subjectID
	if subject, err := c.onto.EnrichSubject(ctx, subjectID); err == nil && subject.Label != "" {
		label = subject.Label
	}
	c.labels[subjectID] = label
	return label
}

// linkTargetLabel renders a link's target: the target subject's label for
// instance edges, the datatype tag for property edges.
func linkTargetLabel(ctx context.Context, labels *labelCache, link *catalog.SubjectLinkRow) string {
	if link.ToID != nil {
		return labels.resolve(ctx, *link.ToID)
	}
	if link.ToProptype != nil {
		return *link.ToProptype
	}
	return ""
}
