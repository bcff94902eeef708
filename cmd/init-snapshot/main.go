// Command init-snapshot ingests the configured ontology into the candidate
// store: every class and every property edge is rendered as a short natural
// language description, embedded, and inserted keyed by the snapshot hash.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/joho/godotenv"

	"github.com/onset-project/onset/domain/catalog"
	"github.com/onset-project/onset/domain/ontology"
	"github.com/onset-project/onset/internal/config"
	"github.com/onset-project/onset/internal/migrate"
	"github.com/onset-project/onset/pkg/embeddings/genai"
)

var camelBoundary = regexp.MustCompile(`([a-z])([A-Z])`)

// toReadable turns a camelCase or snake_case ontology label into plain
// lowercase prose ("birthPlace" -> "birth place").
func toReadable(s string) string {
	return strings.ToLower(strings.ReplaceAll(camelBoundary.ReplaceAllString(s, "$1 $2"), "_", " "))
}

// term renders a subject id as a SPARQL term. Prefixed names pass through;
// anything that still looks like a full IRI gets angle brackets.
func term(id string) string {
	if strings.HasPrefix(id, "http://") || strings.HasPrefix(id, "https://") {
		return "<" + id + ">"
	}
	return id
}

func main() {
	var (
		batchSize int
		delayMs   int
		dryRun    bool
	)

	flag.IntVar(&batchSize, "batch-size", 50, "Number of descriptions per embedding batch")
	flag.IntVar(&delayMs, "delay", 100, "Milliseconds to sleep between embedding batches")
	flag.BoolVar(&dryRun, "dry-run", false, "Print what would be ingested without writing to DB")
	flag.Parse()

	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.NewConfig(log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if !cfg.Ontology.IsConfigured() {
		fmt.Fprintln(os.Stderr, "Error: SPARQL_ENDPOINT must be set")
		os.Exit(1)
	}
	if !cfg.Embeddings.IsEnabled() && !dryRun {
		fmt.Fprintln(os.Stderr, "Error: GOOGLE_API_KEY must be set to embed descriptions")
		os.Exit(1)
	}

	ctx := context.Background()

	sqldb, err := sql.Open("pgx", cfg.Database.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to database: %v\n", err)
		os.Exit(1)
	}
	defer sqldb.Close()
	if err := sqldb.PingContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error pinging database: %v\n", err)
		os.Exit(1)
	}
	if err := migrate.RunWithDB(ctx, sqldb); err != nil {
		fmt.Fprintf(os.Stderr, "Error running migrations: %v\n", err)
		os.Exit(1)
	}
	log.Info("connected to database")

	db := bun.NewDB(sqldb, pgdialect.New())
	repo := catalog.NewRepository(db, log)
	onto := ontology.NewManager(cfg, log)

	var embedder *genai.Client
	if !dryRun {
		embedder, err = genai.NewClient(ctx, genai.Config{
			APIKey:    cfg.Embeddings.GoogleAPIKey,
			Model:     cfg.Embeddings.Model,
			Dimension: cfg.Embeddings.Dimension,
		}, genai.WithLogger(log))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating embedding client: %v\n", err)
			os.Exit(1)
		}
		log.Info("embedding client initialized", slog.String("model", cfg.Embeddings.Model))
	}

	ontoHash, err := onto.SnapshotHash(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error hashing ontology snapshot: %v\n", err)
		os.Exit(1)
	}
	log.Info("ontology snapshot", slog.String("onto_hash", ontoHash))

	classIDs, err := onto.ListClasses(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing classes: %v\n", err)
		os.Exit(1)
	}
	if len(classIDs) == 0 {
		log.Info("ontology has no classes - nothing to ingest")
		return
	}
	log.Info("enriching classes", slog.Int("count", len(classIDs)))

	classes := make(map[string]*ontology.Subject, len(classIDs))
	for _, id := range classIDs {
		subj, err := onto.EnrichSubject(ctx, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error enriching class %s: %v\n", id, err)
			os.Exit(1)
		}
		classes[id] = subj
	}

	subjects, subjectDocs := buildSubjectRows(ctx, onto, classes, classIDs, ontoHash, log)
	links, linkDocs := buildLinkRows(ctx, onto, classes, classIDs, ontoHash, log)

	log.Info("descriptions built",
		slog.Int("subjects", len(subjects)),
		slog.Int("links", len(links)),
	)

	if dryRun {
		for i, doc := range subjectDocs {
			log.Info("would embed subject", slog.String("id", subjects[i].SubjectID), slog.String("doc", doc))
		}
		for i, doc := range linkDocs {
			log.Info("would embed link", slog.String("label", links[i].Label), slog.String("doc", doc))
		}
		return
	}

	subjectVecs, err := embedBatches(ctx, embedder, subjectDocs, batchSize, delayMs, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error embedding subjects: %v\n", err)
		os.Exit(1)
	}
	linkVecs, err := embedBatches(ctx, embedder, linkDocs, batchSize, delayMs, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error embedding links: %v\n", err)
		os.Exit(1)
	}
	for i := range subjects {
		subjects[i].Embedding = subjectVecs[i]
	}
	for i := range links {
		links[i].Embedding = linkVecs[i]
	}

	if err := repo.PurgeSnapshot(ctx, ontoHash); err != nil {
		fmt.Fprintf(os.Stderr, "Error purging snapshot: %v\n", err)
		os.Exit(1)
	}
	if err := repo.InsertSubjects(ctx, subjects); err != nil {
		fmt.Fprintf(os.Stderr, "Error inserting subjects: %v\n", err)
		os.Exit(1)
	}
	if err := repo.InsertLinks(ctx, links); err != nil {
		fmt.Fprintf(os.Stderr, "Error inserting links: %v\n", err)
		os.Exit(1)
	}

	log.Info("snapshot ingested",
		slog.String("onto_hash", ontoHash),
		slog.Int("subjects", len(subjects)),
		slog.Int("links", len(links)),
	)
}

// buildSubjectRows renders one row and one description per class. The
// description is the sentence form the fuzzy retrieval embeddings search
// against, so it mirrors the phrasing used for query vectors.
func buildSubjectRows(ctx context.Context, onto ontology.Manager, classes map[string]*ontology.Subject, order []string, ontoHash string, log *slog.Logger) ([]catalog.SubjectRow, []string) {
	rows := make([]catalog.SubjectRow, 0, len(order))
	docs := make([]string, 0, len(order))

	for _, id := range order {
		cls := classes[id]

		parentDesc := ""
		if parent := cls.ParentID(); parent != "" {
			parentLabel := parent
			if p, ok := classes[parent]; ok {
				parentLabel = p.Label
			} else if enriched, err := onto.EnrichSubject(ctx, parent); err == nil {
				parentLabel = enriched.Label
			}
			parentDesc = fmt.Sprintf("A %s is a %s.", cls.Label, parentLabel)
		}

		doc := strings.TrimSpace(fmt.Sprintf("A %s is a %s. %s %s",
			cls.Label, cls.Type, parentDesc, cls.Comment()))

		row := catalog.SubjectRow{
			SubjectID:     cls.ID,
			OntoHash:      ontoHash,
			Label:         cls.Label,
			Comment:       cls.Comment(),
			SubjectType:   string(cls.Type),
			InstanceCount: countInstances(ctx, onto, cls.ID, log),
		}
		if parent := cls.ParentID(); parent != "" {
			row.ParentID = &parent
		}

		rows = append(rows, row)
		docs = append(docs, doc)
	}
	return rows, docs
}

// buildLinkRows renders one row and one description per property edge whose
// declared domain is an ingested class. Ranges that resolve to a known class
// become subject targets; everything else is kept as a literal datatype.
func buildLinkRows(ctx context.Context, onto ontology.Manager, classes map[string]*ontology.Subject, order []string, ontoHash string, log *slog.Logger) ([]catalog.SubjectLinkRow, []string) {
	var rows []catalog.SubjectLinkRow
	var docs []string

	for _, id := range order {
		cls := classes[id]

		props, err := onto.QueryRows(ctx, fmt.Sprintf(
			"SELECT ?p ?pt WHERE { ?p rdfs:domain %s . ?p rdf:type ?pt . }", term(id)))
		if err != nil {
			log.Warn("failed to list properties",
				slog.String("class", id),
				slog.String("error", err.Error()),
			)
			continue
		}

		for _, binding := range props {
			propID := binding["p"].Value
			propType := binding["pt"].Value
			isObject := strings.HasSuffix(propType, "ObjectProperty")
			if !isObject && !strings.HasSuffix(propType, "DatatypeProperty") {
				continue
			}

			prop, err := onto.EnrichSubject(ctx, propID)
			if err != nil {
				log.Warn("failed to enrich property",
					slog.String("property", propID),
					slog.String("error", err.Error()),
				)
				continue
			}
			if strings.HasPrefix(prop.Label, "<") {
				continue // unlabelled blank property, nothing to describe
			}

			doc := fmt.Sprintf("A %s is defined by %s.", cls.Label, toReadable(prop.Label))
			rangeID := prop.RangeID()
			if rangeID != "" {
				rangeLabel := rangeID
				if r, ok := classes[rangeID]; ok {
					rangeLabel = r.Label
				} else if enriched, err := onto.EnrichSubject(ctx, rangeID); err == nil {
					rangeLabel = enriched.Label
				}
				if isObject {
					doc = fmt.Sprintf("A %s is %s of %s.", cls.Label, toReadable(prop.Label), toReadable(rangeLabel))
				} else {
					doc = fmt.Sprintf("A %s has %s of type %s.", cls.Label, toReadable(prop.Label), toReadable(rangeLabel))
				}
			}
			if super := prop.SPO["rdfs:subPropertyOf"].FirstValue(); super != "" {
				if enriched, err := onto.EnrichSubject(ctx, super); err == nil && !strings.HasPrefix(enriched.Label, "<") {
					doc += fmt.Sprintf(" %s is a subproperty of %s.", toReadable(prop.Label), toReadable(enriched.Label))
				}
			}

			count, err := onto.PropertyCount(ctx, propID)
			if err != nil {
				log.Warn("failed to count property usage",
					slog.String("property", propID),
					slog.String("error", err.Error()),
				)
			}

			row := catalog.SubjectLinkRow{
				OntoHash:      ontoHash,
				FromID:        cls.ID,
				PropertyID:    propID,
				LinkType:      catalog.LinkTypeClass,
				Label:         prop.Label,
				Description:   doc,
				InstanceCount: count,
			}
			if rangeID != "" {
				if _, ok := classes[rangeID]; ok {
					row.ToID = &rangeID
				} else {
					row.ToProptype = &rangeID
				}
			}

			rows = append(rows, row)
			docs = append(docs, doc)
		}
	}
	return rows, docs
}

func countInstances(ctx context.Context, onto ontology.Manager, classID string, log *slog.Logger) int64 {
	rows, err := onto.QueryRows(ctx, fmt.Sprintf(
		"SELECT (COUNT(?i) AS ?count) WHERE { ?i rdf:type %s . }", term(classID)))
	if err != nil || len(rows) == 0 {
		if err != nil {
			log.Warn("failed to count instances",
				slog.String("class", classID),
				slog.String("error", err.Error()),
			)
		}
		return 0
	}
	count, err := strconv.ParseInt(rows[0]["count"].Value, 10, 64)
	if err != nil {
		return 0
	}
	return count
}

// embedBatches embeds documents in fixed-size batches with a small pause
// between calls to stay under the embedding API rate limits.
func embedBatches(ctx context.Context, embedder *genai.Client, docs []string, batchSize, delayMs int, log *slog.Logger) ([][]float32, error) {
	vecs := make([][]float32, 0, len(docs))
	for start := 0; start < len(docs); start += batchSize {
		end := start + batchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch, err := embedder.EmbedDocuments(ctx, docs[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch at %d: %w", start, err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("embed batch at %d: got %d vectors for %d documents", start, len(batch), end-start)
		}
		vecs = append(vecs, batch...)

		log.Info("embedded batch", slog.Int("done", end), slog.Int("total", len(docs)))
		if delayMs > 0 && end < len(docs) {
			time.Sleep(time.Duration(delayMs) * time.Millisecond)
		}
	}
	return vecs, nil
}
