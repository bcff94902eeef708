package catalog

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/onset-project/onset/pkg/apperror"
	"github.com/onset-project/onset/pkg/logger"
	"github.com/onset-project/onset/pkg/mathutil"
	"github.com/onset-project/onset/pkg/pgutils"
)

// Repository handles candidate-store reads and snapshot writes.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new catalog repository
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("catalog.repo")),
	}
}

// RelationKind selects which edge flavor a link search returns.
type RelationKind string

const (
	// RelationAny returns both instance and property edges
	RelationAny RelationKind = ""
	// RelationInstance returns subject-to-subject edges only
	RelationInstance RelationKind = "instance"
	// RelationProperty returns literal-valued edges only
	RelationProperty RelationKind = "property"
)

// SubjectSearchParams parameterizes a nearest-neighbor subject search.
type SubjectSearchParams struct {
	OntoHash         string
	Vector           []float32
	OrderByInstances bool
	Limit            int
	Skip             int
}

// SubjectHit is a subject row with its cosine distance to the query vector.
type SubjectHit struct {
	Row      SubjectRow
	Distance float64
}

// SearchSubjects ranks subjects by cosine distance (ascending) or by raw
// instance count, with pagination.
func (r *Repository) SearchSubjects(ctx context.Context, params SubjectSearchParams) ([]SubjectHit, error) {
	if len(params.Vector) == 0 {
		return nil, apperror.ErrBadRequest.WithMessage("query vector required for subject search")
	}

	limit := mathutil.ClampLimit(params.Limit, 25, 500)
	vectorStr := pgutils.FormatVector(params.Vector)

	order := "distance ASC"
	if params.OrderByInstances {
		order = "s.instance_count DESC"
	}

	query := `
		SELECT s.subject_id, s.parent_id, s.label, s.comment, s.subject_type,
			   s.topic_id, s.instance_count,
			   (s.embedding <=> ?::vector) AS distance
		FROM subjects s
		WHERE s.onto_hash = ?
		  AND s.embedding IS NOT NULL
		ORDER BY ` + order + `
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.QueryContext(ctx, query, vectorStr, params.OntoHash, limit, params.Skip)
	if err != nil {
		r.log.Error("subject search failed", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	defer rows.Close()

	var hits []SubjectHit
	for rows.Next() {
		var hit SubjectHit
		if err := rows.Scan(
			&hit.Row.SubjectID, &hit.Row.ParentID, &hit.Row.Label, &hit.Row.Comment,
			&hit.Row.SubjectType, &hit.Row.TopicID, &hit.Row.InstanceCount,
			&hit.Distance,
		); err != nil {
			return nil, apperror.ErrDatabase.WithInternal(err)
		}
		hit.Row.OntoHash = params.OntoHash
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return hits, nil
}

// LinkSearchParams parameterizes a nearest-neighbor link search. FromIDs and
// ToIDs are already ancestor-expanded by the caller.
type LinkSearchParams struct {
	OntoHash         string
	Vector           []float32
	FromIDs          []string
	ToIDs            []string
	Kind             RelationKind
	OrderByInstances bool
	Limit            int
	Skip             int
}

// LinkHit is a link row with its cosine distance to the query vector.
type LinkHit struct {
	Row      SubjectLinkRow
	Distance float64
}

// SearchLinks ranks subject links by cosine distance (ascending) or raw
// instance count, honoring source/target and relation-kind filters.
func (r *Repository) SearchLinks(ctx context.Context, params LinkSearchParams) ([]LinkHit, error) {
	if len(params.Vector) == 0 {
		return nil, apperror.ErrBadRequest.WithMessage("query vector required for link search")
	}

	limit := mathutil.ClampLimit(params.Limit, 25, 500)
	vectorStr := pgutils.FormatVector(params.Vector)

	query := `
		SELECT l.link_id, l.from_id, l.to_id, l.to_proptype, l.property_id,
			   l.link_type, l.label, l.description, l.instance_count, l.topic_id,
			   (l.embedding <=> ?::vector) AS distance
		FROM subject_links l
		WHERE l.onto_hash = ?
		  AND l.embedding IS NOT NULL
	`
	args := []any{vectorStr, params.OntoHash}

	if len(params.FromIDs) > 0 {
		query += " AND l.from_id IN (?)"
		args = append(args, bun.In(params.FromIDs))
	}
	if len(params.ToIDs) > 0 {
		query += " AND l.to_id IN (?)"
		args = append(args, bun.In(params.ToIDs))
	}
	switch params.Kind {
	case RelationInstance:
		query += " AND l.to_id IS NOT NULL"
	case RelationProperty:
		query += " AND l.to_id IS NULL AND l.to_proptype IS NOT NULL"
	}

	if params.OrderByInstances {
		query += " ORDER BY l.instance_count DESC"
	} else {
		query += " ORDER BY distance ASC"
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, params.Skip)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.log.Error("link search failed", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	defer rows.Close()

	var hits []LinkHit
	for rows.Next() {
		var hit LinkHit
		if err := rows.Scan(
			&hit.Row.LinkID, &hit.Row.FromID, &hit.Row.ToID, &hit.Row.ToProptype,
			&hit.Row.PropertyID, &hit.Row.LinkType, &hit.Row.Label, &hit.Row.Description,
			&hit.Row.InstanceCount, &hit.Row.TopicID,
			&hit.Distance,
		); err != nil {
			return nil, apperror.ErrDatabase.WithInternal(err)
		}
		hit.Row.OntoHash = params.OntoHash
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return hits, nil
}

// GetSubject fetches one subject row by id within a snapshot.
func (r *Repository) GetSubject(ctx context.Context, ontoHash, subjectID string) (*SubjectRow, error) {
	row := new(SubjectRow)
	err := r.db.NewSelect().Model(row).
		Where("subject_id = ?", subjectID).
		Where("onto_hash = ?", ontoHash).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("subject", subjectID)
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return row, nil
}

// ListLinks returns links filtered by source/target ids without vector
// ranking, for plain link lookups.
func (r *Repository) ListLinks(ctx context.Context, ontoHash string, fromIDs, toIDs []string, limit int) ([]SubjectLinkRow, error) {
	limit = mathutil.ClampLimit(limit, 25, 500)

	q := r.db.NewSelect().Model((*SubjectLinkRow)(nil)).
		Where("onto_hash = ?", ontoHash).
		Limit(limit)
	if len(fromIDs) > 0 {
		q = q.Where("from_id IN (?)", bun.In(fromIDs))
	}
	if len(toIDs) > 0 {
		q = q.Where("to_id IN (?)", bun.In(toIDs))
	}

	var links []SubjectLinkRow
	if err := q.Scan(ctx, &links); err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return links, nil
}

// ListTopics returns all topic rows for a snapshot.
func (r *Repository) ListTopics(ctx context.Context, ontoHash string) ([]TopicRow, error) {
	var topics []TopicRow
	err := r.db.NewSelect().Model(&topics).
		Where("onto_hash = ?", ontoHash).
		Order("topic_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return topics, nil
}

// TopicEmbeddings fetches the stored embeddings for the given topic ids.
// Topics without an embedding are skipped.
func (r *Repository) TopicEmbeddings(ctx context.Context, ontoHash string, topicIDs []int64) ([][]float32, error) {
	if len(topicIDs) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT t.embedding::text
		FROM topics t
		WHERE t.onto_hash = ?
		  AND t.topic_id IN (?)
		  AND t.embedding IS NOT NULL
	`, ontoHash, bun.In(topicIDs))
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	defer rows.Close()

	var embeddings [][]float32
	for rows.Next() {
		var literal string
		if err := rows.Scan(&literal); err != nil {
			return nil, apperror.ErrDatabase.WithInternal(err)
		}
		vec, err := pgutils.ParseVector(literal)
		if err != nil {
			return nil, apperror.ErrDatabase.WithInternal(err)
		}
		embeddings = append(embeddings, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return embeddings, nil
}

// PurgeSnapshot deletes every row belonging to an ontology snapshot.
func (r *Repository) PurgeSnapshot(ctx context.Context, ontoHash string) error {
	for _, table := range []string{"topics", "subject_links", "subjects"} {
		if _, err := r.db.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE onto_hash = ?", ontoHash); err != nil {
			return apperror.ErrDatabase.WithInternal(err)
		}
	}
	r.log.Info("snapshot purged", slog.String("onto_hash", ontoHash))
	return nil
}

// InsertSubjects bulk-inserts subject rows with their embeddings.
func (r *Repository) InsertSubjects(ctx context.Context, subjects []SubjectRow) error {
	for _, s := range subjects {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO subjects
				(subject_id, onto_hash, parent_id, label, comment, subject_type,
				 topic_id, instance_count, embedding)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?::vector)
		`, s.SubjectID, s.OntoHash, s.ParentID, s.Label, s.Comment, s.SubjectType,
			s.TopicID, s.InstanceCount, pgutils.FormatVector(s.Embedding))
		if err != nil {
			if pgutils.IsUniqueViolation(err) {
				return apperror.ErrConflict.WithMessage("subject already ingested: " + s.SubjectID)
			}
			return apperror.ErrDatabase.WithInternal(err)
		}
	}
	return nil
}

// InsertLinks bulk-inserts link rows with their embeddings.
func (r *Repository) InsertLinks(ctx context.Context, links []SubjectLinkRow) error {
	for _, l := range links {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO subject_links
				(onto_hash, from_id, to_id, to_proptype, property_id, link_type,
				 label, description, instance_count, topic_id, embedding)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?::vector)
		`, l.OntoHash, l.FromID, l.ToID, l.ToProptype, l.PropertyID, l.LinkType,
			l.Label, l.Description, l.InstanceCount, l.TopicID,
			pgutils.FormatVector(l.Embedding))
		if err != nil {
			if pgutils.IsCheckViolation(err) {
				return apperror.ErrBadRequest.WithMessage(
					"link cannot target both a subject and a datatype: " + l.Label)
			}
			return apperror.ErrDatabase.WithInternal(err)
		}
	}
	return nil
}

// LinkByLabel resolves one link row by label, restricted to the given link
// ids so a label match cannot drift to an unrelated edge elsewhere in the
// ontology. Returns nil when nothing in scope matches.
func (r *Repository) LinkByLabel(ctx context.Context, ontoHash, label string, linkIDs []int64) (*SubjectLinkRow, error) {
	if len(linkIDs) == 0 {
		return nil, nil
	}
	row := new(SubjectLinkRow)
	err := r.db.NewSelect().Model(row).
		Where("onto_hash = ?", ontoHash).
		Where("lower(label) = lower(?)", label).
		Where("link_id IN (?)", bun.In(linkIDs)).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return row, nil
}

// SubjectByLabel resolves one subject row by label within the given subject
// id scope. Returns nil when nothing in scope matches.
func (r *Repository) SubjectByLabel(ctx context.Context, ontoHash, label string, subjectIDs []string) (*SubjectRow, error) {
	if len(subjectIDs) == 0 {
		return nil, nil
	}
	row := new(SubjectRow)
	err := r.db.NewSelect().Model(row).
		Where("onto_hash = ?", ontoHash).
		Where("lower(label) = lower(?)", label).
		Where("subject_id IN (?)", bun.In(subjectIDs)).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return row, nil
}

// HasSubject reports whether a subject row exists in a snapshot. Ingest
// uses this to decide between a to_id and a to_proptype target.
func (r *Repository) HasSubject(ctx context.Context, ontoHash, subjectID string) (bool, error) {
	exists, err := r.db.NewSelect().Model((*SubjectRow)(nil)).
		Where("subject_id = ?", subjectID).
		Where("onto_hash = ?", ontoHash).
		Exists(ctx)
	if err != nil {
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	return exists, nil
}
