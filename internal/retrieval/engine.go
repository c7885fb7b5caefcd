package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"streetlight/internal/config"
	"streetlight/internal/database"
	"streetlight/internal/models"
)

// Engine ranks records from the knowledge and directory stores by token
// overlap with the query. Each store runs its own independent ranking pass;
// results are merged only at the presentation layer.
type Engine struct {
	db    *database.DB
	rules *config.RuleSet
}

// NewEngine creates a retrieval engine over the SQL stores.
func NewEngine(db *database.DB, rules *config.RuleSet) *Engine {
	return &Engine{db: db, rules: rules}
}

// ChunkMatch is one knowledge chunk hit with its document context.
type ChunkMatch struct {
	Chunk         models.Chunk
	DocumentTitle string
	Category      string
	Score         int
}

// scoreFields counts the distinct tokens that appear as a substring of any
// of the given fields, case-insensitive. Zero means not a candidate.
func scoreFields(tokens []string, fields ...string) int {
	score := 0
	for _, tok := range tokens {
		for _, field := range fields {
			if strings.Contains(strings.ToLower(field), tok) {
				score++
				break
			}
		}
	}
	return score
}

// likeClause builds an OR-of-LIKEs candidate filter over the given columns
// for every token, with matching args. The permissive SQL pass only trims
// the candidate set; authoritative scoring happens in Go.
func likeClause(columns []string, tokens []string) (string, []interface{}) {
	var conds []string
	var args []interface{}
	for _, tok := range tokens {
		for _, col := range columns {
			conds = append(conds, fmt.Sprintf("LOWER(%s) LIKE ?", col))
			args = append(args, "%"+tok+"%")
		}
	}
	if len(conds) == 0 {
		return "1=0", nil
	}
	return "(" + strings.Join(conds, " OR ") + ")", args
}

// SearchChunks searches knowledge chunks.
func (e *Engine) SearchChunks(ctx context.Context, query string, limit int) ([]ChunkMatch, error) {
	tokens := Tokenize(query, e.rules.Current())
	if len(tokens) == 0 {
		return nil, nil
	}

	where, args := likeClause([]string{"c.content", "d.title", "d.category"}, tokens)
	rows, err := e.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.chunk_index, c.content, c.token_count, d.title, d.category, d.created_at
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("chunk search failed: %w", err)
	}
	defer rows.Close()

	type scored struct {
		match     ChunkMatch
		createdAt string
	}
	var candidates []scored
	for rows.Next() {
		var m ChunkMatch
		var createdAt string
		if err := rows.Scan(&m.Chunk.ID, &m.Chunk.DocumentID, &m.Chunk.Index, &m.Chunk.Content,
			&m.Chunk.TokenCount, &m.DocumentTitle, &m.Category, &createdAt); err != nil {
			return nil, fmt.Errorf("chunk scan failed: %w", err)
		}
		m.Score = scoreFields(tokens, m.Chunk.Content, m.DocumentTitle, m.Category)
		if m.Score > 0 {
			candidates = append(candidates, scored{match: m, createdAt: createdAt})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chunk search failed: %w", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].match.Score != candidates[j].match.Score {
			return candidates[i].match.Score > candidates[j].match.Score
		}
		return candidates[i].createdAt > candidates[j].createdAt
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	matches := make([]ChunkMatch, len(candidates))
	for i, c := range candidates {
		matches[i] = c.match
	}
	return matches, nil
}

// SearchResources searches directory resources.
func (e *Engine) SearchResources(ctx context.Context, query string, limit int) ([]models.Resource, error) {
	tokens := Tokenize(query, e.rules.Current())
	if len(tokens) == 0 {
		return nil, nil
	}

	where, args := likeClause([]string{"name", "description", "tags", "city"}, tokens)
	rows, err := e.db.QueryContext(ctx, `
		SELECT id, name, description, tags, city, verified, updated_at
		FROM resources WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("resource search failed: %w", err)
	}
	defer rows.Close()

	type scored struct {
		rec   models.Resource
		score int
	}
	var candidates []scored
	for rows.Next() {
		var r models.Resource
		var verified int
		var updatedAt string
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.Tags, &r.City, &verified, &updatedAt); err != nil {
			return nil, fmt.Errorf("resource scan failed: %w", err)
		}
		r.Verified = verified != 0
		r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		score := scoreFields(tokens, r.Name, r.Description, r.Tags, r.City)
		if score > 0 {
			candidates = append(candidates, scored{rec: r, score: score})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("resource search failed: %w", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].rec.Verified != candidates[j].rec.Verified {
			return candidates[i].rec.Verified
		}
		return candidates[i].rec.UpdatedAt.After(candidates[j].rec.UpdatedAt)
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]models.Resource, len(candidates))
	for i, c := range candidates {
		out[i] = c.rec
	}
	return out, nil
}

// SearchTreatmentCenters searches treatment centers.
func (e *Engine) SearchTreatmentCenters(ctx context.Context, query string, limit int) ([]models.TreatmentCenter, error) {
	tokens := Tokenize(query, e.rules.Current())
	if len(tokens) == 0 {
		return nil, nil
	}

	where, args := likeClause([]string{"name", "description", "services", "city"}, tokens)
	rows, err := e.db.QueryContext(ctx, `
		SELECT id, name, description, services, city, accepts_medicaid, verified, updated_at
		FROM treatment_centers WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("treatment center search failed: %w", err)
	}
	defer rows.Close()

	candidates, err := scanTreatmentCenters(rows, tokens)
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// SearchTreatmentCentersRelaxed is the Medicaid fallback: insurance
// acceptance only, with an optional city filter, no token scoring.
func (e *Engine) SearchTreatmentCentersRelaxed(ctx context.Context, cityFilter string, limit int) ([]models.TreatmentCenter, error) {
	query := `
		SELECT id, name, description, services, city, accepts_medicaid, verified, updated_at
		FROM treatment_centers WHERE accepts_medicaid = 1`
	var args []interface{}
	if cityFilter != "" {
		query += ` AND LOWER(city) LIKE ?`
		args = append(args, "%"+strings.ToLower(cityFilter)+"%")
	}

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("relaxed treatment center search failed: %w", err)
	}
	defer rows.Close()

	candidates, err := scanTreatmentCenters(rows, nil)
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// SearchProviders searches provider records.
func (e *Engine) SearchProviders(ctx context.Context, query string, limit int) ([]models.Provider, error) {
	tokens := Tokenize(query, e.rules.Current())
	if len(tokens) == 0 {
		return nil, nil
	}

	where, args := likeClause([]string{"name", "specialty", "description", "city"}, tokens)
	rows, err := e.db.QueryContext(ctx, `
		SELECT id, name, specialty, description, city, verified, updated_at
		FROM providers WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("provider search failed: %w", err)
	}
	defer rows.Close()

	type scored struct {
		rec   models.Provider
		score int
	}
	var candidates []scored
	for rows.Next() {
		var p models.Provider
		var verified int
		var updatedAt string
		if err := rows.Scan(&p.ID, &p.Name, &p.Specialty, &p.Description, &p.City, &verified, &updatedAt); err != nil {
			return nil, fmt.Errorf("provider scan failed: %w", err)
		}
		p.Verified = verified != 0
		p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		score := scoreFields(tokens, p.Name, p.Specialty, p.Description, p.City)
		if score > 0 {
			candidates = append(candidates, scored{rec: p, score: score})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("provider search failed: %w", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].rec.Verified != candidates[j].rec.Verified {
			return candidates[i].rec.Verified
		}
		return candidates[i].rec.UpdatedAt.After(candidates[j].rec.UpdatedAt)
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]models.Provider, len(candidates))
	for i, c := range candidates {
		out[i] = c.rec
	}
	return out, nil
}

// rowScanner is satisfied by *sql.Rows.
type rowScanner interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanTreatmentCenters scans and, when tokens are given, scores and sorts
// treatment center rows. With nil tokens rows keep query order.
func scanTreatmentCenters(rows rowScanner, tokens []string) ([]models.TreatmentCenter, error) {
	type scored struct {
		rec   models.TreatmentCenter
		score int
	}
	var candidates []scored
	for rows.Next() {
		var t models.TreatmentCenter
		var acceptsMedicaid, verified int
		var updatedAt string
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.Services, &t.City,
			&acceptsMedicaid, &verified, &updatedAt); err != nil {
			return nil, fmt.Errorf("treatment center scan failed: %w", err)
		}
		t.AcceptsMedicaid = acceptsMedicaid != 0
		t.Verified = verified != 0
		t.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

		if tokens == nil {
			candidates = append(candidates, scored{rec: t})
			continue
		}
		score := scoreFields(tokens, t.Name, t.Description, t.Services, t.City)
		if score > 0 {
			candidates = append(candidates, scored{rec: t, score: score})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("treatment center search failed: %w", err)
	}

	if tokens != nil {
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].score != candidates[j].score {
				return candidates[i].score > candidates[j].score
			}
			if candidates[i].rec.Verified != candidates[j].rec.Verified {
				return candidates[i].rec.Verified
			}
			return candidates[i].rec.UpdatedAt.After(candidates[j].rec.UpdatedAt)
		})
	}

	out := make([]models.TreatmentCenter, len(candidates))
	for i, c := range candidates {
		out[i] = c.rec
	}
	return out, nil
}
