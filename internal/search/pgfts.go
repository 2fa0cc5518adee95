package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across pages and comments using
// plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	// Pages sub-query
	if q.FilterType == "" || q.FilterType == ResultPage {
		pageWhere := "p.fts @@ " + tsQuery + " AND NOT p.is_archived"
		if q.FilterWorkspaceID != "" {
			pageWhere += fmt.Sprintf(" AND p.workspace_id = $%d", argN)
			args = append(args, q.FilterWorkspaceID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'page'::text AS type, p.id, p.title,
				ts_headline('english', p.title, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				p.id AS page_id, p.workspace_id,
				ts_rank(p.fts, %s) AS rank
			FROM pages p
			WHERE %s`, tsQuery, tsQuery, pageWhere))
	}

	// Comments sub-query
	if q.FilterType == "" || q.FilterType == ResultComment {
		commentWhere := "c.fts @@ " + tsQuery
		if q.FilterWorkspaceID != "" {
			commentWhere += fmt.Sprintf(" AND p.workspace_id = $%d", argN)
			args = append(args, q.FilterWorkspaceID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'comment'::text AS type, c.id, u.display_name AS title,
				ts_headline('english', coalesce(c.body, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				c.page_id, p.workspace_id,
				ts_rank(c.fts, %s) AS rank
			FROM comments c
			JOIN pages p ON p.id = c.page_id
			JOIN users u ON u.id = c.author_id
			WHERE %s`, tsQuery, tsQuery, commentWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	// Count query
	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	// Data query
	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, page_id, workspace_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.PageID, &r.WorkspaceID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]PageRecord, []CommentRecord, error) {
	pageRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, coalesce(icon, ''), workspace_id, is_archived
		FROM pages
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load pages: %w", err)
	}
	defer pageRows.Close()

	pages := make([]PageRecord, 0)
	for pageRows.Next() {
		var rec PageRecord
		if err := pageRows.Scan(&rec.ID, &rec.Title, &rec.Icon, &rec.WorkspaceID, &rec.Archived); err != nil {
			return nil, nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, rec)
	}
	if err := pageRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate pages: %w", err)
	}

	commentRows, err := p.db.QueryContext(ctx, `
		SELECT c.id, c.body, c.page_id, p.workspace_id, u.display_name, c.resolved_at IS NOT NULL
		FROM comments c
		JOIN pages p ON p.id = c.page_id
		JOIN users u ON u.id = c.author_id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load comments: %w", err)
	}
	defer commentRows.Close()

	comments := make([]CommentRecord, 0)
	for commentRows.Next() {
		var rec CommentRecord
		if err := commentRows.Scan(&rec.ID, &rec.Body, &rec.PageID, &rec.WorkspaceID, &rec.AuthorName, &rec.Resolved); err != nil {
			return nil, nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, rec)
	}
	if err := commentRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate comments: %w", err)
	}

	return pages, comments, nil
}
