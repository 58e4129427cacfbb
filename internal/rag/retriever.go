package rag

import (
	"context"
	"strconv"
	"strings"

	"chatcommerce/internal/db"
	"chatcommerce/internal/logging"

	"github.com/jackc/pgx/v5"
)

const (
	matchThreshold = 0.7
	matchCount     = 3
)

// Snippet is one knowledge-base fragment relevant to a user message.
type Snippet struct {
	Content    string
	Similarity float64
}

// Embedder turns a query into a vector. Implemented by llm.Embedder.
type Embedder interface {
	Embed(ctx context.Context, input string) ([]float32, error)
}

type Retriever interface {
	Search(ctx context.Context, agentID, query string) []Snippet
}

// PGRetriever does cosine-similarity search over the documents table
// (pgvector). Retrieval is best-effort: any failure returns an empty
// result so the turn can proceed without grounding.
type PGRetriever struct {
	DB       db.Querier
	Embedder Embedder
}

func NewPGRetriever(q db.Querier, e Embedder) *PGRetriever {
	return &PGRetriever{DB: q, Embedder: e}
}

func (r *PGRetriever) Search(ctx context.Context, agentID, query string) []Snippet {
	embedding, err := r.Embedder.Embed(ctx, strings.ReplaceAll(query, "\n", " "))
	if err != nil || len(embedding) == 0 {
		if err != nil {
			logging.Warn(ctx).Err(err).Msg("embedding failed, skipping retrieval")
		}
		return nil
	}

	rows, err := r.DB.Query(ctx,
		`SELECT content, 1 - (embedding <=> $2) AS similarity
		 FROM documents
		 WHERE agent_id = $1 AND 1 - (embedding <=> $2) > $3
		 ORDER BY embedding <=> $2
		 LIMIT $4`,
		agentID, pgvectorLiteral(embedding), matchThreshold, matchCount,
	)
	if err != nil {
		logging.Warn(ctx).Err(err).Msg("vector search failed")
		return nil
	}
	defer rows.Close()

	snippets, err := scanSnippets(rows)
	if err != nil {
		logging.Warn(ctx).Err(err).Msg("vector search scan failed")
		return nil
	}
	return snippets
}

func scanSnippets(rows pgx.Rows) ([]Snippet, error) {
	var snippets []Snippet
	for rows.Next() {
		var s Snippet
		if err := rows.Scan(&s.Content, &s.Similarity); err != nil {
			return nil, err
		}
		snippets = append(snippets, s)
	}
	return snippets, rows.Err()
}

// pgvectorLiteral renders a vector in pgvector's text input format.
func pgvectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
