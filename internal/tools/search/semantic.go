package search

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/retrieval"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/tools"
)

const (
	defaultSearchK = 10
	maxSnippetLen  = 300
	contextPadding = 10
)

// Searcher finds ranked chunks for a natural-language query.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]retrieval.Hit, error)
}

type codeHit struct {
	Path      string  `json:"path"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Snippet   string  `json:"snippet"`
	Score     float64 `json:"score"`
}

type codeSearchResult struct {
	Query   string    `json:"query"`
	Results []codeHit `json:"results"`
	Count   int       `json:"count"`
	Hint    string    `json:"hint,omitempty"`
}

func codebaseSearchImpl(ctx context.Context, s Searcher, query string, globs []string, k int) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("query cannot be empty")
	}
	if k <= 0 {
		k = defaultSearchK
	}
	// over-fetch so glob filtering still leaves k results
	fetch := k
	if len(globs) > 0 {
		fetch = k * 3
	}
	hits, err := s.Search(ctx, query, fetch)
	if err != nil {
		return "", err
	}

	res := codeSearchResult{Query: query, Results: []codeHit{}}
	for _, h := range hits {
		if !globMatch(globs, filepath.Base(h.Path)) {
			continue
		}
		snippet := strings.TrimSpace(h.Text)
		if len(snippet) > maxSnippetLen {
			snippet = snippet[:maxSnippetLen] + "..."
		}
		res.Results = append(res.Results, codeHit{
			Path:      h.Path,
			StartLine: max(1, h.StartLine-contextPadding),
			EndLine:   h.EndLine + contextPadding,
			Snippet:   snippet,
			Score:     h.Score,
		})
		if len(res.Results) == k {
			break
		}
	}
	res.Count = len(res.Results)
	if res.Count > 0 {
		res.Hint = "Call read_file with start_line and end_line from a result to read the surrounding code."
	}
	return tools.ToJSON(res)
}

// NewCodebaseSearchTool returns codebase_search over s.
func NewCodebaseSearchTool(s Searcher) tools.Tool {
	return tools.Tool{
		Name:        "codebase_search",
		Description: "Ranked keyword search over indexed workspace code. Describe what you are looking for in words; results give line ranges to read next.",
		SchemaJSON: `{"type":"object","properties":{
			"query":{"type":"string"},
			"globs":{"type":"string","description":"Comma-separated file globs"},
			"k":{"type":"integer","minimum":1,"maximum":50}
		},"required":["query"]}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			query, _ := args["query"].(string)
			globs, _ := args["globs"].(string)
			k := defaultSearchK
			if v, ok := args["k"].(float64); ok {
				k = int(v)
			}
			return codebaseSearchImpl(ctx, s, query, splitGlobs(globs), k)
		},
		Retryable: true,
	}
}
