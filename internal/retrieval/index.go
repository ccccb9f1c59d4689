// Package retrieval keeps an in-memory BM25 index over workspace files and
// formats the best matching chunks as context for the model.
package retrieval

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/analyzer"
)

// Options bound the index.
type Options struct {
	MaxFiles     int   `yaml:"max_files"`
	MaxFileBytes int64 `yaml:"max_file_bytes"`
	ChunkLines   int   `yaml:"chunk_lines"`
	TopK         int   `yaml:"top_k"`
	// MaxContextChars caps the formatted context returned to the engine.
	MaxContextChars int `yaml:"max_context_chars"`
}

// DefaultOptions returns the built-in limits.
func DefaultOptions() Options {
	return Options{
		MaxFiles:        2000,
		MaxFileBytes:    256 << 10,
		ChunkLines:      40,
		TopK:            5,
		MaxContextChars: 8000,
	}
}

// Hit is one matching chunk.
type Hit struct {
	Path      string
	StartLine int
	EndLine   int
	Score     float64
	Text      string
}

// Index is safe for concurrent use. It rebuilds itself lazily whenever the
// analyzer reports a new workspace structure.
type Index struct {
	az     *analyzer.Analyzer
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	idx    bleve.Index
	chunks map[string]Chunk
	gen    int
}

// New returns an index over the analyzer's workspace. Nothing is read until
// the first search.
func New(az *analyzer.Analyzer, opts Options, logger *slog.Logger) *Index {
	def := DefaultOptions()
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = def.MaxFiles
	}
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = def.MaxFileBytes
	}
	if opts.ChunkLines <= 0 {
		opts.ChunkLines = def.ChunkLines
	}
	if opts.TopK <= 0 {
		opts.TopK = def.TopK
	}
	if opts.MaxContextChars <= 0 {
		opts.MaxContextChars = def.MaxContextChars
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{az: az, opts: opts, logger: logger}
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	chunkMapping := bleve.NewDocumentMapping()

	pathField := bleve.NewTextFieldMapping()
	pathField.Analyzer = keyword.Name
	pathField.Store = true
	chunkMapping.AddFieldMappingsAt("path", pathField)

	// path words ("internal/auth/login.go" -> internal, auth, login, go)
	pathTextField := bleve.NewTextFieldMapping()
	pathTextField.Analyzer = standard.Name
	chunkMapping.AddFieldMappingsAt("path_text", pathTextField)

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	chunkMapping.AddFieldMappingsAt("text", textField)

	indexMapping.DefaultMapping = chunkMapping
	return indexMapping
}

// ensure builds the index if it is missing or stale. Callers hold mu.
func (x *Index) ensure(ctx context.Context) error {
	st, err := x.az.Structure()
	if err != nil {
		return fmt.Errorf("analyze workspace: %w", err)
	}
	gen := x.az.Builds()
	if x.idx != nil && gen == x.gen {
		return nil
	}

	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	chunks := make(map[string]Chunk)
	batch := idx.NewBatch()
	files := 0
	for _, e := range st.Files() {
		if err := ctx.Err(); err != nil {
			idx.Close()
			return err
		}
		if files >= x.opts.MaxFiles {
			break
		}
		if e.Size > x.opts.MaxFileBytes {
			continue
		}
		data, err := os.ReadFile(filepath.Join(st.Root, filepath.FromSlash(e.Path)))
		if err != nil || isBinary(data) {
			continue
		}
		files++
		for _, c := range ChunkLines(e.Path, data, x.opts.ChunkLines) {
			chunks[c.ID] = c
			doc := map[string]any{
				"path":      c.Path,
				"path_text": strings.NewReplacer("/", " ", ".", " ", "_", " ", "-", " ").Replace(c.Path),
				"text":      c.Text,
			}
			if err := batch.Index(c.ID, doc); err != nil {
				idx.Close()
				return fmt.Errorf("index chunk %s: %w", c.ID, err)
			}
		}
	}
	if err := idx.Batch(batch); err != nil {
		idx.Close()
		return fmt.Errorf("index batch: %w", err)
	}

	if x.idx != nil {
		x.idx.Close()
	}
	x.idx, x.chunks, x.gen = idx, chunks, gen
	x.logger.Debug("retrieval index built", "files", files, "chunks", len(chunks))
	return nil
}

// Search returns the k best chunks for query.
func (x *Index) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if k <= 0 {
		k = x.opts.TopK
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.ensure(ctx); err != nil {
		return nil, err
	}

	textQuery := bleve.NewMatchQuery(query)
	textQuery.SetField("text")
	pathQuery := bleve.NewMatchQuery(query)
	pathQuery.SetField("path_text")
	pathQuery.SetBoost(2)

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(textQuery, pathQuery), k, 0, false)
	res, err := x.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		c, ok := x.chunks[h.ID]
		if !ok {
			continue
		}
		hits = append(hits, Hit{Path: c.Path, StartLine: c.StartLine, EndLine: c.EndLine, Score: h.Score, Text: c.Text})
	}
	return hits, nil
}

// RetrieveContext formats the top chunks for query as a context block. It
// returns "" when nothing matches.
func (x *Index) RetrieveContext(ctx context.Context, query string) (string, error) {
	hits, err := x.Search(ctx, query, x.opts.TopK)
	if err != nil || len(hits) == 0 {
		return "", err
	}
	var b strings.Builder
	b.WriteString("Relevant code from the workspace:\n")
	for _, h := range hits {
		block := fmt.Sprintf("\n--- %s:%d-%d ---\n%s\n", h.Path, h.StartLine, h.EndLine, h.Text)
		if b.Len()+len(block) > x.opts.MaxContextChars {
			break
		}
		b.WriteString(block)
	}
	return b.String(), nil
}

// Close releases the index.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.idx == nil {
		return nil
	}
	err := x.idx.Close()
	x.idx = nil
	return err
}

func isBinary(data []byte) bool {
	n := len(data)
	if n > 8000 {
		n = 8000
	}
	return bytes.IndexByte(data[:n], 0) >= 0
}
