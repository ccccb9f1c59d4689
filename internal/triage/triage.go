// Package triage decides whether a request can be answered directly by the
// model or needs the full plan-and-act loop with tools.
package triage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/llm"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
)

// Decision is the routing outcome.
type Decision string

const (
	DirectResponse Decision = "direct_response"
	Graph          Decision = "graph"
)

// Result is a classification with its reason.
type Result struct {
	Decision Decision
	Reason   string
}

// ErrUndecided is returned by classifiers that have no opinion on a text.
var ErrUndecided = errors.New("triage: undecided")

// Classifier classifies the latest user message.
type Classifier interface {
	Classify(ctx context.Context, text string) (Result, error)
}

// Keywords is the fast-path data. It is configuration, loaded from the
// triage section of the config file when present.
type Keywords struct {
	// Words are matched case-insensitively on word boundaries.
	Words []string `yaml:"words"`
	// Phrases are matched as plain substrings (used for Korean).
	Phrases    []string `yaml:"phrases"`
	Extensions []string `yaml:"extensions"`
}

// DefaultKeywords returns the built-in bilingual list.
func DefaultKeywords() Keywords {
	return Keywords{
		Words: []string{
			// actions
			"create", "make", "write", "add", "implement", "build", "fix", "debug",
			"refactor", "update", "modify", "change", "edit", "delete", "remove",
			"rename", "move", "install", "run", "execute", "deploy", "generate",
			"migrate", "optimize",
			// inspection
			"read", "open", "show", "list", "find", "search", "grep", "check",
			"analyze", "analyse", "review", "inspect",
			// nouns
			"file", "files", "folder", "directory", "code", "codebase", "repo",
			"repository", "project", "function", "class", "method", "module",
			"component", "package", "bug", "error", "test", "tests", "script",
			"config", "commit", "branch",
		},
		Phrases: []string{
			"파일", "폴더", "디렉토리", "코드", "프로젝트", "함수", "클래스", "모듈",
			"컴포넌트", "수정", "생성", "만들어", "작성", "추가", "삭제", "구현",
			"리팩토링", "고쳐", "버그", "에러", "오류", "실행", "빌드", "테스트",
			"설치", "검색", "찾아", "읽어", "분석", "변경",
		},
		Extensions: []string{
			"ts", "tsx", "js", "jsx", "mjs", "cjs", "go", "py", "rs", "java", "kt",
			"cs", "c", "h", "cpp", "hpp", "rb", "php", "swift", "json", "yaml",
			"yml", "toml", "md", "html", "css", "scss", "sql", "sh", "vue", "svelte",
		},
	}
}

// Keyword is the regex fast path. A hit means Graph; no hit is ErrUndecided.
type Keyword struct {
	words    *regexp.Regexp
	phrases  []string
	fileRef  *regexp.Regexp
	fileName *regexp.Regexp
}

var atFileRe = regexp.MustCompile(`(^|\s)@[\w./\\-]+`)

// NewKeyword compiles kw.
func NewKeyword(kw Keywords) (*Keyword, error) {
	k := &Keyword{phrases: kw.Phrases, fileRef: atFileRe}
	if len(kw.Words) > 0 {
		quoted := make([]string, len(kw.Words))
		for i, w := range kw.Words {
			quoted[i] = regexp.QuoteMeta(w)
		}
		re, err := regexp.Compile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)
		if err != nil {
			return nil, fmt.Errorf("compile triage words: %w", err)
		}
		k.words = re
	}
	if len(kw.Extensions) > 0 {
		quoted := make([]string, len(kw.Extensions))
		for i, e := range kw.Extensions {
			quoted[i] = regexp.QuoteMeta(strings.TrimPrefix(e, "."))
		}
		re, err := regexp.Compile(`(?i)[\w./\\-]+\.(` + strings.Join(quoted, "|") + `)\b`)
		if err != nil {
			return nil, fmt.Errorf("compile triage extensions: %w", err)
		}
		k.fileName = re
	}
	return k, nil
}

// Classify implements Classifier.
func (k *Keyword) Classify(_ context.Context, text string) (Result, error) {
	if m := k.fileRef.FindString(text); m != "" {
		return Result{Graph, "file reference " + strings.TrimSpace(m)}, nil
	}
	if k.fileName != nil {
		if m := k.fileName.FindString(text); m != "" {
			return Result{Graph, "file name " + m}, nil
		}
	}
	if k.words != nil {
		if m := k.words.FindString(text); m != "" {
			return Result{Graph, "keyword " + strings.ToLower(m)}, nil
		}
	}
	for _, p := range k.phrases {
		if strings.Contains(text, p) {
			return Result{Graph, "keyword " + p}, nil
		}
	}
	return Result{}, ErrUndecided
}

const classifyPrompt = `Decide whether the user's request can be answered from general knowledge alone, or whether it needs access to files, tools, commands or the user's codebase.
Reply with exactly one word: SIMPLE if general knowledge is enough, COMPLEX otherwise.`

// Model asks the model for a one-word verdict. A reply containing SIMPLE
// means DirectResponse; anything else means Graph.
type Model struct {
	Client llm.Client
	Model  string
}

// Classify implements Classifier.
func (m *Model) Classify(ctx context.Context, text string) (Result, error) {
	msgs := []message.Message{message.System(classifyPrompt), message.User(text)}
	resp, err := m.Client.Chat(ctx, m.Model, msgs, nil, llm.ChatOptions{Temperature: 0, MaxOutputTokens: 10})
	if err != nil {
		return Result{}, fmt.Errorf("triage model call: %w", err)
	}
	if strings.Contains(strings.ToUpper(resp.Content), "SIMPLE") {
		return Result{DirectResponse, "model judged the request answerable without tools"}, nil
	}
	return Result{Graph, fmt.Sprintf("model reply %q", strings.TrimSpace(resp.Content))}, nil
}

// Chain asks each classifier in turn until one decides. Errors other than
// ErrUndecided, and a chain where nobody decides, yield Graph.
type Chain []Classifier

// Classify implements Classifier and never returns an error other than a
// cancelled context.
func (c Chain) Classify(ctx context.Context, text string) (Result, error) {
	for _, cl := range c {
		res, err := cl.Classify(ctx, text)
		switch {
		case err == nil:
			return res, nil
		case errors.Is(err, ErrUndecided):
			continue
		case ctx.Err() != nil:
			return Result{}, ctx.Err()
		default:
			return Result{Graph, "classification failed, using tools: " + err.Error()}, nil
		}
	}
	return Result{Graph, "no classifier decided"}, nil
}

// NewDefault returns the keyword fast path followed by the model fallback.
func NewDefault(kw Keywords, client llm.Client, model string) (Chain, error) {
	k, err := NewKeyword(kw)
	if err != nil {
		return nil, err
	}
	return Chain{k, &Model{Client: client, Model: model}}, nil
}
