package analyzer

import (
	"path"
	"sort"
	"strings"
	"unicode"
)

// stopWords are prompt terms too generic to say anything about a file.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "this": true, "that": true,
	"from": true, "into": true, "please": true, "can": true, "you": true, "file": true,
	"files": true, "code": true, "make": true, "add": true, "fix": true, "bug": true,
	"all": true, "use": true, "new": true, "our": true, "are": true, "its": true,
	"how": true, "what": true, "why": true, "where": true, "when": true, "not": true,
}

type scored struct {
	path  string
	score int
}

// RecommendFiles scores file paths against the terms of prompt and returns
// up to topN paths with a positive score, best first.
func RecommendFiles(prompt string, st Structure, topN int) []string {
	if topN <= 0 {
		return nil
	}
	terms := promptTerms(prompt)
	lowerPrompt := strings.ToLower(prompt)
	if len(terms) == 0 && lowerPrompt == "" {
		return nil
	}

	var results []scored
	for _, e := range st.Entries {
		if e.Dir {
			continue
		}
		if s := scoreEntry(e, terms, lowerPrompt); s > 0 {
			results = append(results, scored{e.Path, s})
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		if len(results[i].path) != len(results[j].path) {
			return len(results[i].path) < len(results[j].path)
		}
		return results[i].path < results[j].path
	})
	if len(results) > topN {
		results = results[:topN]
	}
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.path
	}
	return out
}

func scoreEntry(e Entry, terms []string, lowerPrompt string) int {
	lowerPath := strings.ToLower(e.Path)
	score := 0
	if strings.Contains(lowerPrompt, lowerPath) {
		score += 10
	} else if strings.Contains(lowerPrompt, strings.ToLower(e.Name)) {
		score += 5
	}

	stem := strings.ToLower(strings.TrimSuffix(e.Name, path.Ext(e.Name)))
	parts := splitIdentifier(strings.TrimSuffix(e.Name, path.Ext(e.Name)))
	dirs := strings.Split(strings.ToLower(path.Dir(e.Path)), "/")

	for _, t := range terms {
		switch {
		case t == stem:
			score += 3
		case containsString(parts, t) || (len(t) >= 4 && strings.Contains(stem, t)):
			score += 2
		}
		if containsString(dirs, t) {
			score++
		}
	}
	return score
}

// promptTerms lowercases, splits on non-alphanumerics and drops stop words
// and one or two letter fragments.
func promptTerms(prompt string) []string {
	seen := make(map[string]bool)
	var out []string
	fields := strings.FieldsFunc(prompt, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, f := range fields {
		for _, t := range append([]string{strings.ToLower(f)}, splitIdentifier(f)...) {
			if len([]rune(t)) < 3 || stopWords[t] || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// splitIdentifier breaks camelCase, snake_case and kebab-case into lowercase words.
func splitIdentifier(s string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == '.' || unicode.IsSpace(r):
			flush()
		case unicode.IsUpper(r) && i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return words
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
