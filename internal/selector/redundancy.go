package selector

import (
	"fmt"
	"reflect"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
)

// ReadTools are the tools whose calls are pure reads and can cover one
// another when they target the same path.
var ReadTools = map[string]bool{
	"read_file":  true,
	"list_files": true,
	"grep":       true,
}

// RedundancyKind describes why a call is redundant.
type RedundancyKind string

const (
	// KindDuplicate is a call with the same name and arguments as an earlier one.
	KindDuplicate RedundancyKind = "duplicate"
	// KindSubset is a read already covered by a broader earlier read.
	KindSubset RedundancyKind = "subset"
	// KindSuperset is a read that makes an earlier, narrower read unnecessary.
	KindSuperset RedundancyKind = "superset"
)

// Redundancy flags one call in a batch.
type Redundancy struct {
	Index      int // position of the flagged call
	Other      int // position of the earlier call it relates to
	CallID     string
	Kind       RedundancyKind
	Suggestion string
}

// DetectRedundantCalls flags calls in one batch that repeat an earlier call,
// or that narrow or widen an earlier read of the same path.
func DetectRedundantCalls(calls []message.ToolCall) []Redundancy {
	var out []Redundancy
	for j := 1; j < len(calls); j++ {
		for i := 0; i < j; i++ {
			a, b := calls[i], calls[j]
			if a.Name != b.Name {
				continue
			}
			if a.ArgsJSON() == b.ArgsJSON() {
				out = append(out, Redundancy{
					Index: j, Other: i, CallID: b.ID, Kind: KindDuplicate,
					Suggestion: fmt.Sprintf("%s call %d repeats call %d with identical arguments; drop it", b.Name, j+1, i+1),
				})
				break
			}
			if !ReadTools[a.Name] || a.StringArg("path") != b.StringArg("path") {
				continue
			}
			switch {
			case strictSubset(a.Args, b.Args):
				// the earlier call has fewer constraints, so it already read everything b asks for
				out = append(out, Redundancy{
					Index: j, Other: i, CallID: b.ID, Kind: KindSubset,
					Suggestion: fmt.Sprintf("%s of %q is already covered by call %d", b.Name, pathLabel(b), i+1),
				})
			case strictSubset(b.Args, a.Args):
				out = append(out, Redundancy{
					Index: j, Other: i, CallID: b.ID, Kind: KindSuperset,
					Suggestion: fmt.Sprintf("%s of %q covers call %d; the narrower read can be dropped", b.Name, pathLabel(b), i+1),
				})
			default:
				continue
			}
			break
		}
	}
	return out
}

// strictSubset reports whether every key of small appears in big with the
// same value and big has at least one more key.
func strictSubset(small, big map[string]any) bool {
	if len(small) >= len(big) {
		return false
	}
	for k, v := range small {
		bv, ok := big[k]
		if !ok || !reflect.DeepEqual(v, bv) {
			return false
		}
	}
	return true
}

func pathLabel(c message.ToolCall) string {
	if p := c.StringArg("path"); p != "" {
		return p
	}
	return "."
}

// SuggestOptimization returns batching hints for one batch of calls.
func SuggestOptimization(calls []message.ToolCall) []string {
	counts := make(map[string]int)
	for _, c := range calls {
		counts[c.Name]++
	}
	var hints []string
	if n := counts["read_file"]; n >= 3 {
		hints = append(hints, fmt.Sprintf("batch these %d file reads: read only the files the current step needs, or list the directory first", n))
	}
	if n := counts["grep"]; n >= 2 {
		hints = append(hints, fmt.Sprintf("combine these %d searches into one pattern with alternation (a|b)", n))
	}
	if n := counts["list_files"]; n >= 2 {
		hints = append(hints, fmt.Sprintf("replace these %d directory listings with one recursive listing of the common parent", n))
	}
	return hints
}
