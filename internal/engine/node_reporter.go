package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
)

const maxReportedFiles = 10

// reporterNode writes the closing summary. It never calls the model.
func (e *Engine) reporterNode(ctx context.Context, r *run) error {
	st := r.st
	kind := reportKind(st)
	summary := formatReport(st, kind)

	st.Append(message.Assistant(summary, nil))
	st.Done = true
	r.emit(EventNode, NodeReporter, ReportData{
		Kind:          kind,
		Summary:       summary,
		Iterations:    st.IterationCount,
		ModifiedFiles: st.ModifiedFiles,
		DeletedFiles:  st.DeletedFiles,
	})
	e.d.Hooks.OnDone(ctx, st, kind)
	return nil
}

func reportKind(st *TaskState) ReportKind {
	switch {
	case st.AgentError != "":
		return ReportAgentError
	case st.ForceTermination:
		return ReportMaxIterations
	}
	for _, res := range st.ToolResults {
		if res.Failed() {
			return ReportToolError
		}
	}
	return ReportSuccess
}

func formatReport(st *TaskState, kind ReportKind) string {
	var b strings.Builder
	switch kind {
	case ReportAgentError:
		fmt.Fprintf(&b, "The task stopped because the model call failed: %s\n", st.AgentError)
	case ReportMaxIterations:
		fmt.Fprintf(&b, "Stopped after reaching the limit of %d iterations. The task may be incomplete.\n", st.MaxIterations)
	case ReportToolError:
		b.WriteString("Finished, but the last tool calls failed:\n")
		for _, res := range st.ToolResults {
			if res.Failed() {
				fmt.Fprintf(&b, "- %s: %s\n", res.ToolName, res.Error)
			}
		}
	default:
		b.WriteString("Task complete.\n")
	}

	fmt.Fprintf(&b, "\nFiles modified: %d, deleted: %d\n", len(st.ModifiedFiles), len(st.DeletedFiles))
	writeFiles(&b, "Modified", st.ModifiedFiles)
	writeFiles(&b, "Deleted", st.DeletedFiles)
	fmt.Fprintf(&b, "Iterations: %d/%d\n", st.IterationCount, st.MaxIterations)
	if len(st.Plan) > 0 {
		// the cursor step is only finished when the run succeeded
		done := st.CurrentPlanStep
		if kind == ReportSuccess {
			done++
		}
		fmt.Fprintf(&b, "Plan: %d/%d steps completed\n", done, len(st.Plan))
	}
	if st.VerificationStatus != VerificationNone && st.VerificationStatus != "" {
		fmt.Fprintf(&b, "Verification: %s\n", st.VerificationStatus)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeFiles(b *strings.Builder, label string, files []string) {
	if len(files) == 0 {
		return
	}
	shown := files
	if len(shown) > maxReportedFiles {
		shown = shown[:maxReportedFiles]
	}
	fmt.Fprintf(b, "%s:\n", label)
	for _, f := range shown {
		fmt.Fprintf(b, "  - %s\n", f)
	}
	if extra := len(files) - len(shown); extra > 0 {
		fmt.Fprintf(b, "  ... and %d more\n", extra)
	}
}
