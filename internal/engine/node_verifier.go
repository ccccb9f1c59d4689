package engine

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/verify"
)

const (
	planReminder = "You have a plan but have not used any tools yet. Start on step 1 now using the available tools."
	// requiredFilesWindow is the last iteration at which a missed required
	// file still triggers a reminder.
	requiredFilesWindow = 3
)

// verifierNode decides whether the loop needs another iteration. Checks run
// in priority order and the first match wins.
func (e *Engine) verifierNode(ctx context.Context, r *run) error {
	st := r.st
	data := VerifierData{}

	switch {
	case len(st.Plan) > 0 && st.ToolsExecuted == 0 && !st.PlanReminderSent:
		st.PlanReminderSent = true
		st.Append(guidance(planReminder))
		e.iterate(st, &data, planReminder)

	case len(st.LastModified) > 0:
		report, err := e.runVerification(ctx, r)
		if err != nil {
			return err
		}
		data.Report = &report
		e.d.Hooks.OnVerification(ctx, st, report)
		if !report.AllPassed {
			st.VerificationStatus = VerificationFailed
			note := report.Summary()
			st.Append(guidance(note + "\nFix these problems before continuing."))
			e.iterate(st, &data, note)
			break
		}
		st.VerificationStatus = VerificationPassed
		st.VerificationNotes = report.Summary()
		data.Notes = st.VerificationNotes
		// the model still has to see the results of its own tool calls
		e.iterate(st, &data, st.VerificationNotes)

	case st.LastToolCount > 0:
		e.iterate(st, &data, "")

	case len(st.RequiredFiles) > 0 && st.PlanKind != PlanReadOnly &&
		!anyRequiredTouched(st.RequiredFiles, st.ModifiedFiles) &&
		st.IterationCount <= requiredFilesWindow:
		note := "None of the files this task needs have been changed yet: " + strings.Join(st.RequiredFiles, ", ") + ". Make the required changes or explain why none are needed."
		st.Append(guidance(note))
		e.iterate(st, &data, note)

	case st.CurrentPlanStep < len(st.Plan)-1:
		st.CurrentPlanStep++
		note := fmt.Sprintf("Step %d is done. Continue with step %d: %s", st.CurrentPlanStep, st.CurrentPlanStep+1, st.Plan[st.CurrentPlanStep])
		st.Append(guidance(note))
		e.iterate(st, &data, note)

	default:
		st.NeedsAdditionalIteration = false
	}

	data.NeedsAdditionalIteration = st.NeedsAdditionalIteration
	data.CurrentPlanStep = st.CurrentPlanStep
	r.emit(EventNode, NodeVerifier, data)
	return nil
}

func (e *Engine) iterate(st *TaskState, data *VerifierData, note string) {
	st.NeedsAdditionalIteration = true
	if note != "" {
		st.VerificationNotes = note
		data.Notes = note
	}
}

// runVerification checks the latest modifications. Without a pipeline
// every change counts as verified.
func (e *Engine) runVerification(ctx context.Context, r *run) (verify.Report, error) {
	if e.d.Verifier == nil || r.turn.WorkingDirectory == "" {
		return verify.Report{AllPassed: true}, nil
	}
	report, err := e.d.Verifier.Verify(ctx, r.turn.WorkingDirectory, r.st.LastModified)
	if err != nil {
		if isAbort(ctx, err) {
			return verify.Report{}, err
		}
		e.logger.WarnContext(ctx, "verification could not run", "error", err)
		return verify.Report{AllPassed: true, Suggestions: []string{"verification skipped: " + err.Error()}}, nil
	}
	return report, nil
}

// anyRequiredTouched matches by path suffix, equal base names, or one base
// name containing the other. Containment lets a required "auth" match
// auth.go and can over-match very short names.
func anyRequiredTouched(required, modified []string) bool {
	for _, req := range required {
		rb := strings.ToLower(path.Base(req))
		for _, m := range modified {
			if strings.HasSuffix(m, req) || strings.HasSuffix(req, m) {
				return true
			}
			mb := strings.ToLower(path.Base(m))
			if rb == mb || strings.Contains(mb, rb) || strings.Contains(rb, mb) {
				return true
			}
		}
	}
	return false
}
