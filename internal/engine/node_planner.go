package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/analyzer"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/prompts"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/triage"
)

var (
	planStepRe   = regexp.MustCompile(`^\s*\d+[.):]\s*(.+)$`)
	quotedFileRe = regexp.MustCompile("[\"'`]([\\w\\-./\\\\]+\\.[A-Za-z0-9]+)[\"'`]")
	readStepRe   = regexp.MustCompile(`(?i)^(read|open|view|inspect|look|check|review|understand|examine|locate|find)\b`)
)

// pathRe matches path-like tokens ending in a known source extension.
var pathRe = func() *regexp.Regexp {
	exts := triage.DefaultKeywords().Extensions
	quoted := make([]string, len(exts))
	for i, e := range exts {
		quoted[i] = regexp.QuoteMeta(e)
	}
	return regexp.MustCompile(`(?i)(?:^|[\s(,:])(@?[\w\-./\\]+\.(?:` + strings.Join(quoted, "|") + `))\b`)
}()

const maxSelectionSteps = 3

func (e *Engine) plannerNode(ctx context.Context, r *run) error {
	st := r.st
	if st.PlanCreated {
		r.emit(EventNode, NodePlanner, PlanData{Kind: st.PlanKind, Steps: st.Plan, RequiredFiles: st.RequiredFiles, Skipped: true})
		return nil
	}
	userText := st.LatestUserText()

	var req strings.Builder
	req.WriteString("Task:\n" + userText)
	if sel := r.turn.ActiveSelection; sel != nil {
		fmt.Fprintf(&req, "\n\nThe user selected lines %d-%d of %s. Plan to edit that selection in place; it is already read.", sel.StartLine, sel.EndLine, sel.Path)
	}
	msgs := []message.Message{
		message.System(prompts.DefaultRegistry().Content(prompts.Planner)),
		message.User(req.String()),
	}

	reply, err := e.streamModel(ctx, r, NodePlanner, msgs, nil, e.chatOptions(false))
	if err != nil {
		if isAbort(ctx, err) {
			return err
		}
		e.logger.WarnContext(ctx, "planning failed, continuing without a plan", "conversation", st.ConversationID, "error", err)
		reply = modelReply{}
	}

	kind, steps := parsePlan(reply.Text)
	if r.turn.ActiveSelection != nil {
		steps = constrainToSelection(steps, r.turn.ActiveSelection)
		if kind == PlanUnknown {
			kind = PlanModification
		}
	}
	st.Plan = steps
	st.PlanKind = kind
	st.PlanCreated = true
	st.CurrentPlanStep = 0
	st.RequiredFiles = e.requiredFiles(ctx, r, userText)

	r.emit(EventNode, NodePlanner, PlanData{Kind: kind, Steps: steps, RequiredFiles: st.RequiredFiles})
	return nil
}

// parsePlan reads the kind marker and the numbered steps of a plan reply.
func parsePlan(text string) (PlanKind, []string) {
	kind := PlanUnknown
	upper := strings.ToUpper(text)
	switch {
	case strings.Contains(upper, "[READ-ONLY]"):
		kind = PlanReadOnly
	case strings.Contains(upper, "[MODIFICATION]"):
		kind = PlanModification
	}
	var steps []string
	for _, line := range strings.Split(text, "\n") {
		if m := planStepRe.FindStringSubmatch(line); m != nil {
			if s := strings.TrimSpace(m[1]); s != "" {
				steps = append(steps, s)
			}
		}
	}
	return kind, steps
}

// constrainToSelection drops read steps and keeps the plan between two and
// three steps that edit the selection in place.
func constrainToSelection(steps []string, sel *Selection) []string {
	var out []string
	for _, s := range steps {
		if readStepRe.MatchString(s) {
			continue
		}
		out = append(out, s)
	}
	if len(out) > maxSelectionSteps {
		out = out[:maxSelectionSteps]
	}
	if len(out) < 2 {
		out = []string{
			fmt.Sprintf("Edit the selected lines %d-%d of %s in place", sel.StartLine, sel.EndLine, sel.Path),
			"Confirm the edit is consistent with the surrounding code",
		}
	}
	return out
}

// requiredFiles unions files named in the request with the workspace's best
// recommendations.
func (e *Engine) requiredFiles(ctx context.Context, r *run, userText string) []string {
	files := extractFileRefs(userText)
	if userText == "" || r.turn.WorkingDirectory == "" {
		return files
	}
	recs, err := e.recommend(r.turn.WorkingDirectory, userText)
	if err != nil {
		e.logger.DebugContext(ctx, "file recommendation failed", "error", err)
		return files
	}
	return appendUnique(files, recs...)
}

func (e *Engine) recommend(root, prompt string) ([]string, error) {
	if e.d.Recommender != nil {
		return e.d.Recommender.Recommend(prompt, e.cfg.RecommendTopN)
	}
	st, err := analyzer.AnalyzeStructureWithLimits(root, e.cfg.Analyzer)
	if err != nil {
		return nil, err
	}
	return analyzer.RecommendFiles(prompt, st, e.cfg.RecommendTopN), nil
}

// extractFileRefs finds path-with-extension tokens and quoted file names.
func extractFileRefs(text string) []string {
	var out []string
	add := func(p string) {
		p = strings.TrimPrefix(p, "@")
		p = strings.TrimPrefix(p, "./")
		p = strings.TrimRight(p, ".,;:")
		if p != "" {
			out = appendUnique(out, filepath.ToSlash(p))
		}
	}
	for _, m := range pathRe.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range quotedFileRe.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	return out
}
