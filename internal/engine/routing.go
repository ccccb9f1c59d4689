package engine

import (
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/approval"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/triage"
)

// Routing functions read the state and never modify it.

func routeAfterTriage(st *TaskState) string {
	if st.TriageDecision == triage.DirectResponse {
		return NodeDirectResponse
	}
	return NodePlanner
}

func routeAfterPlanner(*TaskState) string { return NodeIterationGuard }

func routeAfterGuard(st *TaskState) string {
	if st.ForceTermination {
		return NodeReporter
	}
	return NodeAgent
}

func routeAfterAgent(st *TaskState) string {
	switch {
	case st.AgentError != "":
		return NodeReporter
	case len(st.ToolCalls) > 0:
		return NodeApproval
	default:
		return NodeVerifier
	}
}

func routeAfterApproval(st *TaskState) string {
	switch st.LastApprovalStatus {
	case approval.StatusApproved:
		return NodeTools
	case approval.StatusPending:
		return nodeEnd
	default:
		return NodeVerifier
	}
}

func routeAfterTools(*TaskState) string { return NodeVerifier }

func routeAfterVerifier(st *TaskState) string {
	if st.NeedsAdditionalIteration {
		return NodeIterationGuard
	}
	return NodeReporter
}

func routeToEnd(*TaskState) string { return nodeEnd }
