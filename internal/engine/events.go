package engine

import (
	"context"
	"time"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/approval"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/selector"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/triage"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/verify"
)

// Node names.
const (
	NodeTriage         = "triage"
	NodeDirectResponse = "direct_response"
	NodePlanner        = "planner"
	NodeIterationGuard = "iteration_guard"
	NodeAgent          = "agent"
	NodeApproval       = "approval"
	NodeTools          = "tools"
	NodeVerifier       = "verifier"
	NodeReporter       = "reporter"

	nodeEnd = ""
)

// EventType classifies engine events.
type EventType string

const (
	EventNode            EventType = "node"
	EventApprovalRequest EventType = "tool_approval_request"
	EventApprovalResult  EventType = "tool_approval_result"
	EventError           EventType = "error"
)

// Event is one progress notification. Data holds the node-specific payload
// type below.
type Event struct {
	Type           EventType `json:"type"`
	Node           string    `json:"node,omitempty"`
	ConversationID string    `json:"conversation_id"`
	Data           any       `json:"data,omitempty"`
	Time           time.Time `json:"time"`
}

// EventSink receives events in order. Emit may block.
type EventSink interface {
	Emit(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

func (f EventSinkFunc) Emit(ev Event) { f(ev) }

type nopSink struct{}

func (nopSink) Emit(Event) {}

// chanSink forwards events to a channel until ctx is done.
type chanSink struct {
	ctx context.Context
	ch  chan<- Event
}

func (s chanSink) Emit(ev Event) {
	select {
	case s.ch <- ev:
	case <-s.ctx.Done():
	}
}

type TriageData struct {
	Decision triage.Decision `json:"decision"`
	Reason   string          `json:"reason"`
}

type DirectResponseData struct {
	Content string `json:"content"`
}

type PlanData struct {
	Kind          PlanKind `json:"kind"`
	Steps         []string `json:"steps"`
	RequiredFiles []string `json:"required_files,omitempty"`
	Skipped       bool     `json:"skipped,omitempty"`
}

type GuardData struct {
	Iteration        int  `json:"iteration"`
	MaxIterations    int  `json:"max_iterations"`
	ForceTermination bool `json:"force_termination"`
}

type AgentData struct {
	Content   string             `json:"content,omitempty"`
	ToolCalls []message.ToolCall `json:"tool_calls,omitempty"`
	Usage     message.Usage      `json:"usage"`
	Error     string             `json:"error,omitempty"`
	Compacted bool               `json:"compacted,omitempty"`
}

type ApprovalData struct {
	Status approval.Status `json:"status"`
	Risk   approval.Risk   `json:"risk"`
	Reason string          `json:"reason,omitempty"`
}

// ApprovalRequest is the payload of a tool_approval_request event.
type ApprovalRequest struct {
	Calls   []message.ToolCall `json:"calls"`
	Risk    approval.Risk      `json:"risk"`
	Reason  string             `json:"reason"`
	Matches []approval.Match   `json:"matches,omitempty"`
}

// ApprovalResult is the payload of a tool_approval_result event.
type ApprovalResult struct {
	Decision approval.Status `json:"decision"`
	Feedback string          `json:"feedback,omitempty"`
	Always   bool            `json:"always,omitempty"`
}

type ToolsData struct {
	Results       []message.ToolResult  `json:"results"`
	ModifiedFiles []string              `json:"modified_files,omitempty"`
	DeletedFiles  []string              `json:"deleted_files,omitempty"`
	CheckpointID  string                `json:"checkpoint_id,omitempty"`
	Redundant     []selector.Redundancy `json:"redundant,omitempty"`
	Suggestions   []string              `json:"suggestions,omitempty"`
}

type VerifierData struct {
	Report                   *verify.Report `json:"report,omitempty"`
	Notes                    string         `json:"notes,omitempty"`
	NeedsAdditionalIteration bool           `json:"needs_additional_iteration"`
	CurrentPlanStep          int            `json:"current_plan_step"`
}

// ReportKind selects the reporter's summary template.
type ReportKind string

const (
	ReportSuccess       ReportKind = "success"
	ReportAgentError    ReportKind = "agent_error"
	ReportToolError     ReportKind = "tool_error"
	ReportMaxIterations ReportKind = "max_iterations"
)

type ReportData struct {
	Kind          ReportKind `json:"kind"`
	Summary       string     `json:"summary"`
	Iterations    int        `json:"iterations"`
	ModifiedFiles []string   `json:"modified_files,omitempty"`
	DeletedFiles  []string   `json:"deleted_files,omitempty"`
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Message string `json:"message"`
	Aborted bool   `json:"aborted,omitempty"`
}
