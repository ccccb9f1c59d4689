package engine

import (
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/approval"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/triage"
)

// PlanKind is the planner's classification of the task.
type PlanKind string

const (
	PlanReadOnly     PlanKind = "read_only"
	PlanModification PlanKind = "modification"
	PlanUnknown      PlanKind = "unknown"
)

// VerificationStatus is the outcome of the last verification pass.
type VerificationStatus string

const (
	VerificationNone   VerificationStatus = "none"
	VerificationPassed VerificationStatus = "passed"
	VerificationFailed VerificationStatus = "failed"
)

// guidanceName marks user-role messages written by the engine itself
// (reminders, corrective notes) so they are not mistaken for the user.
const guidanceName = "engine"

// TaskState is the mutable record of one user turn. Nodes mutate it in
// place; routing functions only read it.
type TaskState struct {
	ConversationID string
	Messages       []message.Message

	Plan            []string
	PlanCreated     bool
	PlanKind        PlanKind
	CurrentPlanStep int

	IterationCount int
	MaxIterations  int

	// ToolCalls and ToolResults hold the latest batch only.
	ToolCalls   []message.ToolCall
	ToolResults []message.ToolResult

	ModifiedFiles    []string
	DeletedFiles     []string
	FileChangesCount int
	// LastModified and LastToolCount describe the latest tools phase and
	// are reset by the iteration guard.
	LastModified  []string
	LastToolCount int

	RequiredFiles []string

	ApprovalHistory    []approval.Record
	LastApprovalStatus approval.Status
	AlwaysApproveTools bool

	VerificationNotes  string
	VerificationStatus VerificationStatus

	TriageDecision triage.Decision
	TriageReason   string

	ForceTermination         bool
	NeedsAdditionalIteration bool
	AgentError               string
	ToolsExecuted            int
	PlanReminderSent         bool
	Suspended                bool
	Done                     bool

	Usage message.Usage

	// Extensions carries host-specific string values the core never reads.
	Extensions map[string]string
}

// NewTaskState starts a turn from prior history and the new user text.
func NewTaskState(turn *TurnContext, history []message.Message, userText string) *TaskState {
	st := &TaskState{
		Messages:           append([]message.Message(nil), history...),
		PlanKind:           PlanUnknown,
		VerificationStatus: VerificationNone,
		Extensions:         make(map[string]string),
	}
	if turn != nil {
		st.ConversationID = turn.ConversationID
		st.MaxIterations = turn.MaxIterations
		st.AlwaysApproveTools = turn.AlwaysApproveTools
	}
	if userText != "" {
		st.Messages = append(st.Messages, message.User(userText))
	}
	return st
}

// Append adds messages to the transcript.
func (s *TaskState) Append(msgs ...message.Message) {
	s.Messages = append(s.Messages, msgs...)
}

// LatestUserText returns the most recent message the user actually wrote.
func (s *TaskState) LatestUserText() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		m := s.Messages[i]
		if m.Role == message.RoleUser && m.Name != guidanceName {
			return m.Content
		}
	}
	return ""
}

// Extension returns a host value.
func (s *TaskState) Extension(key string) (string, bool) {
	v, ok := s.Extensions[key]
	return v, ok
}

// SetExtension stores a host value.
func (s *TaskState) SetExtension(key, value string) {
	if s.Extensions == nil {
		s.Extensions = make(map[string]string)
	}
	s.Extensions[key] = value
}

func guidance(content string) message.Message {
	m := message.User(content)
	m.Name = guidanceName
	return m
}

func appendUnique(list []string, items ...string) []string {
	seen := make(map[string]bool, len(list))
	for _, s := range list {
		seen[s] = true
	}
	for _, s := range items {
		if !seen[s] {
			seen[s] = true
			list = append(list, s)
		}
	}
	return list
}
