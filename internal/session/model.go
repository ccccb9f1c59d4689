package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/approval"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/engine"
	"github.com/jhl-labs/sepilot-desktop-sub008/internal/message"
)

// Session is a conversation persisted between CLI invocations.
type Session struct {
	ID        string            `json:"id"`
	RepoPath  string            `json:"repo_path"`
	RepoHash  string            `json:"repo_hash"` // Used for directory scoping
	Title     string            `json:"title"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	History   []message.Message `json:"history"`
	Summary   string            `json:"summary,omitempty"` // Context injection for next session

	ApprovalHistory    []approval.Record `json:"approval_history,omitempty"`
	AlwaysApproveTools bool              `json:"always_approve_tools,omitempty"`
	Usage              message.Usage     `json:"usage"`
	// Pending is the suspended turn waiting for an approval response.
	Pending *engine.TaskState `json:"pending,omitempty"`
}

// SessionMeta is a lightweight representation for listing.
type SessionMeta struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Summary   string    `json:"summary,omitempty"`
	Pending   bool      `json:"pending,omitempty"`
}

// New starts an empty session for repoPath.
func New(repoPath string) *Session {
	now := time.Now()
	return &Session{ID: uuid.NewString(), RepoPath: repoPath, CreatedAt: now, UpdatedAt: now}
}

// NextState builds the task state for a new user turn on top of the
// session's history.
func (s *Session) NextState(turn *engine.TurnContext, userText string) *engine.TaskState {
	st := engine.NewTaskState(turn, s.History, userText)
	if s.AlwaysApproveTools {
		st.AlwaysApproveTools = true
	}
	return st
}

// Absorb records the outcome of a run. A suspended state is kept as
// Pending; a finished one folds its approvals and usage into the session.
func (s *Session) Absorb(st *engine.TaskState) {
	s.History = st.Messages
	s.UpdatedAt = time.Now()
	if st.AlwaysApproveTools {
		s.AlwaysApproveTools = true
	}
	if st.Suspended {
		s.Pending = st
		return
	}
	s.Pending = nil
	s.ApprovalHistory = append(s.ApprovalHistory, st.ApprovalHistory...)
	s.Usage.Add(st.Usage)
}

// Meta returns the listing view.
func (s *Session) Meta() SessionMeta {
	return SessionMeta{
		ID:        s.ID,
		Title:     s.Title,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		Summary:   s.Summary,
		Pending:   s.Pending != nil,
	}
}
