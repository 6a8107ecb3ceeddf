package agent

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/BaSui01/agentrelay/types"
)

// Status 定义工作流会话状态
type Status string

const (
	StatusPending    Status = "pending"     // Created, no turn taken yet
	StatusInProgress Status = "in_progress" // Agents are taking turns
	StatusCompleted  Status = "completed"   // Terminal: task finished
	StatusError      Status = "error"       // Terminal: a turn failed
)

// validTransitions 定义合法的状态转换（单次运行内不可回退）
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusError},
	StatusInProgress: {StatusCompleted, StatusError},
}

// CanTransition 检查状态转换是否合法
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	return slices.Contains(validTransitions[from], to)
}

// IsTerminal reports whether no further turn may run.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// ErrInvalidTransition 非法状态转换错误
type ErrInvalidTransition struct {
	From Status
	To   Status
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

// Code maps the transition error onto the shared error codes.
func (e ErrInvalidTransition) Code() types.ErrorCode {
	return types.ErrInvalidTransition
}

// WorkflowState is the shared record threaded through every agent turn.
//
// Messages is append-only. Artifacts and Metadata values should be
// JSON-native (string, float64, bool, nil, []any, map[string]any) so that a
// checkpoint round-trip reproduces them exactly.
type WorkflowState struct {
	ThreadID        string          `json:"thread_id,omitempty"`
	Messages        []types.Message `json:"messages"`
	TaskDescription string          `json:"task_description,omitempty"`
	ActiveAgent     string          `json:"active_agent,omitempty"`
	PreviousAgent   string          `json:"previous_agent,omitempty"`
	Artifacts       map[string]any  `json:"artifacts,omitempty"`
	Metadata        map[string]any  `json:"metadata,omitempty"`
	Status          Status          `json:"status"`
	Step            int             `json:"step"`

	// Handoff 是尚未被路由器处理的结构化交接信号
	Handoff *HandoffSignal `json:"handoff,omitempty"`
}

// NewWorkflowState creates a pending state whose first message is the task input.
func NewWorkflowState(input string) *WorkflowState {
	return &WorkflowState{
		Messages:        []types.Message{types.NewUserMessage(input)},
		TaskDescription: input,
		Artifacts:       make(map[string]any),
		Metadata:        make(map[string]any),
		Status:          StatusPending,
	}
}

// SetStatus moves the state to a new status, rejecting backward moves.
func (s *WorkflowState) SetStatus(to Status) error {
	if !CanTransition(s.Status, to) {
		return ErrInvalidTransition{From: s.Status, To: to}
	}
	s.Status = to
	return nil
}

// Fail forces the terminal error status and records the reason in metadata.
// Completed sessions are left untouched.
func (s *WorkflowState) Fail(reason string) {
	if s.Status == StatusCompleted {
		return
	}
	s.Status = StatusError
	s.SetMetadata("error", reason)
}

// AppendMessage appends msg to the conversation.
func (s *WorkflowState) AppendMessage(msg types.Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = types.Now()
	}
	s.Messages = append(s.Messages, msg)
}

// LatestMessage returns the last message, if any.
func (s *WorkflowState) LatestMessage() (types.Message, bool) {
	if len(s.Messages) == 0 {
		return types.Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// SetArtifact stores a named artifact.
func (s *WorkflowState) SetArtifact(name string, value any) {
	if s.Artifacts == nil {
		s.Artifacts = make(map[string]any)
	}
	s.Artifacts[name] = value
}

// SetMetadata stores a metadata entry.
func (s *WorkflowState) SetMetadata(key string, value any) {
	if s.Metadata == nil {
		s.Metadata = make(map[string]any)
	}
	s.Metadata[key] = value
}

// ErrorMessage returns metadata["error"] as a string.
func (s *WorkflowState) ErrorMessage() string {
	if v, ok := s.Metadata["error"].(string); ok {
		return v
	}
	return ""
}

// Clone returns a deep copy. Snapshots handed to stream consumers and
// checkpoint stores are clones, so later turns never mutate them.
func (s *WorkflowState) Clone() *WorkflowState {
	if s == nil {
		return nil
	}
	c := *s
	c.Messages = make([]types.Message, len(s.Messages))
	for i, m := range s.Messages {
		m.Metadata = cloneMap(m.Metadata)
		m.ToolCalls = slices.Clone(m.ToolCalls)
		c.Messages[i] = m
	}
	c.Artifacts = cloneMap(s.Artifacts)
	c.Metadata = cloneMap(s.Metadata)
	if s.Handoff != nil {
		h := *s.Handoff
		c.Handoff = &h
	}
	return &c
}

// Summary returns a one-line description used in logs.
func (s *WorkflowState) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "status=%s step=%d messages=%d", s.Status, s.Step, len(s.Messages))
	if s.ActiveAgent != "" {
		fmt.Fprintf(&b, " active=%s", s.ActiveAgent)
	}
	return b.String()
}

// Marshal serializes the state to JSON.
func (s *WorkflowState) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalState decodes a state produced by Marshal.
func UnmarshalState(data []byte) (*WorkflowState, error) {
	var s WorkflowState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode workflow state: %w", err)
	}
	return &s, nil
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return slices.Clone(t)
	default:
		return v
	}
}
