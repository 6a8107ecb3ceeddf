package agent

// HandoffSignal is a structured request from the agent that just ran to pass
// control to Target. The router honors at most one signal per turn and clears
// it once it has been acted on.
type HandoffSignal struct {
	Target string `json:"target"`
	Reason string `json:"reason,omitempty"`
	From   string `json:"from,omitempty"`
}

// RequestHandoff records a pending handoff on the state.
func (s *WorkflowState) RequestHandoff(from, target, reason string) {
	s.Handoff = &HandoffSignal{Target: target, Reason: reason, From: from}
}

// ClearHandoff drops any pending handoff.
func (s *WorkflowState) ClearHandoff() {
	s.Handoff = nil
}
