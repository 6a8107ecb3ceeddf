package workflow

import (
	"fmt"
	"strings"

	"github.com/BaSui01/agentrelay/agent"
	"github.com/BaSui01/agentrelay/internal/tokenizer"
)

const summaryExcerpt = 80

// Summarizer renders the short input/output descriptions attached to step
// traces: message count, token estimate and an excerpt of the latest message.
type Summarizer struct {
	counter tokenizer.Counter
}

// NewSummarizer creates a Summarizer counting tokens with the given encoding
// ("estimator", "cl100k_base", "o200k_base", ...).
func NewSummarizer(encoding string) *Summarizer {
	return &Summarizer{counter: tokenizer.New(encoding)}
}

// Input summarizes the state an agent is about to receive.
func (s *Summarizer) Input(state *agent.WorkflowState) string {
	return s.describe(state, 0)
}

// Output summarizes what a turn added. before is the message count when the
// turn started.
func (s *Summarizer) Output(state *agent.WorkflowState, before int) string {
	return s.describe(state, before)
}

func (s *Summarizer) describe(state *agent.WorkflowState, from int) string {
	if from > len(state.Messages) {
		from = len(state.Messages)
	}
	msgs := state.Messages[from:]
	tokens := s.counter.CountMessages(msgs)

	var b strings.Builder
	if from == 0 {
		fmt.Fprintf(&b, "%d messages, ~%d tokens", len(msgs), tokens)
	} else {
		fmt.Fprintf(&b, "+%d messages, ~%d tokens", len(msgs), tokens)
	}
	if len(msgs) > 0 {
		last := msgs[len(msgs)-1]
		fmt.Fprintf(&b, ", last[%s]: %q", last.Role, truncate(oneLine(last.Content), summaryExcerpt))
	}
	if state.Handoff != nil {
		fmt.Fprintf(&b, ", handoff -> %s", state.Handoff.Target)
	}
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
