package handoff

import (
	"regexp"
	"strings"

	"github.com/BaSui01/agentrelay/types"
)

// Completion markers recognized in free text.
var completionMarkers = []string{"TASK COMPLETE", "COMPLETED"}

var transferPattern = regexp.MustCompile(`transfer_to_([A-Za-z0-9_\-]+)`)

// TextTransfer is a transfer request recognized in message text.
type TextTransfer struct {
	Target string
	Reason string
}

// ParseTransfer returns the first transfer_to_<Name> marker in content whose
// name satisfies known. A nil known accepts every name.
func ParseTransfer(content string, known func(name string) bool) (TextTransfer, bool) {
	for _, loc := range transferPattern.FindAllStringSubmatchIndex(content, -1) {
		name := content[loc[2]:loc[3]]
		if known != nil && !known(name) {
			continue
		}
		return TextTransfer{Target: name, Reason: reasonAfter(content[loc[1]:])}, true
	}
	return TextTransfer{}, false
}

// reasonAfter extracts ": reason" up to the end of the line.
func reasonAfter(rest string) string {
	rest = strings.TrimLeft(rest, " ")
	if !strings.HasPrefix(rest, ":") {
		return ""
	}
	rest = rest[1:]
	if i := strings.IndexByte(rest, '\n'); i >= 0 {
		rest = rest[:i]
	}
	return strings.TrimSpace(rest)
}

// IsCompletion reports whether content carries a completion marker.
func IsCompletion(content string) bool {
	for _, m := range completionMarkers {
		if strings.Contains(content, m) {
			return true
		}
	}
	return false
}

// MessageTransfer parses a transfer marker from msg.
func MessageTransfer(msg types.Message, known func(string) bool) (TextTransfer, bool) {
	return ParseTransfer(msg.Content, known)
}

// MessageCompletes reports whether msg carries a completion marker.
func MessageCompletes(msg types.Message) bool {
	return IsCompletion(msg.Content)
}
