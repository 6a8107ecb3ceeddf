package handoff

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTransfer(t *testing.T) {
	known := func(n string) bool { return n == "Architect" || n == "QA-Lead" }

	tests := []struct {
		name    string
		content string
		want    TextTransfer
		ok      bool
	}{
		{"plain", "transfer_to_Architect: needs design", TextTransfer{"Architect", "needs design"}, true},
		{"embedded", "Done planning.\ntransfer_to_Architect: review\nthanks", TextTransfer{"Architect", "review"}, true},
		{"no reason", "please transfer_to_Architect now", TextTransfer{"Architect", ""}, true},
		{"dash name", "transfer_to_QA-Lead: test it", TextTransfer{"QA-Lead", "test it"}, true},
		{"skips unknown", "transfer_to_Ghost: x then transfer_to_Architect: y", TextTransfer{"Architect", "y"}, true},
		{"unknown only", "transfer_to_Ghost: x", TextTransfer{}, false},
		{"none", "nothing to see", TextTransfer{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTransfer(tt.content, known)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTransfer_NilKnownAcceptsAll(t *testing.T) {
	got, ok := ParseTransfer("transfer_to_Anyone: go", nil)
	assert.True(t, ok)
	assert.Equal(t, "Anyone", got.Target)
}

func TestIsCompletion(t *testing.T) {
	assert.True(t, IsCompletion("all done. TASK COMPLETE"))
	assert.True(t, IsCompletion("COMPLETED"))
	assert.False(t, IsCompletion("task complete"))
	assert.False(t, IsCompletion("still working"))
}

func TestConfirmationMatchesParser(t *testing.T) {
	got, ok := ParseTransfer(Confirmation("Architect", "  needs design "), nil)
	assert.True(t, ok)
	assert.Equal(t, TextTransfer{"Architect", "needs design"}, got)
}
