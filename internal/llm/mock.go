package llm

import (
	"context"

	"github.com/fdezr/frontdesk/internal/conversation"
)

// Mock returns canned replies and extractions for tests.
type Mock struct {
	Reply      string
	ReplyErr   error
	Fields     map[string]string
	ExtractErr error

	ReplyCalls   int
	ExtractCalls int
}

func (m *Mock) DraftReply(_ context.Context, _ ReplyContext) (string, error) {
	m.ReplyCalls++
	if m.ReplyErr != nil {
		return "", m.ReplyErr
	}
	return m.Reply, nil
}

func (m *Mock) ExtractFields(_ context.Context, _ []conversation.Turn, wanted []string) (map[string]string, error) {
	m.ExtractCalls++
	if m.ExtractErr != nil {
		return nil, m.ExtractErr
	}
	out := make(map[string]string)
	for _, f := range wanted {
		if v, ok := m.Fields[f]; ok {
			out[f] = CleanField(f, v)
		}
	}
	return out, nil
}
