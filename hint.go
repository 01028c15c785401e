package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// hintTimeout bounds the key-information extraction call. The hint is an
// optional routing aid, so it gets a tighter budget than the classifier.
const hintTimeout = 15 * time.Second

// ExtractHint asks the backend for a short summary of the query and recent
// history that helps the classifier route. Best-effort: any failure returns
// an empty hint, never an error.
func ExtractHint(ctx context.Context, backend Backend, query string, history []Turn, logger *slog.Logger) string {
	if logger == nil {
		logger = nopLogger
	}
	ctx, cancel := context.WithTimeout(ctx, hintTimeout)
	defer cancel()

	var hist strings.Builder
	start := 0
	if len(history) > maxHistoryTurns {
		start = len(history) - maxHistoryTurns
	}
	for _, t := range history[start:] {
		fmt.Fprintf(&hist, "[%s]: %s\n", t.Role, t.Content)
	}

	system := fmt.Sprintf(`Analyze the user's input and chat history to extract key information for routing purposes.
Provide a concise summary that helps determine the most appropriate provider.

Focus on:
1. Main topic or subject area (e.g. math, coding, general knowledge, scheduling)
2. User's intent (seeking information, requesting a tutorial, scheduling an event)
3. Specific requirements or constraints mentioned
4. Any indication of ongoing conversations or previous provider interactions

Do NOT answer the query. Provide only a brief, structured summary of the key routing points.

Chat history:
%s`, hist.String())

	resp, err := backend.Complete(ctx, []ChatMessage{SystemMessage(system), UserMessage(query)})
	if err != nil {
		logger.Warn("hint extraction failed, routing without context", "error", err)
		return ""
	}
	return strings.TrimSpace(resp.Text)
}
