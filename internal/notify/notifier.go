package notify

import (
	"context"
	"strings"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

// Notifier is what the workflow talks to. It never returns errors: every
// failure is logged and swallowed.
type Notifier struct {
	sink Sink
	log  *zap.Logger
}

// NewNotifier constructs a Notifier. A nil sink discards everything.
func NewNotifier(sink Sink, log *zap.Logger) *Notifier {
	return &Notifier{sink: sink, log: log}
}

// Notify hands one message to the sink.
func (n *Notifier) Notify(ctx context.Context, msg Message) {
	if n == nil || n.sink == nil {
		return
	}
	if err := n.sink.Send(ctx, msg); err != nil {
		n.log.Warn("notification not accepted",
			zap.String("kind", string(msg.Kind)),
			zap.String("to", msg.To),
			zap.String("afe_id", msg.Data.AFEID),
			zap.Error(err))
	}
}

// Broadcast sends msg to every recipient concurrently. Recipients are
// deduplicated case-insensitively and blanks are skipped.
func (n *Notifier) Broadcast(ctx context.Context, msg Message, recipients []string) {
	if n == nil || n.sink == nil {
		return
	}
	var wg conc.WaitGroup
	for _, to := range Dedupe(recipients) {
		m := msg
		m.To = to
		wg.Go(func() { n.Notify(ctx, m) })
	}
	wg.Wait()
}

// Dedupe trims, drops blanks and removes case-insensitive duplicates while
// keeping first-seen order.
func Dedupe(recipients []string) []string {
	seen := make(map[string]struct{}, len(recipients))
	out := make([]string, 0, len(recipients))
	for _, r := range recipients {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		key := strings.ToLower(r)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}
