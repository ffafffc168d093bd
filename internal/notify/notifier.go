// Package notify delivers analysis lifecycle messages to chat webhooks. Each
// message carries an event type, and the Notifier forwards only the event
// types the operator enabled.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/alanyoungcy/hrcsafety/internal/domain"
)

// Event types.
const (
	EventAnalysisCompleted = "analysis_completed"
	EventAnalysisFailed    = "analysis_failed"
)

// Level is the severity of a Message.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

// Message is one notification.
type Message struct {
	Title string
	Body  string
	Level Level
}

// Sender is a notification channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// Notifier fans a message out to every sender when its event type is enabled.
// It implements analysis.Listener.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list enables every event.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether event is forwarded.
func (n *Notifier) Enabled(event string) bool {
	return len(n.events) == 0 || n.events[event]
}

// Notify sends msg to all senders if event is enabled. A failing sender does
// not stop delivery to the others; their errors are joined.
func (n *Notifier) Notify(ctx context.Context, event string, msg Message) error {
	if !n.Enabled(event) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, msg); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// AnalysisCompleted announces a finished report.
func (n *Notifier) AnalysisCompleted(ctx context.Context, r domain.Report) {
	level := LevelInfo
	if len(r.Errors) > 0 || len(r.Unmatched) > 0 {
		level = LevelWarn
	}
	_ = n.Notify(ctx, EventAnalysisCompleted, Message{
		Title: fmt.Sprintf("Analysis of %s completed", r.Experiment),
		Body:  completedBody(r),
		Level: level,
	})
}

// AnalysisFailed announces an analysis that produced no report.
func (n *Notifier) AnalysisFailed(ctx context.Context, experiment string, err error) {
	_ = n.Notify(ctx, EventAnalysisFailed, Message{
		Title: fmt.Sprintf("Analysis of %s failed", experiment),
		Body:  err.Error(),
		Level: LevelError,
	})
}

func completedBody(r domain.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "report %s\n", r.ID)

	rows := append([]domain.MinDistanceRow(nil), r.MinDistances...)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].MinDistance > rows[j].MinDistance })
	for _, row := range rows {
		fmt.Fprintf(&b, "%s: min distance %.3f m\n", row.Label, row.MinDistance)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "failed %s: %s\n", e.Strategy, e.Error)
	}
	if len(r.Skipped) > 0 {
		fmt.Fprintf(&b, "%d run(s) skipped\n", len(r.Skipped))
	}
	if len(r.Unmatched) > 0 {
		fmt.Fprintf(&b, "%d unmatched recipe(s)\n", len(r.Unmatched))
	}
	return strings.TrimRight(b.String(), "\n")
}
