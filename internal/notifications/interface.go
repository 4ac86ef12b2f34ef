// Package notifications delivers dispatched alerts to operators.
package notifications

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ducminhle1904/trade-guard/internal/alerts"
)

var (
	_ alerts.Channel = (*TelegramChannel)(nil)
	_ alerts.Channel = (*WebsocketHub)(nil)
	_ alerts.Channel = (*LogChannel)(nil)
)

// FormatAlert renders an alert as a Markdown message
func FormatAlert(a alerts.Alert) string {
	emoji := "ℹ️"
	switch a.Priority {
	case alerts.PriorityMedium:
		emoji = "🔔"
	case alerts.PriorityHigh:
		emoji = "⚠️"
	case alerts.PriorityCritical:
		emoji = "🚨"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s* [%s/%s]\n\n%s", emoji, a.Title, a.Category, a.Priority, a.Message)

	if len(a.Metadata) > 0 {
		keys := make([]string, 0, len(a.Metadata))
		for k := range a.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "\n• %s: %s", k, a.Metadata[k])
		}
	}
	return b.String()
}
