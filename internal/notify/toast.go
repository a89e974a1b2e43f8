// Package notify surfaces operator alerts for conditions that need a human
// -- chiefly a blocked task no advisor suggestion resolved (spec §4.5).
package notify

import (
	"fmt"
	"runtime"

	"github.com/go-toast/toast"
)

// Notifier emits desktop toast alerts. Only supported on Windows; elsewhere
// calls are accepted and silently skipped rather than erroring, since a
// missing notifier should never block coordination.
type Notifier struct {
	appID       string
	dashboardURL string
}

// NewNotifier builds a Notifier. dashboardURL is the link a clicked toast
// opens, typically the control protocol's live-status feed host.
func NewNotifier(dashboardURL string) *Notifier {
	if dashboardURL == "" {
		dashboardURL = "http://localhost:8090"
	}
	return &Notifier{appID: "marcus", dashboardURL: dashboardURL}
}

// NotifyBlocker alerts the operator that a task is blocked and, if present,
// the advisor's suggested fix.
func (n *Notifier) NotifyBlocker(projectID, taskID, description, suggestion string) error {
	if runtime.GOOS != "windows" {
		return nil
	}

	message := fmt.Sprintf("%s/%s: %s", projectID, taskID, description)
	if suggestion != "" {
		message += "\nsuggestion: " + suggestion
	}

	notification := toast.Notification{
		AppID:   n.appID,
		Title:   "Task blocked",
		Message: message,
		Audio:   toast.IM,
		Actions: []toast.Action{
			{Type: "protocol", Label: "Open status feed", Arguments: n.dashboardURL},
		},
	}
	return notification.Push()
}

// NotifyReconciliation alerts the operator about an orphan or stale-lease
// recovery the reconciler performed, for visibility into otherwise-silent
// corrective action.
func (n *Notifier) NotifyReconciliation(projectID, taskID, reason string) error {
	if runtime.GOOS != "windows" {
		return nil
	}

	notification := toast.Notification{
		AppID:   n.appID,
		Title:   "Reconciliation action",
		Message: fmt.Sprintf("%s/%s: %s", projectID, taskID, reason),
		Audio:   toast.Default,
		Actions: []toast.Action{
			{Type: "protocol", Label: "Open status feed", Arguments: n.dashboardURL},
		},
	}
	return notification.Push()
}

// IsSupported reports whether this platform can actually display toasts.
func (n *Notifier) IsSupported() bool {
	return runtime.GOOS == "windows"
}
