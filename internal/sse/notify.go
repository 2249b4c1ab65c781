package sse

import (
	"github.com/montagehq/montage-engine/internal/asset"
	"github.com/montagehq/montage-engine/internal/chat"
	"github.com/montagehq/montage-engine/internal/manifest"
)

// Notifier adapts the broker to the notifier interfaces of the job poller,
// the export service, and the chat bridge. Every method is a non-blocking
// publish.
type Notifier struct {
	broker *Broker
}

func NewNotifier(broker *Broker) *Notifier {
	return &Notifier{broker: broker}
}

func (n *Notifier) JobUpdated(job *asset.Job) {
	n.broker.Publish(Event{Type: EventJobStatus, Data: job})
}

func (n *Notifier) AssetCreated(a *asset.Asset) {
	n.broker.Publish(Event{Type: EventAssetCreated, Data: a})
}

func (n *Notifier) ExportDone(job *asset.Job) {
	n.broker.Publish(Event{Type: EventExportDone, Data: job})
}

func (n *Notifier) ChatDelta(projectID, content string) {
	n.broker.Publish(Event{Type: EventChatDelta, Data: map[string]interface{}{
		"project_id": projectID,
		"content":    content,
	}})
}

func (n *Notifier) ChatTool(projectID string, tc chat.ToolCall) {
	n.broker.Publish(Event{Type: EventChatTool, Data: map[string]interface{}{
		"project_id": projectID,
		"tool_call":  tc,
	}})
}

func (n *Notifier) ChatMessage(projectID string, m chat.Message) {
	n.broker.Publish(Event{Type: EventChatMessage, Data: map[string]interface{}{
		"project_id": projectID,
		"message":    m,
	}})
}

// ManifestUpdated publishes the new manifest revision; wired to the store's
// change listener.
func (n *Notifier) ManifestUpdated(projectID string, m *manifest.Manifest, revision uint64) {
	n.broker.Publish(Event{Type: EventManifestUpdated, Data: map[string]interface{}{
		"project_id": projectID,
		"manifest":   m,
		"revision":   revision,
	}})
}
