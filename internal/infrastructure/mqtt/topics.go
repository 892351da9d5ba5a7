package mqtt

import "strings"

// DefaultTopicPrefix is used when the configured prefix is empty.
const DefaultTopicPrefix = "wesmun"

// Topics builds topic names under a common prefix.
//
//	topics := mqtt.NewTopics("wesmun")
//	topics.Event("audit.user_login") // "wesmun/events/audit.user_login"
type Topics struct {
	prefix string
}

// NewTopics creates a topic builder. Trailing slashes are trimmed.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the topic prefix.
func (t Topics) Prefix() string {
	return t.prefix
}

// SystemStatus returns the retained online/offline status topic.
//
// Example: wesmun/system/status
func (t Topics) SystemStatus() string {
	return t.prefix + "/system/status"
}

// Event returns the topic for one event type.
//
// Example: wesmun/events/audit.nfc_scan
func (t Topics) Event(eventType string) string {
	return t.prefix + "/events/" + eventType
}

// AllEvents returns the wildcard subscription covering every event.
//
// Example: wesmun/events/#
func (t Topics) AllEvents() string {
	return t.prefix + "/events/#"
}
