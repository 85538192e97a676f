package mqtt

import "strings"

// DefaultTopicPrefix is used when the configuration leaves topic_prefix empty.
const DefaultTopicPrefix = "defuse"

// Event kinds published under {prefix}/event/{kind}.
const (
	EventState  = "state"
	EventStrike = "strike"
	EventSolved = "solved"
	EventTime   = "time"
)

// Topics builds the defuse topic tree under a configurable prefix.
//
//	topics := mqtt.NewTopics("defuse")
//	topics.State()             // defuse/state
//	topics.Event(mqtt.EventStrike) // defuse/event/strike
type Topics struct {
	prefix string
}

// NewTopics returns a topic builder rooted at prefix. Trailing slashes are
// trimmed and an empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the root of the topic tree.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// State is the retained game snapshot topic.
func (t Topics) State() string {
	return t.Prefix() + "/state"
}

// Event returns the topic for one event kind.
func (t Topics) Event(kind string) string {
	return t.Prefix() + "/event/" + kind
}

// AllEvents matches every event topic.
func (t Topics) AllEvents() string {
	return t.Prefix() + "/event/+"
}

// Health is the retained online/offline topic, also used as the LWT.
func (t Topics) Health() string {
	return t.Prefix() + "/health"
}

// Command is where operator consoles send game commands.
func (t Topics) Command() string {
	return t.Prefix() + "/command"
}

// CommandAck carries the result of each operator command.
func (t Topics) CommandAck() string {
	return t.Prefix() + "/command/ack"
}

// Module returns the retained per-module record topic.
//
// Example: defuse/module/0x201
func (t Topics) Module(addr string) string {
	return t.Prefix() + "/module/" + addr
}

// All matches the whole tree. Use with caution.
func (t Topics) All() string {
	return t.Prefix() + "/#"
}
