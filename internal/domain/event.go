package domain

import (
	"encoding/json"
	"time"
)

// EventKind tags a normalized inbound event. The kind is decided once by the
// normalizer so downstream code never probes for optional fields.
type EventKind string

const (
	EventText     EventKind = "text"
	EventMedia    EventKind = "media"
	EventReaction EventKind = "reaction"
	EventRead     EventKind = "read"
	EventDelivery EventKind = "delivery"
)

// AttachmentKind classifies an attachment descriptor.
type AttachmentKind string

const (
	AttachmentPhoto AttachmentKind = "photo"
	AttachmentVideo AttachmentKind = "video"
	AttachmentAudio AttachmentKind = "audio"
	AttachmentFile  AttachmentKind = "file"
	AttachmentOther AttachmentKind = "other"
)

// AttachmentRef is an opaque pointer to remote media. The bot never
// re-fetches attachment content; handlers get the URL and metadata as-is.
type AttachmentRef struct {
	Kind     AttachmentKind `json:"kind"`
	URL      string         `json:"url,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// EventID builds the stable dedup key for an inbox item. Item IDs are only
// unique within a thread, so the thread ID is part of the key.
func EventID(threadID, itemID string) string {
	return threadID + ":" + itemID
}

// InboundEvent is the canonical event delivered to the dispatcher.
// Immutable after creation; identity is ID (the dedup key).
type InboundEvent struct {
	ID          string
	Kind        EventKind
	SenderID    string
	ThreadID    string
	Body        string
	Attachments []AttachmentRef
	Timestamp   time.Time
	IsGroup     bool
	Raw         json.RawMessage
}
