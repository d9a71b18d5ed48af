// Package event maps provider-specific inbox items into canonical inbound
// events. Normalization never fails: malformed payloads degrade to an event
// with an empty body instead of aborting the poll cycle.
package event

import (
	"encoding/json"
	"log/slog"
	"strings"

	"goatbot/internal/domain"
)

// Normalizer converts raw direct-inbox items into tagged InboundEvents.
type Normalizer struct {
	selfID string
	logger *slog.Logger
}

func NewNormalizer(selfID string, logger *slog.Logger) *Normalizer {
	return &Normalizer{selfID: selfID, logger: logger}
}

// Control items the bot has no use for. Dropped before dispatch.
var controlTypes = map[string]bool{
	"action_log":       true,
	"video_call_event": true,
	"placeholder":      true,
}

// Normalize returns the canonical event for one inbox item, or nil when the
// item is a self-authored echo or an unsupported control message.
func (n *Normalizer) Normalize(item domain.RawItem, thread domain.InboxThread) *domain.InboundEvent {
	if item.AuthorID == n.selfID {
		return nil
	}
	if controlTypes[item.Type] {
		return nil
	}

	ev := &domain.InboundEvent{
		ID:        domain.EventID(thread.ID, item.ID),
		SenderID:  item.AuthorID,
		ThreadID:  thread.ID,
		Timestamp: item.Timestamp,
		IsGroup:   thread.IsGroup,
		Raw:       item.Payload,
	}

	switch item.Type {
	case "", "text":
		ev.Kind = domain.EventText
		ev.Body = item.Text

	case "link":
		ev.Kind = domain.EventText
		ev.Body = item.Text
		if ref, body := n.linkAttachment(item); ref != nil {
			ev.Attachments = append(ev.Attachments, *ref)
			if ev.Body == "" {
				ev.Body = body
			}
		}

	case "media", "media_share", "visual_media", "clip":
		ev.Kind = domain.EventMedia
		ev.Body = item.Text
		ev.Attachments = n.mediaAttachments(item)

	case "voice_media":
		ev.Kind = domain.EventMedia
		ev.Attachments = n.voiceAttachment(item)

	case "reaction", "like":
		ev.Kind = domain.EventReaction
		ev.Body = n.reactionEmoji(item)

	case "seen":
		ev.Kind = domain.EventRead

	case "delivery":
		ev.Kind = domain.EventDelivery

	default:
		// Unknown provider type: keep the event with an opaque
		// attachment so passive hooks still see it.
		ev.Kind = domain.EventMedia
		ev.Attachments = []domain.AttachmentRef{{
			Kind:     domain.AttachmentOther,
			Metadata: map[string]any{"provider_type": item.Type},
		}}
	}

	return ev
}

// mediaPayload mirrors the nesting the platform uses for media items:
// the interesting fields sit under the item's "media" key.
type mediaPayload struct {
	Media struct {
		MediaType      int `json:"media_type"`
		ImageVersions2 struct {
			Candidates []struct {
				URL string `json:"url"`
			} `json:"candidates"`
		} `json:"image_versions2"`
		VideoVersions []struct {
			URL string `json:"url"`
		} `json:"video_versions"`
	} `json:"media"`
}

func (n *Normalizer) mediaAttachments(item domain.RawItem) []domain.AttachmentRef {
	var p mediaPayload
	if err := json.Unmarshal(item.Payload, &p); err != nil {
		n.logger.Debug("malformed media payload", "item", item.ID, "err", err)
		return []domain.AttachmentRef{{Kind: domain.AttachmentOther}}
	}

	var refs []domain.AttachmentRef
	if len(p.Media.ImageVersions2.Candidates) > 0 {
		refs = append(refs, domain.AttachmentRef{
			Kind: domain.AttachmentPhoto,
			URL:  p.Media.ImageVersions2.Candidates[0].URL,
		})
	}
	if len(p.Media.VideoVersions) > 0 {
		refs = append(refs, domain.AttachmentRef{
			Kind: domain.AttachmentVideo,
			URL:  p.Media.VideoVersions[0].URL,
		})
	}
	if len(refs) == 0 {
		refs = append(refs, domain.AttachmentRef{Kind: domain.AttachmentOther})
	}
	return refs
}

type voicePayload struct {
	VoiceMedia struct {
		Media struct {
			Audio struct {
				AudioSrc string  `json:"audio_src"`
				Duration float64 `json:"duration"`
			} `json:"audio"`
		} `json:"media"`
	} `json:"voice_media"`
}

func (n *Normalizer) voiceAttachment(item domain.RawItem) []domain.AttachmentRef {
	var p voicePayload
	if err := json.Unmarshal(item.Payload, &p); err != nil {
		n.logger.Debug("malformed voice payload", "item", item.ID, "err", err)
		return []domain.AttachmentRef{{Kind: domain.AttachmentOther}}
	}
	audio := p.VoiceMedia.Media.Audio
	return []domain.AttachmentRef{{
		Kind:     domain.AttachmentAudio,
		URL:      audio.AudioSrc,
		Metadata: map[string]any{"duration": audio.Duration},
	}}
}

type linkPayload struct {
	Link struct {
		Text        string `json:"text"`
		LinkContext struct {
			LinkURL   string `json:"link_url"`
			LinkTitle string `json:"link_title"`
		} `json:"link_context"`
	} `json:"link"`
}

func (n *Normalizer) linkAttachment(item domain.RawItem) (*domain.AttachmentRef, string) {
	var p linkPayload
	if err := json.Unmarshal(item.Payload, &p); err != nil {
		n.logger.Debug("malformed link payload", "item", item.ID, "err", err)
		return nil, ""
	}
	if p.Link.LinkContext.LinkURL == "" {
		return nil, p.Link.Text
	}
	return &domain.AttachmentRef{
		Kind:     domain.AttachmentOther,
		URL:      p.Link.LinkContext.LinkURL,
		Metadata: map[string]any{"title": p.Link.LinkContext.LinkTitle},
	}, p.Link.Text
}

// Reaction items carry the emoji under "emoji"; legacy like items carry a
// bare string under "like".
type reactionPayload struct {
	Emoji  string `json:"emoji"`
	Like   string `json:"like"`
	ItemID string `json:"item_id"`
}

func (n *Normalizer) reactionEmoji(item domain.RawItem) string {
	var p reactionPayload
	if err := json.Unmarshal(item.Payload, &p); err != nil {
		return ""
	}
	if p.Emoji != "" {
		return strings.TrimSpace(p.Emoji)
	}
	return strings.TrimSpace(p.Like)
}
