package event

import (
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"goatbot/internal/domain"
)

func testNormalizer() *Normalizer {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewNormalizer("self", logger)
}

func TestNormalize_TextMessage(t *testing.T) {
	n := testNormalizer()
	ts := time.Unix(1700000000, 0)

	ev := n.Normalize(
		domain.RawItem{ID: "m1", AuthorID: "u1", Type: "text", Text: "!ping arg", Timestamp: ts},
		domain.InboxThread{ID: "t1", IsGroup: true},
	)
	if ev == nil {
		t.Fatal("text item dropped")
	}
	if ev.Kind != domain.EventText {
		t.Errorf("kind = %v, want text", ev.Kind)
	}
	if ev.ID != "t1:m1" {
		t.Errorf("id = %q, want t1:m1", ev.ID)
	}
	if ev.Body != "!ping arg" || ev.SenderID != "u1" || ev.ThreadID != "t1" || !ev.IsGroup {
		t.Errorf("unexpected event: %+v", ev)
	}
	if !ev.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", ev.Timestamp, ts)
	}
}

func TestNormalize_SelfEchoDropped(t *testing.T) {
	n := testNormalizer()
	ev := n.Normalize(
		domain.RawItem{ID: "m1", AuthorID: "self", Type: "text", Text: "my reply"},
		domain.InboxThread{ID: "t1"},
	)
	if ev != nil {
		t.Errorf("self-authored echo should normalize to nil, got %+v", ev)
	}
}

func TestNormalize_ControlTypesDropped(t *testing.T) {
	n := testNormalizer()
	for _, typ := range []string{"action_log", "video_call_event", "placeholder"} {
		ev := n.Normalize(
			domain.RawItem{ID: "m1", AuthorID: "u1", Type: typ},
			domain.InboxThread{ID: "t1"},
		)
		if ev != nil {
			t.Errorf("control type %q should drop, got %+v", typ, ev)
		}
	}
}

func TestNormalize_MediaKinds(t *testing.T) {
	n := testNormalizer()

	tests := []struct {
		name     string
		itemType string
		payload  string
		wantKind domain.AttachmentKind
		wantURL  string
	}{
		{
			name:     "photo",
			itemType: "media",
			payload:  `{"media":{"media_type":1,"image_versions2":{"candidates":[{"url":"https://cdn/img.jpg"}]}}}`,
			wantKind: domain.AttachmentPhoto,
			wantURL:  "https://cdn/img.jpg",
		},
		{
			name:     "video",
			itemType: "media",
			payload:  `{"media":{"media_type":2,"video_versions":[{"url":"https://cdn/vid.mp4"}]}}`,
			wantKind: domain.AttachmentVideo,
			wantURL:  "https://cdn/vid.mp4",
		},
		{
			name:     "voice",
			itemType: "voice_media",
			payload:  `{"voice_media":{"media":{"audio":{"audio_src":"https://cdn/voice.m4a","duration":2.5}}}}`,
			wantKind: domain.AttachmentAudio,
			wantURL:  "https://cdn/voice.m4a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := n.Normalize(
				domain.RawItem{ID: "m1", AuthorID: "u1", Type: tt.itemType, Payload: json.RawMessage(tt.payload)},
				domain.InboxThread{ID: "t1"},
			)
			if ev == nil {
				t.Fatal("media item dropped")
			}
			if ev.Kind != domain.EventMedia {
				t.Errorf("kind = %v, want media", ev.Kind)
			}
			if len(ev.Attachments) == 0 {
				t.Fatal("no attachments")
			}
			if ev.Attachments[0].Kind != tt.wantKind {
				t.Errorf("attachment kind = %v, want %v", ev.Attachments[0].Kind, tt.wantKind)
			}
			if ev.Attachments[0].URL != tt.wantURL {
				t.Errorf("attachment url = %q, want %q", ev.Attachments[0].URL, tt.wantURL)
			}
		})
	}
}

func TestNormalize_MalformedPayloadDegrades(t *testing.T) {
	n := testNormalizer()
	ev := n.Normalize(
		domain.RawItem{ID: "m1", AuthorID: "u1", Type: "media", Payload: json.RawMessage(`{broken`)},
		domain.InboxThread{ID: "t1"},
	)
	if ev == nil {
		t.Fatal("malformed payload must degrade, not drop")
	}
	if ev.Body != "" {
		t.Errorf("body = %q, want empty", ev.Body)
	}
	if len(ev.Attachments) != 1 || ev.Attachments[0].Kind != domain.AttachmentOther {
		t.Errorf("attachments = %+v, want single other", ev.Attachments)
	}
}

func TestNormalize_UnknownTypeMapsToOther(t *testing.T) {
	n := testNormalizer()
	ev := n.Normalize(
		domain.RawItem{ID: "m1", AuthorID: "u1", Type: "animated_media", Payload: json.RawMessage(`{"x":1}`)},
		domain.InboxThread{ID: "t1"},
	)
	if ev == nil {
		t.Fatal("unknown type must not drop")
	}
	if len(ev.Attachments) != 1 || ev.Attachments[0].Kind != domain.AttachmentOther {
		t.Fatalf("attachments = %+v, want single other", ev.Attachments)
	}
	if ev.Attachments[0].Metadata["provider_type"] != "animated_media" {
		t.Errorf("metadata = %v, want provider_type preserved", ev.Attachments[0].Metadata)
	}
	if string(ev.Raw) != `{"x":1}` {
		t.Errorf("raw payload not preserved: %s", ev.Raw)
	}
}

func TestNormalize_ReactionAndReceipts(t *testing.T) {
	n := testNormalizer()

	ev := n.Normalize(
		domain.RawItem{ID: "m1", AuthorID: "u1", Type: "reaction", Payload: json.RawMessage(`{"emoji":"❤️","item_id":"m0"}`)},
		domain.InboxThread{ID: "t1"},
	)
	if ev == nil || ev.Kind != domain.EventReaction || ev.Body != "❤️" {
		t.Errorf("reaction event = %+v", ev)
	}

	ev = n.Normalize(domain.RawItem{ID: "m2", AuthorID: "u1", Type: "seen"}, domain.InboxThread{ID: "t1"})
	if ev == nil || ev.Kind != domain.EventRead {
		t.Errorf("seen event = %+v", ev)
	}

	ev = n.Normalize(domain.RawItem{ID: "m3", AuthorID: "u1", Type: "delivery"}, domain.InboxThread{ID: "t1"})
	if ev == nil || ev.Kind != domain.EventDelivery {
		t.Errorf("delivery event = %+v", ev)
	}
}

func TestNormalize_LinkShare(t *testing.T) {
	n := testNormalizer()
	ev := n.Normalize(
		domain.RawItem{
			ID: "m1", AuthorID: "u1", Type: "link",
			Payload: json.RawMessage(`{"link":{"text":"look at this","link_context":{"link_url":"https://example.com","link_title":"Example"}}}`),
		},
		domain.InboxThread{ID: "t1"},
	)
	if ev == nil || ev.Kind != domain.EventText {
		t.Fatalf("link event = %+v", ev)
	}
	if ev.Body != "look at this" {
		t.Errorf("body = %q", ev.Body)
	}
	if len(ev.Attachments) != 1 || ev.Attachments[0].URL != "https://example.com" {
		t.Errorf("attachments = %+v", ev.Attachments)
	}
}
