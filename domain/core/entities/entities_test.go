package entities

import (
	"testing"
	"time"

	apperrors "github.com/VadimShubkin/ii/pkg/errors"
)

func TestKindOfURI(t *testing.T) {
	tests := []struct {
		uri    string
		want   Kind
		wantOK bool
	}{
		{TopicURI("Луна"), KindTopic, true},
		{ItemsRangeURI("1.0001", "1.0010"), KindItemsRange, true},
		{RecordURI("2015-05-02"), KindRecord, true},
		{"unknown:thing", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, ok := KindOfURI(tt.uri)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("KindOfURI(%q) = %v, %v; want %v, %v", tt.uri, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestNewTopic(t *testing.T) {
	topic, err := NewTopic("  moon  ")
	if err != nil {
		t.Fatalf("NewTopic() error = %v", err)
	}
	if topic.Name() != "moon" {
		t.Errorf("Name = %q, want trimmed name", topic.Name())
	}
	if topic.URI() != TopicURI("moon") {
		t.Errorf("URI = %q", topic.URI())
	}

	if _, err := NewTopic("   "); !apperrors.IsValidation(err) {
		t.Errorf("blank name error = %v, want validation error", err)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	rng, _ := NewItemsRange("1.0001", "1.0020", "intro")
	rec, _ := NewRecord(RecordParams{Code: "r-1", Name: "Lecture", RecordedAt: time.Date(2015, 5, 2, 0, 0, 0, 0, time.UTC)})

	for _, uid := range []UID{rng, rec} {
		back, err := FromSnapshot(uid.Snapshot())
		if err != nil {
			t.Fatalf("FromSnapshot(%s) error = %v", uid.URI(), err)
		}
		if back.URI() != uid.URI() || back.Kind() != uid.Kind() || back.Title() != uid.Title() {
			t.Errorf("round trip of %s changed identity: got %s/%s/%s", uid.URI(), back.URI(), back.Kind(), back.Title())
		}
	}

	if _, err := FromSnapshot(Snapshot{URI: "x", Kind: "planet"}); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestItemsRange_SetDescription(t *testing.T) {
	rng, _ := NewItemsRange("1", "2", "")
	if rng.Title() != "1 - 2" {
		t.Errorf("Title = %q, want span", rng.Title())
	}
	if !rng.SetDescription("first") {
		t.Error("expected change")
	}
	if rng.SetDescription("first") {
		t.Error("same description should not report a change")
	}
	if rng.URI() != ItemsRangeURI("1", "2") {
		t.Error("description must not change identity")
	}
}

func TestNewLink(t *testing.T) {
	a, b := TopicURI("a"), TopicURI("b")

	tests := []struct {
		name    string
		kind    LinkKind
		a, b    string
		wantErr func(error) bool
	}{
		{"valid hierarchy", LinkKindHierarchy, a, b, nil},
		{"self loop", LinkKindRelated, a, a, apperrors.IsSelfReferential},
		{"unknown kind", LinkKind("sibling"), a, b, apperrors.IsValidation},
		{"missing endpoint", LinkKindResource, a, "", apperrors.IsValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link, err := NewLink(tt.kind, tt.a, tt.b, LinkOptions{})
			if tt.wantErr != nil {
				if !tt.wantErr(err) {
					t.Errorf("NewLink() error = %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewLink() error = %v", err)
			}
			if link.ID() == "" {
				t.Error("link id must be assigned")
			}
			if !link.IsChildOf(b, a) {
				t.Error("hierarchy link should make b a child of a")
			}
		})
	}
}

func TestLink_Reassign(t *testing.T) {
	a, b, c := TopicURI("a"), TopicURI("b"), TopicURI("c")
	link, _ := NewLink(LinkKindHierarchy, a, b, LinkOptions{})

	if err := link.Reassign(a, c); err != nil {
		t.Fatalf("Reassign() error = %v", err)
	}
	if !link.IsChildOf(b, c) {
		t.Error("parent side should now be c")
	}
	if err := link.Reassign(c, b); !apperrors.IsSelfReferential(err) {
		t.Errorf("Reassign onto other endpoint error = %v", err)
	}
	if err := link.Reassign(a, c); !apperrors.IsNotFound(err) {
		t.Errorf("Reassign of missing endpoint error = %v", err)
	}
	if link.Other(b) != c || link.Other("zzz") != "" {
		t.Error("Other() returned wrong endpoint")
	}
}
