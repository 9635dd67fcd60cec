package sim

import (
	"testing"

	"github.com/panelsim/panelsim/internal/genai"
)

func TestFeedRecentKeepsNewest(t *testing.T) {
	f := NewFeed(3)
	for i := 0; i < 5; i++ {
		f.Publish(EventLog, i)
	}

	got := f.Recent(10)
	if len(got) != 3 {
		t.Fatalf("Recent() = %d events, want 3", len(got))
	}
	if got[0].Data != 2 || got[2].Data != 4 {
		t.Errorf("Recent() = %v, want oldest 2, newest 4", got)
	}
}

func TestFeedSubscriberReceivesEvents(t *testing.T) {
	f := NewFeed(8)
	ch := f.Subscribe()
	defer f.Unsubscribe(ch)

	f.Publish(EventStatus, "casting")
	ev := <-ch
	if ev.Kind != EventStatus || ev.Data != "casting" {
		t.Errorf("event = %+v", ev)
	}
}

func TestFeedCloseReleasesSubscribers(t *testing.T) {
	f := NewFeed(8)
	ch := f.Subscribe()
	f.Close()

	if _, open := <-ch; open {
		t.Error("subscriber channel still open after Close")
	}
	// Publishing after close must not panic.
	f.Publish(EventLog, "late")
}

func TestFeedSlowSubscriberDoesNotBlock(t *testing.T) {
	f := NewFeed(8)
	ch := f.Subscribe()
	defer f.Unsubscribe(ch)

	// Overflow the subscriber buffer; Publish must stay non-blocking.
	for i := 0; i < 200; i++ {
		f.Publish(EventLog, i)
	}
	if got := len(f.Recent(500)); got != 8 {
		t.Errorf("ring kept %d events, want 8", got)
	}
}

func TestMeterTracksTiers(t *testing.T) {
	m := NewMeter()
	m.Add(genai.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}, genai.TierOrganizer)
	m.Add(genai.Usage{InputTokens: 4, OutputTokens: 2, TotalTokens: 6}, genai.TierWorker)
	m.Add(genai.Usage{InputTokens: 4, OutputTokens: 2, TotalTokens: 6}, genai.TierWorker)

	got := m.Total()
	if got.APICalls != 3 || got.TotalTokens != 27 {
		t.Errorf("total = %+v", got)
	}
	if got.OrganizerInputTokens != 10 || got.WorkerOutputTokens != 4 {
		t.Errorf("tier split = %+v", got)
	}
}
