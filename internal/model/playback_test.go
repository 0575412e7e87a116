package model

import (
	"testing"
	"time"
)

func queueOf(ids ...string) []QueueItem {
	items := make([]QueueItem, len(ids))
	for i, id := range ids {
		items[i] = QueueItem{QueueItemID: "qi-" + id, Position: i, Track: Track{ID: id}}
	}
	return items
}

func TestPlaybackApplyKeepsAbsentFields(t *testing.T) {
	queue := queueOf("t1", "t2", "t3")
	state := PlaybackState{Index: 2, OffsetMs: 500, IsPlaying: false}

	playing := true
	state.Apply(PlaybackPatch{IsPlaying: &playing}, queue, time.UnixMilli(1000))
	state.Clamp(queue)

	if state.Index != 2 || state.OffsetMs != 500 || !state.IsPlaying {
		t.Fatalf("state = %+v, want index 2 offset 500 playing", state)
	}
	if state.TrackID != "t3" {
		t.Fatalf("TrackID = %q, want %q", state.TrackID, "t3")
	}
	if state.UpdatedAt != 1000 {
		t.Fatalf("UpdatedAt = %d, want 1000", state.UpdatedAt)
	}
}

func TestPlaybackApplyTrackIDMovesIndex(t *testing.T) {
	queue := queueOf("t1", "t2", "t3")
	state := PlaybackState{}

	track := "t2"
	state.Apply(PlaybackPatch{TrackID: &track}, queue, time.Now())

	if state.Index != 1 {
		t.Fatalf("Index = %d, want 1", state.Index)
	}
}

func TestPlaybackClamp(t *testing.T) {
	tests := []struct {
		name  string
		queue []QueueItem
		in    PlaybackState
		want  PlaybackState
	}{
		{
			name:  "empty queue stops playback",
			queue: nil,
			in:    PlaybackState{Index: 3, OffsetMs: 900, IsPlaying: true, TrackID: "x"},
			want:  PlaybackState{},
		},
		{
			name:  "index past end moves to last",
			queue: queueOf("t1", "t2"),
			in:    PlaybackState{Index: 5, OffsetMs: 900, IsPlaying: true},
			want:  PlaybackState{Index: 1, OffsetMs: 0, IsPlaying: true, TrackID: "t2"},
		},
		{
			name:  "valid index derives track",
			queue: queueOf("t1", "t2"),
			in:    PlaybackState{Index: 0, OffsetMs: 40},
			want:  PlaybackState{Index: 0, OffsetMs: 40, TrackID: "t1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in
			got.Clamp(tt.queue)
			if got != tt.want {
				t.Fatalf("Clamp() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestElapsedAtExtrapolates(t *testing.T) {
	start := time.UnixMilli(10_000)
	state := PlaybackState{Index: 1, OffsetMs: 0, IsPlaying: true, UpdatedAt: start.UnixMilli()}

	got := state.ElapsedAt(start.Add(4 * time.Second))
	if got != 4000 {
		t.Fatalf("ElapsedAt() = %d, want 4000", got)
	}

	state.IsPlaying = false
	if got := state.ElapsedAt(start.Add(4 * time.Second)); got != 0 {
		t.Fatalf("paused ElapsedAt() = %d, want 0", got)
	}
}

func TestParseRole(t *testing.T) {
	if got := ParseRole("host"); got != RoleHost {
		t.Fatalf("ParseRole(host) = %q", got)
	}
	for _, in := range []string{"", "guest", "HOST", "admin"} {
		if got := ParseRole(in); got != RoleGuest {
			t.Fatalf("ParseRole(%q) = %q, want guest", in, got)
		}
	}
}
