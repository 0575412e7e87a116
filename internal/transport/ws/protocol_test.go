package ws

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseAnnounceAcceptsJamIDAndNumericUser(t *testing.T) {
	msg, err := Parse([]byte(`{"type":"announce","jamId":"jam-1","userId":42,"name":"  Ann ","role":"host"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	a, ok := msg.(Announce)
	if !ok {
		t.Fatalf("message = %T, want Announce", msg)
	}
	if a.SessionID != "jam-1" {
		t.Fatalf("session = %q, want %q", a.SessionID, "jam-1")
	}
	if a.UserID != "42" {
		t.Fatalf("user = %q, want %q", a.UserID, "42")
	}
	if a.Name != "Ann" {
		t.Fatalf("name = %q, want %q", a.Name, "Ann")
	}
}

func TestParseLegacyQueueWithNestedTracks(t *testing.T) {
	raw := `{
		"type":"queue","sessionId":"jam-1","position":1,"version":3,
		"queue":[
			{"position":0,"queue_item_id":"q1","track":{"id":"t1","name":"One","artist":{"id":"a1","name":"Band"},"album_cover":"c.jpg","duration":180}},
			{"id":"t2","artist":"Solo"}
		]
	}`
	msg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	snap, ok := msg.(QueueSnapshot)
	if !ok {
		t.Fatalf("message = %T, want QueueSnapshot", msg)
	}
	if snap.Version != 3 {
		t.Fatalf("version = %d, want 3", snap.Version)
	}
	if snap.Index == nil || *snap.Index != 1 {
		t.Fatalf("index = %v, want 1", snap.Index)
	}
	if len(snap.Tracks) != 2 {
		t.Fatalf("tracks = %d, want 2", len(snap.Tracks))
	}
	first := snap.Tracks[0]
	if first.QueueItemID != "q1" || first.Track.ArtistID != "a1" || first.Track.Artist != "Band" || first.Track.AlbumCover != "c.jpg" {
		t.Fatalf("first item = %+v", first)
	}
	second := snap.Tracks[1].Track
	if second.Name != "Unknown Track" || second.Album != "Unknown Album" || second.Artist != "Solo" {
		t.Fatalf("second track = %+v", second)
	}
}

func TestParsePlaybackAliases(t *testing.T) {
	msg, err := Parse([]byte(`{"type":"playback_state","jamId":"jam-1","offset_ms":1500.7,"is_playing":false}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	up := msg.(PlaybackUpdate)
	if up.Patch.Index != nil || up.Patch.TrackID != nil {
		t.Fatalf("patch carries absent fields: %+v", up.Patch)
	}
	if up.Patch.OffsetMs == nil || *up.Patch.OffsetMs != 1500 {
		t.Fatalf("offset = %v, want 1500", up.Patch.OffsetMs)
	}
	if up.Patch.IsPlaying == nil || *up.Patch.IsPlaying {
		t.Fatalf("isPlaying = %v, want false", up.Patch.IsPlaying)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{name: "not json", raw: `hello`, want: ErrMalformed},
		{name: "no type", raw: `{"sessionId":"s"}`, want: ErrMalformed},
		{name: "no session", raw: `{"type":"queue_add","items":[{"id":"t1"}]}`, want: ErrMissingSession},
		{name: "unknown type", raw: `{"type":"chat","sessionId":"s"}`, want: ErrUnknownType},
		{name: "inbound roster", raw: `{"type":"participants","sessionId":"s"}`, want: ErrUnknownType},
		{name: "empty playback", raw: `{"type":"playback_state","sessionId":"s"}`, want: ErrMalformed},
		{name: "empty add", raw: `{"type":"queue_add","sessionId":"s","items":[]}`, want: ErrMalformed},
		{name: "snapshot without tracks", raw: `{"type":"queue_snapshot","sessionId":"s"}`, want: ErrMalformed},
		{name: "track without id", raw: `{"type":"queue_add","sessionId":"s","items":[{"name":"x"}]}`, want: ErrMalformed},
		{name: "controls without flag", raw: `{"type":"controls_mode","sessionId":"s"}`, want: ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEncodePrependsType(t *testing.T) {
	data, err := Encode(ControlsMode{SessionID: "jam-1", AllowControls: true})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.HasPrefix(string(data), `{"type":"controls_mode",`) {
		t.Fatalf("encoded = %s", data)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["sessionId"] != "jam-1" || out["allowControls"] != true {
		t.Fatalf("decoded = %v", out)
	}
}

func TestEncodeEnvelopeRoundTripsThroughParse(t *testing.T) {
	data, err := EncodeEnvelope("jam-1", "controls_mode", map[string]bool{"allowControls": true})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msg, err := Parse(data)
	if err != nil {
		t.Fatalf("parse %s: %v", data, err)
	}
	if m, ok := msg.(ControlsMode); !ok || m.SessionID != "jam-1" || !m.AllowControls {
		t.Fatalf("message = %#v", msg)
	}

	// The envelope's own keys win over payload fields of the same name.
	data, _ = EncodeEnvelope("jam-1", "controls_mode", map[string]interface{}{"type": "announce", "sessionId": "jam-2"})
	var env map[string]string
	if err := json.Unmarshal(data, &env); err != nil || env["type"] != "controls_mode" || env["sessionId"] != "jam-1" {
		t.Fatalf("envelope = %s", data)
	}

	if _, err := EncodeEnvelope("jam-1", "queue_add", []int{1}); err == nil {
		t.Fatal("expected error for a non-object payload")
	}
}
