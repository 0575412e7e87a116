package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"jamsync/internal/model"
	"jamsync/internal/transport/ws"
)

func TestRelayClientPostsEnvelope(t *testing.T) {
	var (
		gotBody   map[string]interface{}
		gotSecret string
		gotPath   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSecret = r.Header.Get("X-Bridge-Secret")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	t.Cleanup(srv.Close)

	client := NewRelayClient(srv.URL+"/", "s3cret", time.Second)
	err := client.Push(context.Background(), "jam-1", EventControlsMode, controlsModeEvent{AllowControls: true})
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if gotPath != "/broadcast" {
		t.Fatalf("path = %q, want /broadcast", gotPath)
	}
	if gotSecret != "s3cret" {
		t.Fatalf("secret = %q", gotSecret)
	}
	if gotBody["type"] != "controls_mode" || gotBody["sessionId"] != "jam-1" || gotBody["allowControls"] != true {
		t.Fatalf("body = %v", gotBody)
	}
}

func TestRelayClientReportsRelayErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"missing sessionId"}`))
	}))
	t.Cleanup(srv.Close)

	client := NewRelayClient(srv.URL, "", time.Second)
	if err := client.Push(context.Background(), "jam-1", EventQueueAdd, nil); err == nil {
		t.Fatal("expected error for 400 response")
	}
}

func TestRelayClientTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	client := NewRelayClient(srv.URL, "", 50*time.Millisecond)
	start := time.Now()
	if err := client.Push(context.Background(), "jam-1", EventQueueAdd, nil); err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("push took %v", elapsed)
	}
}

func drainFrames(c *ws.Client) []map[string]interface{} {
	var out []map[string]interface{}
	for {
		select {
		case data, ok := <-c.Frames():
			if !ok {
				return out
			}
			var f map[string]interface{}
			_ = json.Unmarshal(data, &f)
			out = append(out, f)
		default:
			return out
		}
	}
}

// Host and guest sockets on an in-process relay, mutations through the service.
func TestServicePushesReachLiveRoom(t *testing.T) {
	svc, _, _ := newTestService(t)
	hub := ws.NewHub(ws.NewRegistry())
	hub.SetHydrator(svc)
	svc.SetBroadcaster(hub)
	ctx := context.Background()

	jam := createJam(t, svc, false, "t1", "t2", "t3")

	host := ws.NewClient(32)
	guest := ws.NewClient(32)
	hub.Join(ctx, host, ws.Announce{SessionID: jam.Jam.ID, UserID: "host-1", Role: "host"})
	hub.Join(ctx, guest, ws.Announce{SessionID: jam.Jam.ID, UserID: "guest-1"})

	hostFrames := drainFrames(host)
	snapshot := hostFrames[1]
	if snapshot["type"] != "queue_snapshot" || len(snapshot["tracks"].([]interface{})) != 3 {
		t.Fatalf("hydrated snapshot = %v", snapshot)
	}
	drainFrames(guest)

	if _, err := svc.AppendQueue(ctx, jam.Jam.ID, "guest-1", []model.Track{{ID: "t9"}}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if frames := drainFrames(host); len(frames) != 0 {
		t.Fatalf("host saw %v after rejected append", frames)
	}

	if _, err := svc.UpdateControls(ctx, jam.Jam.ID, "host-1", true); err != nil {
		t.Fatalf("update controls: %v", err)
	}
	if _, err := svc.AppendQueue(ctx, jam.Jam.ID, "guest-1", []model.Track{{ID: "t9"}}); err != nil {
		t.Fatalf("append: %v", err)
	}

	for _, c := range []*ws.Client{host, guest} {
		frames := drainFrames(c)
		if len(frames) != 2 || frames[0]["type"] != "controls_mode" || frames[1]["type"] != "queue_add" {
			t.Fatalf("frames = %v", frames)
		}
		item := frames[1]["items"].([]interface{})[0].(map[string]interface{})
		if item["position"] != float64(3) {
			t.Fatalf("appended item = %v", item)
		}
	}

	queue, version := hub.Rooms().Get(jam.Jam.ID).Queue()
	if len(queue) != 4 || version != 2 || queue[3].Track.ID != "t9" {
		t.Fatalf("room queue = %+v at version %d", queue, version)
	}
}
