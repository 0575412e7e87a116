package rest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"jamsync/internal/model"
	"jamsync/internal/repository"
	"jamsync/internal/service"
)

type testAPI struct {
	srv  *httptest.Server
	auth *service.AuthService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	db, err := repository.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	repo, err := repository.NewSQLiteJamRepo(db)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	auth := service.NewAuthService("test-secret")
	srv := httptest.NewServer(NewRouter(&Container{
		AuthService: auth,
		JamService:  service.NewJamService(repo, nil),
	}))
	t.Cleanup(srv.Close)
	return &testAPI{srv: srv, auth: auth}
}

func (a *testAPI) token(t *testing.T, userID, name string) string {
	t.Helper()
	tok, err := a.auth.IssueToken(userID, name, 0)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func (a *testAPI) do(t *testing.T, method, path, token string, body interface{}, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, a.srv.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (a *testAPI) createJam(t *testing.T, token string, allow bool, ids ...string) *model.JamView {
	t.Helper()
	tracks := make([]map[string]string, len(ids))
	for i, id := range ids {
		tracks[i] = map[string]string{"id": id, "name": "Track " + id}
	}
	var view model.JamView
	status := a.do(t, "POST", "/v1/jams", token, map[string]interface{}{
		"seedType":      "album",
		"seedId":        "alb-1",
		"tracks":        tracks,
		"allowControls": allow,
	}, &view)
	if status != http.StatusCreated {
		t.Fatalf("create status = %d", status)
	}
	return &view
}

func TestHealthAndDocs(t *testing.T) {
	api := newTestAPI(t)

	var health map[string]string
	if status := api.do(t, "GET", "/health", "", nil, &health); status != http.StatusOK || health["status"] != "ok" {
		t.Fatalf("health = %d %v", status, health)
	}

	var doc map[string]interface{}
	if status := api.do(t, "GET", "/v1/docs/doc.json", "", nil, &doc); status != http.StatusOK {
		t.Fatalf("docs status = %d", status)
	}
	if _, ok := doc["paths"].(map[string]interface{})["/jams/{id}/playback"]; !ok {
		t.Fatalf("docs missing playback path: %v", doc["paths"])
	}
}

func TestJamRoutesRequireToken(t *testing.T) {
	api := newTestAPI(t)

	if status := api.do(t, "POST", "/v1/jams", "", map[string]string{}, nil); status != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", status)
	}
	if status := api.do(t, "GET", "/v1/jams/abc", "not-a-jwt", nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d", status)
	}
}

func TestPreflightSkipsAuth(t *testing.T) {
	api := newTestAPI(t)

	req, _ := http.NewRequest("OPTIONS", api.srv.URL+"/v1/jams/abc/playback", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Methods"); got != "GET, POST, PATCH, OPTIONS" {
		t.Fatalf("allow methods = %q", got)
	}
}

func TestCreateAndJoinJam(t *testing.T) {
	api := newTestAPI(t)
	host := api.token(t, "host-1", "Hana")
	guest := api.token(t, "guest-1", "")

	created := api.createJam(t, host, false, "t1", "t2")
	if created.Jam.HostUserID != "host-1" || len(created.Queue) != 2 || created.Playback.TrackID != "t1" {
		t.Fatalf("created = %+v", created)
	}

	var joined model.JamView
	status := api.do(t, "POST", "/v1/jams/"+created.Jam.ID+"/join", guest, map[string]string{"role": "host"}, &joined)
	if status != http.StatusOK {
		t.Fatalf("join status = %d", status)
	}
	if len(joined.Participants) != 2 {
		t.Fatalf("participants = %+v", joined.Participants)
	}
	for _, p := range joined.Participants {
		switch p.ID {
		case "host-1":
			if p.Role != model.RoleHost || p.IsSelf || p.Name != "Hana" {
				t.Fatalf("host view = %+v", p)
			}
		case "guest-1":
			if p.Role != model.RoleGuest || !p.IsSelf || p.Name != "User guest-1" {
				t.Fatalf("guest view = %+v", p)
			}
		}
	}

	if status := api.do(t, "GET", "/v1/jams/missing", guest, nil, nil); status != http.StatusNotFound {
		t.Fatalf("missing jam status = %d", status)
	}
}

func TestCreateJamValidation(t *testing.T) {
	api := newTestAPI(t)
	host := api.token(t, "host-1", "")

	if status := api.do(t, "POST", "/v1/jams", host, map[string]interface{}{"seedType": "album", "seedId": "a", "tracks": []interface{}{}}, nil); status != http.StatusBadRequest {
		t.Fatalf("empty tracks status = %d", status)
	}

	req, _ := http.NewRequest("POST", api.srv.URL+"/v1/jams", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+host)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d", resp.StatusCode)
	}
}

func TestQueueAuthority(t *testing.T) {
	api := newTestAPI(t)
	host := api.token(t, "host-1", "")
	guest := api.token(t, "guest-1", "")
	jam := api.createJam(t, host, false, "t1")
	base := "/v1/jams/" + jam.Jam.ID

	add := map[string]interface{}{"tracks": []map[string]string{{"id": "t2"}}}
	if status := api.do(t, "POST", base+"/queue/add", guest, add, nil); status != http.StatusForbidden {
		t.Fatalf("guest add status = %d", status)
	}
	if status := api.do(t, "PATCH", base+"/controls", guest, map[string]bool{"allowControls": true}, nil); status != http.StatusForbidden {
		t.Fatalf("guest controls status = %d", status)
	}
	if status := api.do(t, "PATCH", base+"/controls", host, map[string]interface{}{}, nil); status != http.StatusBadRequest {
		t.Fatalf("controls without value status = %d", status)
	}

	var session model.JamSession
	if status := api.do(t, "PATCH", base+"/controls", host, map[string]bool{"allowControls": true}, &session); status != http.StatusOK || !session.AllowControls {
		t.Fatalf("host controls = %d %+v", status, session)
	}

	var view model.JamView
	if status := api.do(t, "POST", base+"/queue/add", guest, add, &view); status != http.StatusOK {
		t.Fatalf("guest add status = %d", status)
	}
	if len(view.Queue) != 2 || view.Queue[1].Track.ID != "t2" || view.Queue[1].AddedBy != "guest-1" {
		t.Fatalf("queue = %+v", view.Queue)
	}

	if status := api.do(t, "POST", base+"/queue/remove", guest, map[string]string{"trackId": "nope"}, nil); status != http.StatusNotFound {
		t.Fatalf("remove unknown status = %d", status)
	}
	if status := api.do(t, "POST", base+"/queue/remove", guest, map[string]string{"trackId": "t1"}, &view); status != http.StatusOK {
		t.Fatalf("remove status = %d", status)
	}
	if len(view.Queue) != 1 || view.Queue[0].Position != 0 || view.Queue[0].Track.ID != "t2" {
		t.Fatalf("queue after remove = %+v", view.Queue)
	}

	if status := api.do(t, "POST", base+"/queue", host, map[string]interface{}{"tracks": []interface{}{}}, &view); status != http.StatusOK {
		t.Fatalf("replace status = %d", status)
	}
	if len(view.Queue) != 0 || view.Playback.IsPlaying || view.Playback.TrackID != "" {
		t.Fatalf("after clearing: queue=%+v playback=%+v", view.Queue, view.Playback)
	}
}

func TestPlaybackAcceptsPositionAlias(t *testing.T) {
	api := newTestAPI(t)
	host := api.token(t, "host-1", "")
	jam := api.createJam(t, host, true, "t1", "t2", "t3")
	path := "/v1/jams/" + jam.Jam.ID + "/playback"

	var state model.PlaybackState
	status := api.do(t, "POST", path, host, map[string]interface{}{"position": 2, "isPlaying": true}, &state)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if state.Index != 2 || state.TrackID != "t3" || !state.IsPlaying {
		t.Fatalf("state = %+v", state)
	}

	if status := api.do(t, "POST", path, host, map[string]interface{}{}, nil); status != http.StatusBadRequest {
		t.Fatalf("empty patch status = %d", status)
	}
	if status := api.do(t, "POST", path, host, map[string]string{"trackId": "zzz"}, nil); status != http.StatusNotFound {
		t.Fatalf("unknown track status = %d", status)
	}
}
