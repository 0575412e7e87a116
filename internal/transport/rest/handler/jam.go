package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"jamsync/internal/model"
	"jamsync/internal/service"
	"jamsync/internal/transport/rest/middleware"
)

// JamHandler handles the durable jam endpoints
type JamHandler struct {
	jamSvc *service.JamService
}

func NewJamHandler(jamSvc *service.JamService) *JamHandler {
	return &JamHandler{jamSvc: jamSvc}
}

type CreateJamRequest struct {
	SeedType      string        `json:"seedType"`
	SeedID        string        `json:"seedId"`
	Tracks        []model.Track `json:"tracks"`
	AllowControls *bool         `json:"allowControls,omitempty"`
}

type JoinJamRequest struct {
	Role string `json:"role"`
	Name string `json:"name"`
}

type ControlsRequest struct {
	AllowControls *bool `json:"allowControls"`
}

type TracksRequest struct {
	Tracks []model.Track `json:"tracks"`
}

type RemoveTrackRequest struct {
	TrackID string `json:"trackId"`
}

// PlaybackRequest is a partial clock update; absent fields stay unchanged.
// Position is accepted as an alias of index.
type PlaybackRequest struct {
	Index     *int    `json:"index,omitempty"`
	Position  *int    `json:"position,omitempty"`
	OffsetMs  *int64  `json:"offsetMs,omitempty"`
	IsPlaying *bool   `json:"isPlaying,omitempty"`
	TrackID   *string `json:"trackId,omitempty"`
}

func (p PlaybackRequest) patch() model.PlaybackPatch {
	patch := model.PlaybackPatch{
		Index:     p.Index,
		OffsetMs:  p.OffsetMs,
		IsPlaying: p.IsPlaying,
		TrackID:   p.TrackID,
	}
	if patch.Index == nil {
		patch.Index = p.Position
	}
	return patch
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// Create godoc
// @Summary Start a jam
// @Tags jams
// @Accept json
// @Produce json
// @Param body body CreateJamRequest true "seed and initial tracks"
// @Success 201 {object} model.JamView
// @Router /jams [post]
func (h *JamHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateJamRequest
	if !decodeBody(w, r, &req) {
		return
	}

	view, err := h.jamSvc.CreateJam(r.Context(), middleware.GetUserID(r.Context()), service.CreateJamInput{
		SeedType:      req.SeedType,
		SeedID:        req.SeedID,
		Tracks:        req.Tracks,
		AllowControls: req.AllowControls,
		HostName:      middleware.GetUserName(r.Context()),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// Get godoc
// @Summary Fetch a jam as seen by the caller
// @Tags jams
// @Produce json
// @Param id path string true "jam id"
// @Success 200 {object} model.JamView
// @Router /jams/{id} [get]
func (h *JamHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.jamSvc.GetView(r.Context(), mux.Vars(r)["id"], middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Join godoc
// @Summary Join a jam
// @Tags jams
// @Accept json
// @Produce json
// @Param id path string true "jam id"
// @Param body body JoinJamRequest false "requested role and display name"
// @Success 200 {object} model.JamView
// @Router /jams/{id}/join [post]
func (h *JamHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req JoinJamRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	name := req.Name
	if name == "" {
		name = middleware.GetUserName(r.Context())
	}

	view, err := h.jamSvc.JoinJam(r.Context(), mux.Vars(r)["id"], middleware.GetUserID(r.Context()), name, req.Role)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// UpdateControls godoc
// @Summary Allow or forbid guests to control the jam (host only)
// @Tags jams
// @Accept json
// @Produce json
// @Param id path string true "jam id"
// @Param body body ControlsRequest true "new setting"
// @Success 200 {object} model.JamSession
// @Router /jams/{id}/controls [patch]
func (h *JamHandler) UpdateControls(w http.ResponseWriter, r *http.Request) {
	var req ControlsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.AllowControls == nil {
		writeError(w, http.StatusBadRequest, "allowControls is required")
		return
	}

	session, err := h.jamSvc.UpdateControls(r.Context(), mux.Vars(r)["id"], middleware.GetUserID(r.Context()), *req.AllowControls)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// ReplaceQueue godoc
// @Summary Replace the queue
// @Tags queue
// @Accept json
// @Produce json
// @Param id path string true "jam id"
// @Param body body TracksRequest true "new queue"
// @Success 200 {object} model.JamView
// @Router /jams/{id}/queue [post]
func (h *JamHandler) ReplaceQueue(w http.ResponseWriter, r *http.Request) {
	var req TracksRequest
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := h.jamSvc.ReplaceQueue(r.Context(), mux.Vars(r)["id"], middleware.GetUserID(r.Context()), req.Tracks)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// AppendQueue godoc
// @Summary Append tracks to the queue
// @Tags queue
// @Accept json
// @Produce json
// @Param id path string true "jam id"
// @Param body body TracksRequest true "tracks to append"
// @Success 200 {object} model.JamView
// @Router /jams/{id}/queue/add [post]
func (h *JamHandler) AppendQueue(w http.ResponseWriter, r *http.Request) {
	var req TracksRequest
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := h.jamSvc.AppendQueue(r.Context(), mux.Vars(r)["id"], middleware.GetUserID(r.Context()), req.Tracks)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// RemoveFromQueue godoc
// @Summary Remove the first occurrence of a track from the queue
// @Tags queue
// @Accept json
// @Produce json
// @Param id path string true "jam id"
// @Param body body RemoveTrackRequest true "track to remove"
// @Success 200 {object} model.JamView
// @Router /jams/{id}/queue/remove [post]
func (h *JamHandler) RemoveFromQueue(w http.ResponseWriter, r *http.Request) {
	var req RemoveTrackRequest
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := h.jamSvc.RemoveFromQueue(r.Context(), mux.Vars(r)["id"], middleware.GetUserID(r.Context()), req.TrackID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// UpdatePlayback godoc
// @Summary Update the playback clock
// @Tags playback
// @Accept json
// @Produce json
// @Param id path string true "jam id"
// @Param body body PlaybackRequest true "fields to change"
// @Success 200 {object} model.PlaybackState
// @Router /jams/{id}/playback [post]
func (h *JamHandler) UpdatePlayback(w http.ResponseWriter, r *http.Request) {
	var req PlaybackRequest
	if !decodeBody(w, r, &req) {
		return
	}
	state, err := h.jamSvc.UpdatePlayback(r.Context(), mux.Vars(r)["id"], middleware.GetUserID(r.Context()), req.patch())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}
