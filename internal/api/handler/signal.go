package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/intervue/internal/api/response"
	"github.com/kiranshivaraju/intervue/pkg/models"
	"github.com/pion/webrtc/v3"
)

// SignalRelay authorizes and serves the signaling websocket.
type SignalRelay interface {
	Authorize(ctx context.Context, userID string, interviewID uuid.UUID) (models.Role, error)
	Serve(w http.ResponseWriter, r *http.Request, interviewID uuid.UUID, role models.Role)
}

// NewSignalHandler returns an http.HandlerFunc for
// GET /api/v1/interviews/{id}/signal. Refusals are answered before the
// upgrade as ordinary error envelopes.
func NewSignalHandler(relay SignalRelay) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}
		id, ok := interviewID(w, r)
		if !ok {
			return
		}

		role, err := relay.Authorize(r.Context(), user.ID, id)
		if err != nil {
			response.Fail(w, r, err)
			return
		}
		relay.Serve(w, r, id, role)
	}
}

type iceServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// NewWebRTCConfigHandler returns an http.HandlerFunc for
// GET /api/v1/webrtc/config, the ICE servers clients should use.
func NewWebRTCConfigHandler(cfg webrtc.Configuration) http.HandlerFunc {
	servers := make([]iceServer, 0, len(cfg.ICEServers))
	for _, s := range cfg.ICEServers {
		cred, _ := s.Credential.(string)
		servers = append(servers, iceServer{URLs: s.URLs, Username: s.Username, Credential: cred})
	}
	body := map[string]any{"ice_servers": servers}

	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, body)
	}
}
