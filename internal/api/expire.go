package api

import (
	"encoding/json"
	"net/http"

	apierr "github.com/h51assets/h51/infrastructure/errors"
)

type expireRequest struct {
	Seconds int      `json:"seconds"`
	UIDs    []string `json:"uids,omitempty"`
}

// handleExpire implements `POST /assets/{uid}/expire` (§6): sets the
// asset's expiry to now+seconds, making it invisible to reads immediately
// once that time passes, without deleting its blob; the purge job later
// deletes only the asset row.
func (s *Server) handleExpire(w http.ResponseWriter, r *http.Request) {
	asset := s.loadAsset(w, r)
	if asset == nil {
		return
	}
	var req expireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.InvalidRequest("malformed JSON body", nil))
		return
	}
	if req.Seconds <= 0 {
		writeError(w, apierr.InvalidRequest("seconds must be positive", map[string][]string{"seconds": {"must be > 0"}}))
		return
	}
	if err := s.Assets.SetExpires(r.Context(), asset.ID, req.Seconds); err != nil {
		writeError(w, apierr.Internal("set expiry", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleExpireBulk implements the bulk `expire` variant.
func (s *Server) handleExpireBulk(w http.ResponseWriter, r *http.Request) {
	account := AccountFromContext(r.Context())
	var req expireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.InvalidRequest("malformed JSON body", nil))
		return
	}
	if req.Seconds <= 0 || len(req.UIDs) == 0 {
		writeError(w, apierr.InvalidRequest("seconds and uids are required", nil))
		return
	}
	for _, uid := range req.UIDs {
		asset, err := s.Assets.GetByUID(r.Context(), account.ID, uid)
		if err != nil {
			continue
		}
		_ = s.Assets.SetExpires(r.Context(), asset.ID, req.Seconds)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePersist implements `POST /assets/{uid}/persist` (§6): clears any
// expiry previously set.
func (s *Server) handlePersist(w http.ResponseWriter, r *http.Request) {
	asset := s.loadAsset(w, r)
	if asset == nil {
		return
	}
	if err := s.Assets.ClearExpires(r.Context(), asset.ID); err != nil {
		writeError(w, apierr.Internal("clear expiry", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePersistBulk implements the bulk `persist` variant.
func (s *Server) handlePersistBulk(w http.ResponseWriter, r *http.Request) {
	account := AccountFromContext(r.Context())
	var req expireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.InvalidRequest("malformed JSON body", nil))
		return
	}
	if len(req.UIDs) == 0 {
		writeError(w, apierr.InvalidRequest("uids is required", nil))
		return
	}
	for _, uid := range req.UIDs {
		asset, err := s.Assets.GetByUID(r.Context(), account.ID, uid)
		if err != nil {
			continue
		}
		_ = s.Assets.ClearExpires(r.Context(), asset.ID)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
