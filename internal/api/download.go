package api

import (
	"bytes"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/h51assets/h51/internal/backend"

	apierr "github.com/h51assets/h51/infrastructure/errors"
)

// handleDownload implements `GET /assets/{uid}/download` (§6): streams the
// original blob from the account's resolved backend.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	account := AccountFromContext(r.Context())
	asset := s.loadAsset(w, r)
	if asset == nil {
		return
	}

	be, err := backend.Resolve(account.Backend(asset.Secure), s.Cfg.Backend)
	if err != nil {
		writeError(w, apierr.InvalidRequest("backend misconfigured", map[string][]string{"backend": {err.Error()}}))
		return
	}

	blob, err := be.Retrieve(r.Context(), asset.StoreKey())
	if err != nil {
		writeError(w, apierr.NotFound("blob not found"))
		return
	}

	w.Header().Set("Content-Type", asset.ContentType)
	http.ServeContent(w, r, asset.StoreKey(), asset.ModifiedAt, bytes.NewReader(blob))
}

// handleDownloadVariation implements
// `GET /assets/{uid}/variations/{name}/download` (§6).
func (s *Server) handleDownloadVariation(w http.ResponseWriter, r *http.Request) {
	account := AccountFromContext(r.Context())
	asset := s.loadAsset(w, r)
	if asset == nil {
		return
	}
	name := mux.Vars(r)["name"]
	v, ok := asset.Variations[name]
	if !ok {
		writeError(w, apierr.NotFound("no such variation"))
		return
	}

	be, err := backend.Resolve(account.Backend(asset.Secure), s.Cfg.Backend)
	if err != nil {
		writeError(w, apierr.InvalidRequest("backend misconfigured", map[string][]string{"backend": {err.Error()}}))
		return
	}

	key := asset.VariationStoreKey(name, v)
	blob, err := be.Retrieve(r.Context(), key)
	if err != nil {
		writeError(w, apierr.NotFound("blob not found"))
		return
	}

	w.Header().Set("Content-Type", v.ContentType)
	http.ServeContent(w, r, key, asset.ModifiedAt, bytes.NewReader(blob))
}

// handleDeleteVariation implements
// `DELETE /assets/{uid}/variations/{name}` (§6): removes the variation
// entry and its blob.
func (s *Server) handleDeleteVariation(w http.ResponseWriter, r *http.Request) {
	account := AccountFromContext(r.Context())
	asset := s.loadAsset(w, r)
	if asset == nil {
		return
	}
	name := mux.Vars(r)["name"]

	removed, existed, err := s.Assets.DeleteVariation(r.Context(), asset.ID, name)
	if err != nil {
		writeError(w, apierr.Internal("delete variation", err))
		return
	}
	if !existed {
		writeError(w, apierr.NotFound("no such variation"))
		return
	}

	be, err := backend.Resolve(account.Backend(asset.Secure), s.Cfg.Backend)
	if err == nil {
		_ = be.Delete(r.Context(), asset.VariationStoreKey(name, removed))
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
