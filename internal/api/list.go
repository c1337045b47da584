package api

import (
	"net/http"
	"strconv"

	"github.com/h51assets/h51/internal/domain"
	"github.com/h51assets/h51/internal/store"

	apierr "github.com/h51assets/h51/infrastructure/errors"
)

// handleList implements `GET /assets` (§6, §12): a paged, filterable
// document list scoped to the authenticated account.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	account := AccountFromContext(r.Context())
	q := r.URL.Query()

	f := store.ListFilter{
		Query:    q.Get("q"),
		AfterUID: q.Get("after"),
	}
	if t := q.Get("type"); t != "" {
		f.Type = domain.AssetType(t)
	}
	if secure := q.Get("secure"); secure != "" {
		v := secure == "true" || secure == "1"
		f.Secure = &v
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		f.Limit = limit
	}

	assets, err := s.Assets.List(r.Context(), account.ID, f)
	if err != nil {
		writeError(w, apierr.Internal("list assets", err))
		return
	}

	out := make([]assetResponse, 0, len(assets))
	for _, a := range assets {
		out = append(out, toAssetResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": out})
}

// handleGet implements `GET /assets/{uid}` (§6): fetch one asset's
// document.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	asset := s.loadAsset(w, r)
	if asset == nil {
		return
	}
	writeJSON(w, http.StatusOK, toAssetResponse(asset))
}
