package api

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/h51assets/h51/internal/backend"
	"github.com/h51assets/h51/internal/domain"

	apierr "github.com/h51assets/h51/infrastructure/errors"
)

const maxUploadMemory = 32 << 20

// assetResponse is the JSON shape returned for a single asset document
// (§6's upload/get/list responses).
type assetResponse struct {
	UID         string                            `json:"uid"`
	Name        string                            `json:"name"`
	Ext         string                            `json:"ext"`
	Type        domain.AssetType                   `json:"type"`
	ContentType string                            `json:"content_type"`
	Secure      bool                              `json:"secure"`
	Expires     *time.Time                        `json:"expires,omitempty"`
	Meta        map[string]map[string]any          `json:"meta"`
	Variations  map[string]domain.Variation        `json:"variations"`
	CreatedAt   time.Time                          `json:"created_at"`
	ModifiedAt  time.Time                          `json:"modified_at"`
}

func toAssetResponse(a *domain.Asset) assetResponse {
	return assetResponse{
		UID:         a.UID,
		Name:        a.Name,
		Ext:         a.Ext,
		Type:        a.Type,
		ContentType: a.ContentType,
		Secure:      a.Secure,
		Expires:     a.Expires,
		Meta:        a.Meta,
		Variations:  a.Variations,
		CreatedAt:   a.CreatedAt,
		ModifiedAt:  a.ModifiedAt,
	}
}

// handleUpload implements `PUT /assets` (§6, §12): a multipart upload of
// the original blob, named and slugged, probed for intrinsic meta, stored
// to the account's backend, then recorded.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	account := AccountFromContext(r.Context())

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, apierr.InvalidRequest("could not parse multipart form", nil))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, apierr.InvalidRequest("missing file field", nil))
		return
	}
	defer file.Close()

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}
	name = domain.SlugName(name)
	if name == "" {
		writeError(w, apierr.InvalidRequest("name resolves to an empty slug", nil))
		return
	}

	secure := r.FormValue("secure") == "true" || r.FormValue("secure") == "1"

	blob, err := io.ReadAll(file)
	if err != nil {
		writeError(w, apierr.Internal("read upload", err))
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(blob)
	}
	ext := domain.DeriveExt(header.Filename)
	assetType := domain.DeriveAssetType(contentType)

	uid, err := domain.NewUID()
	if err != nil {
		writeError(w, apierr.Internal("generate uid", err))
		return
	}

	asset := &domain.Asset{
		ID:          domain.NewAssetID(),
		AccountID:   account.ID,
		Secure:      secure,
		Name:        name,
		UID:         uid,
		Ext:         ext,
		Type:        assetType,
		ContentType: contentType,
		CreatedAt:   time.Now().UTC(),
		ModifiedAt:  time.Now().UTC(),
	}
	probeIntrinsicMeta(asset, blob, assetType)

	be, err := backend.Resolve(account.Backend(secure), s.Cfg.Backend)
	if err != nil {
		writeError(w, apierr.InvalidRequest("backend misconfigured", map[string][]string{"backend": {err.Error()}}))
		return
	}

	if err := be.Store(r.Context(), asset.StoreKey(), bytes.NewReader(blob), contentType); err != nil {
		writeError(w, apierr.Internal("store blob", err))
		return
	}

	if err := s.Assets.Create(r.Context(), asset); err != nil {
		_ = be.Delete(r.Context(), asset.StoreKey())
		writeError(w, apierr.Internal("persist asset", err))
		return
	}

	_ = s.Stats.Inc(r.Context(), account.ID, domain.StatAssets, 1, time.Now())
	_ = s.Stats.Inc(r.Context(), account.ID, domain.StatLength, int64(len(blob)), time.Now())

	writeJSON(w, http.StatusCreated, toAssetResponse(asset))
}

// probeIntrinsicMeta fills asset.Meta[assetType]["intrinsic"] with whatever
// cheap structural facts can be read from the blob without invoking a
// registered analyzer: image dimensions via image.DecodeConfig, or a
// minimal WAV header probe for audio.
func probeIntrinsicMeta(asset *domain.Asset, blob []byte, assetType domain.AssetType) {
	now := time.Now().UTC()
	switch assetType {
	case domain.AssetTypeImage:
		cfg, format, err := image.DecodeConfig(bytes.NewReader(blob))
		if err == nil {
			asset.SetMeta(assetType, "intrinsic", map[string]any{
				"width":  cfg.Width,
				"height": cfg.Height,
				"format": format,
				"length": int64(len(blob)),
			}, now)
		}
	case domain.AssetTypeAudio:
		if meta, ok := probeWAV(blob); ok {
			meta["length"] = int64(len(blob))
			asset.SetMeta(assetType, "intrinsic", meta, now)
		} else {
			asset.SetMeta(assetType, "intrinsic", map[string]any{"length": int64(len(blob))}, now)
		}
	default:
		asset.SetMeta(assetType, "intrinsic", map[string]any{"length": int64(len(blob))}, now)
	}
}

// probeWAV reads just enough of a canonical RIFF/WAVE header to report
// channel count, sample rate, and bit depth, without pulling in a full
// audio-decoding dependency for a field that is this cheap to parse by
// hand. Returns ok=false for any non-WAV or malformed input, in which case
// the caller still records the byte length.
func probeWAV(blob []byte) (map[string]any, bool) {
	if len(blob) < 44 {
		return nil, false
	}
	if string(blob[0:4]) != "RIFF" || string(blob[8:12]) != "WAVE" {
		return nil, false
	}
	channels := int(blob[22]) | int(blob[23])<<8
	sampleRate := int(blob[24]) | int(blob[25])<<8 | int(blob[26])<<16 | int(blob[27])<<24
	bitsPerSample := int(blob[34]) | int(blob[35])<<8
	return map[string]any{
		"channels":        channels,
		"sample_rate":     sampleRate,
		"bits_per_sample": bitsPerSample,
	}, true
}

// uidFromRequest extracts the {uid} path variable, used by every
// single-asset handler.
func uidFromRequest(r *http.Request) string {
	return mux.Vars(r)["uid"]
}

func (s *Server) loadAsset(w http.ResponseWriter, r *http.Request) *domain.Asset {
	account := AccountFromContext(r.Context())
	asset, err := s.Assets.GetByUID(r.Context(), account.ID, uidFromRequest(r))
	if err != nil {
		writeError(w, apierr.NotFound("no such asset"))
		return nil
	}
	if asset.IsExpired(time.Now()) {
		writeError(w, apierr.NotFound("no such asset"))
		return nil
	}
	return asset
}
