package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewAssetID returns a globally unique row id for a new Asset.
func NewAssetID() string {
	return uuid.NewString()
}

// AssetType is the coarse content family an asset belongs to; it selects
// which analyzers/transforms apply by default (§4.2 registry lookup).
type AssetType string

const (
	AssetTypeFile  AssetType = "file"
	AssetTypeImage AssetType = "image"
	AssetTypeAudio AssetType = "audio"
)

// Variation is a derived artefact of an asset, produced by a transform
// pipeline whose final transform encoded it; the worker then stores it.
type Variation struct {
	ContentType string         `json:"content_type"`
	Ext         string         `json:"ext"`
	Meta        map[string]any `json:"meta"`
	// Version is a 3-char (or wider on overflow) base-36 counter. Empty
	// means the variation is not versioned.
	Version string `json:"version,omitempty"`
}

// Length returns the variation's byte length from its meta, or 0 if unset.
func (v Variation) Length() int64 {
	if v.Meta == nil {
		return 0
	}
	if n, ok := v.Meta["length"].(int64); ok {
		return n
	}
	if n, ok := v.Meta["length"].(float64); ok {
		return int64(n)
	}
	return 0
}

// Asset is a stored file plus its derived metadata and variations.
type Asset struct {
	ID        string    `json:"id" db:"id"`
	AccountID string    `json:"account_id" db:"account_id"`
	Secure    bool      `json:"secure" db:"secure"`
	Name      string    `json:"name" db:"name"`
	UID       string    `json:"uid" db:"uid"`
	Ext       string    `json:"ext" db:"ext"`
	Type      AssetType `json:"type" db:"type"`
	ContentType string  `json:"content_type" db:"content_type"`

	// Expires is the absolute time the asset stops being visible to the
	// API. Nil means the asset never expires.
	Expires *time.Time `json:"expires,omitempty" db:"expires"`

	// Meta is keyed by asset_type, then analyzer name -> analyzer output.
	Meta map[string]map[string]any `json:"meta" db:"-"`

	// Variations maps variation name -> Variation.
	Variations map[string]Variation `json:"variations" db:"-"`

	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	ModifiedAt time.Time `json:"modified_at" db:"modified_at"`
}

// IsExpired reports whether the asset is logically absent from API reads
// as of now.
func (a *Asset) IsExpired(now time.Time) bool {
	return a.Expires != nil && !a.Expires.After(now)
}

// StoreKey is the primary blob's key: name.uid.ext.
func (a *Asset) StoreKey() string {
	return fmt.Sprintf("%s.%s.%s", a.Name, a.UID, a.Ext)
}

// VariationStoreKey is a variation blob's key:
// name.uid.variation_name[.version].ext
func (a *Asset) VariationStoreKey(variationName string, v Variation) string {
	if v.Version != "" {
		return fmt.Sprintf("%s.%s.%s.%s.%s", a.Name, a.UID, variationName, v.Version, v.Ext)
	}
	return fmt.Sprintf("%s.%s.%s.%s", a.Name, a.UID, variationName, v.Ext)
}

// SetMeta writes analyzer output into Meta[assetType][analyzerName],
// initializing nested maps as needed, and bumps ModifiedAt.
func (a *Asset) SetMeta(assetType AssetType, analyzerName string, value any, now time.Time) {
	if a.Meta == nil {
		a.Meta = map[string]map[string]any{}
	}
	key := string(assetType)
	if a.Meta[key] == nil {
		a.Meta[key] = map[string]any{}
	}
	a.Meta[key][analyzerName] = value
	a.ModifiedAt = now
}

// SetVariation installs v under name and bumps ModifiedAt. Returns the
// previous variation, if one existed, so the caller can clean up its blob.
func (a *Asset) SetVariation(name string, v Variation, now time.Time) (prev Variation, existed bool) {
	if a.Variations == nil {
		a.Variations = map[string]Variation{}
	}
	prev, existed = a.Variations[name]
	a.Variations[name] = v
	a.ModifiedAt = now
	return prev, existed
}

// BaseTypeOrSelf returns AssetTypeFile when t is empty, else t.
func BaseTypeOrSelf(t AssetType) AssetType {
	if t == "" {
		return AssetTypeFile
	}
	return t
}

// DeriveExt returns the lowercase extension (without leading dot) of a
// filename, or "" if it has none.
func DeriveExt(filename string) string {
	idx := strings.LastIndexByte(filename, '.')
	if idx < 0 || idx == len(filename)-1 {
		return ""
	}
	return strings.ToLower(filename[idx+1:])
}

// DeriveAssetType maps a sniffed content type to a coarse AssetType.
func DeriveAssetType(contentType string) AssetType {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return AssetTypeImage
	case strings.HasPrefix(contentType, "audio/"):
		return AssetTypeAudio
	default:
		return AssetTypeFile
	}
}
