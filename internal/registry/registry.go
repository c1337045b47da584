package registry

import (
	"context"
	"fmt"

	"github.com/h51assets/h51/internal/domain"
)

// AnalyzerCall records one completed analyzer invocation, passed to later
// analyzers in the same pipeline as `history` so they may consult earlier
// output (§4.8).
type AnalyzerCall struct {
	Name   string
	Result any
}

// Analyzer is a capability that reads an asset's blob and returns
// structured metadata to be written at asset.meta[asset_type][name].
type Analyzer interface {
	Name() string
	AssetType() domain.AssetType
	Schema() Schema
	Analyze(ctx context.Context, settings map[string]any, asset *domain.Asset, blob []byte, history []AnalyzerCall) (any, error)
}

// TransformCall records one completed transform invocation (name +
// resolved settings), passed to later transforms as `history` so, e.g.,
// focal_point_crop's as_fallback can detect a prior crop (§4.9).
type TransformCall struct {
	Name     string
	Settings map[string]any
}

// Transform is a capability that mutates the in-memory frame-stack state.
// Intermediate transforms return an updated Decoded state; a Final
// transform encodes to bytes and returns an Encoded state. Storing the
// variation is not done by the transform: the pipeline layer performs the
// store, keeping storage side effects out of the capability implementation
// so transforms stay pure and unit-testable.
type Transform interface {
	Name() string
	AssetType() domain.AssetType
	Schema() Schema
	Final() bool
	Apply(ctx context.Context, settings map[string]any, asset *domain.Asset, blob []byte, variationName string, state *FrameState, history []TransformCall) (*FrameState, error)
}

type key struct {
	AssetType domain.AssetType
	Name      string
}

// Registry is the immutable-after-startup analyzer/transform lookup.
type Registry struct {
	analyzers  map[key]Analyzer
	transforms map[key]Transform
}

// New builds an empty registry; callers populate it via RegisterAnalyzer/
// RegisterTransform during startup, then treat it as read-only.
func New() *Registry {
	return &Registry{
		analyzers:  map[key]Analyzer{},
		transforms: map[key]Transform{},
	}
}

// RegisterAnalyzer adds a, keyed by (a.AssetType(), a.Name()).
func (r *Registry) RegisterAnalyzer(a Analyzer) {
	r.analyzers[key{a.AssetType(), a.Name()}] = a
}

// RegisterTransform adds t, keyed by (t.AssetType(), t.Name()).
func (r *Registry) RegisterTransform(t Transform) {
	r.transforms[key{t.AssetType(), t.Name()}] = t
}

// Analyzer looks up an analyzer by (assetType, name), falling back to
// (file, name) if the specific asset type has no match (§4.2).
func (r *Registry) Analyzer(assetType domain.AssetType, name string) (Analyzer, bool) {
	if a, ok := r.analyzers[key{assetType, name}]; ok {
		return a, true
	}
	if assetType != domain.AssetTypeFile {
		if a, ok := r.analyzers[key{domain.AssetTypeFile, name}]; ok {
			return a, true
		}
	}
	return nil, false
}

// Transform looks up a transform by (assetType, name). No fallback.
func (r *Registry) Transform(assetType domain.AssetType, name string) (Transform, bool) {
	t, ok := r.transforms[key{assetType, name}]
	return t, ok
}

// ValidateAnalyzers checks a requested analyzer list against the registry,
// returning normalized settings per step or a field-path -> messages map
// suitable for an invalid_request response.
func (r *Registry) ValidateAnalyzers(assetType domain.AssetType, calls []domain.CapabilityCall) ([]domain.CapabilityCall, map[string][]string) {
	out := make([]domain.CapabilityCall, 0, len(calls))
	errs := map[string][]string{}

	for i, c := range calls {
		field := fmt.Sprintf("analyzers[%d]", i)
		a, ok := r.Analyzer(assetType, c.Name)
		if !ok {
			errs[field] = append(errs[field], fmt.Sprintf("unknown analyzer %q for asset type %q", c.Name, assetType))
			continue
		}
		settings, fieldErrs := a.Schema().Validate(c.Settings)
		for k, v := range fieldErrs {
			errs[fmt.Sprintf("%s.settings.%s", field, k)] = v
		}
		out = append(out, domain.CapabilityCall{Name: c.Name, Settings: settings})
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

// ValidateTransforms checks a requested transform list against the
// registry, enforcing that the list is non-empty and exactly the last
// entry is a final transform (§4.6).
func (r *Registry) ValidateTransforms(assetType domain.AssetType, calls []domain.CapabilityCall) ([]domain.CapabilityCall, map[string][]string) {
	errs := map[string][]string{}
	if len(calls) == 0 {
		errs["transforms"] = append(errs["transforms"], "must be non-empty")
		return nil, errs
	}

	out := make([]domain.CapabilityCall, 0, len(calls))
	for i, c := range calls {
		field := fmt.Sprintf("transforms[%d]", i)
		t, ok := r.Transform(assetType, c.Name)
		if !ok {
			errs[field] = append(errs[field], fmt.Sprintf("unknown transform %q for asset type %q", c.Name, assetType))
			continue
		}
		isLast := i == len(calls)-1
		if t.Final() && !isLast {
			errs[field] = append(errs[field], fmt.Sprintf("transform %q is final and must be last", c.Name))
		}
		if !t.Final() && isLast {
			errs[field] = append(errs[field], fmt.Sprintf("last transform %q must be final", c.Name))
		}
		settings, fieldErrs := t.Schema().Validate(c.Settings)
		for k, v := range fieldErrs {
			errs[fmt.Sprintf("%s.settings.%s", field, k)] = v
		}
		out = append(out, domain.CapabilityCall{Name: c.Name, Settings: settings})
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}
