package registry

import (
	"context"
	"testing"

	"github.com/h51assets/h51/internal/domain"
)

type fakeAnalyzer struct {
	name      string
	assetType domain.AssetType
	schema    Schema
}

func (f fakeAnalyzer) Name() string                { return f.name }
func (f fakeAnalyzer) AssetType() domain.AssetType  { return f.assetType }
func (f fakeAnalyzer) Schema() Schema               { return f.schema }
func (f fakeAnalyzer) Analyze(ctx context.Context, settings map[string]any, asset *domain.Asset, blob []byte, history []AnalyzerCall) (any, error) {
	return settings, nil
}

type fakeTransform struct {
	name      string
	assetType domain.AssetType
	schema    Schema
	final     bool
}

func (f fakeTransform) Name() string               { return f.name }
func (f fakeTransform) AssetType() domain.AssetType { return f.assetType }
func (f fakeTransform) Schema() Schema              { return f.schema }
func (f fakeTransform) Final() bool                 { return f.final }
func (f fakeTransform) Apply(ctx context.Context, settings map[string]any, asset *domain.Asset, blob []byte, variationName string, state *FrameState, history []TransformCall) (*FrameState, error) {
	return state, nil
}

func TestRegistryAnalyzerFallsBackToFile(t *testing.T) {
	r := New()
	r.RegisterAnalyzer(fakeAnalyzer{name: "length", assetType: domain.AssetTypeFile})

	a, ok := r.Analyzer(domain.AssetTypeImage, "length")
	if !ok || a.Name() != "length" {
		t.Fatalf("expected fallback to file analyzer, got ok=%v a=%v", ok, a)
	}

	_, ok = r.Analyzer(domain.AssetTypeImage, "missing")
	if ok {
		t.Fatal("expected no match for an unregistered name")
	}
}

func TestRegistryAnalyzerPrefersSpecificAssetType(t *testing.T) {
	r := New()
	r.RegisterAnalyzer(fakeAnalyzer{name: "info", assetType: domain.AssetTypeFile})
	r.RegisterAnalyzer(fakeAnalyzer{name: "info", assetType: domain.AssetTypeImage})

	a, ok := r.Analyzer(domain.AssetTypeImage, "info")
	if !ok || a.AssetType() != domain.AssetTypeImage {
		t.Fatalf("expected image-specific analyzer, got %+v", a)
	}
}

func TestValidateAnalyzersUnknownName(t *testing.T) {
	r := New()
	_, errs := r.ValidateAnalyzers(domain.AssetTypeImage, []domain.CapabilityCall{{Name: "nope"}})
	if len(errs) == 0 {
		t.Fatal("expected an error for an unknown analyzer")
	}
}

func TestValidateAnalyzersNormalizesSettings(t *testing.T) {
	r := New()
	r.RegisterAnalyzer(fakeAnalyzer{
		name:      "resize_check",
		assetType: domain.AssetTypeImage,
		schema:    Schema{{Name: "max_width", Kind: FieldInt, Default: 100}},
	})

	calls, errs := r.ValidateAnalyzers(domain.AssetTypeImage, []domain.CapabilityCall{{Name: "resize_check"}})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if calls[0].Settings["max_width"] != 100 {
		t.Fatalf("expected default to be filled in, got %+v", calls[0].Settings)
	}
}

func TestValidateTransformsRequiresNonEmpty(t *testing.T) {
	r := New()
	_, errs := r.ValidateTransforms(domain.AssetTypeImage, nil)
	if len(errs) == 0 {
		t.Fatal("expected an error for an empty transform list")
	}
}

func TestValidateTransformsEnforcesFinalIsLast(t *testing.T) {
	r := New()
	r.RegisterTransform(fakeTransform{name: "crop", assetType: domain.AssetTypeImage, final: false})
	r.RegisterTransform(fakeTransform{name: "output", assetType: domain.AssetTypeImage, final: true})

	_, errs := r.ValidateTransforms(domain.AssetTypeImage, []domain.CapabilityCall{
		{Name: "output"},
		{Name: "crop"},
	})
	if len(errs) == 0 {
		t.Fatal("expected an error when a non-final transform is last")
	}

	_, errs = r.ValidateTransforms(domain.AssetTypeImage, []domain.CapabilityCall{
		{Name: "crop"},
		{Name: "output"},
	})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors for a correctly-ordered pipeline: %v", errs)
	}
}
