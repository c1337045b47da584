package analyzers

import "github.com/h51assets/h51/internal/registry"

// RegisterAll installs every built-in analyzer into reg. Called once at
// process startup; the registry is treated as immutable afterward (§4.2).
func RegisterAll(reg *registry.Registry) {
	reg.RegisterAnalyzer(NewDominantColors())
	reg.RegisterAnalyzer(NewImageInfo())
	reg.RegisterAnalyzer(NewAnimationInfo())
	reg.RegisterAnalyzer(NewAudioInfo())
}
