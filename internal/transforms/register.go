package transforms

import "github.com/h51assets/h51/internal/registry"

// RegisterAll installs every built-in transform into reg. Called once at
// process startup; the registry is treated as immutable afterward (§4.2).
func RegisterAll(reg *registry.Registry) {
	reg.RegisterTransform(NewAutoOrient())
	reg.RegisterTransform(NewCrop())
	reg.RegisterTransform(NewFit())
	reg.RegisterTransform(NewFocalPointCrop())
	reg.RegisterTransform(NewRotate())
	reg.RegisterTransform(NewSingleFrame())
	reg.RegisterTransform(NewOutput())
}
