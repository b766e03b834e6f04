// Package resample defines the class-imbalance correction contract. The
// algorithms themselves are external collaborators; the core resolves
// configured method names to tagged variants at configuration time so an
// unknown name fails before any training starts.
package resample

import (
	"strings"

	"offerctr/domain/core"
)

// Variant classifies how a method rebalances classes
type Variant string

const (
	None        Variant = "none"        // leave the training split untouched
	Oversample  Variant = "oversample"  // grow the minority class
	Undersample Variant = "undersample" // shrink the majority class
	Hybrid      Variant = "hybrid"      // oversample then clean the boundary
)

// Method is a resolved resampling choice: the externally configured name
// plus its variant. The name is preserved for registry dispatch and run
// manifests.
type Method struct {
	Name    string  `json:"name" yaml:"name"`
	Variant Variant `json:"variant" yaml:"variant"`
}

// variantByName maps every accepted external method name to its variant.
// Names follow the conventions of the usual imbalance toolkits.
var variantByName = map[string]Variant{
	"none":        None,
	"smote":       Oversample,
	"adasyn":      Oversample,
	"undersample": Undersample,
	"nearmiss":    Undersample,
	"smoteenn":    Hybrid,
	"smotetomek":  Hybrid,
}

// Parse resolves a configured method name. Unrecognized names fail with
// ErrUnknownResampleMethod; there is no silent default.
func Parse(name string) (Method, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	variant, ok := variantByName[normalized]
	if !ok {
		return Method{}, core.NewUnknownResampleMethodError(name)
	}
	return Method{Name: normalized, Variant: variant}, nil
}

// Names returns every accepted method name, for error messages and docs
func Names() []string {
	names := make([]string, 0, len(variantByName))
	for name := range variantByName {
		names = append(names, name)
	}
	return names
}

// IsNone reports whether the method is a no-op
func (m Method) IsNone() bool {
	return m.Variant == None
}
