package bundle

import (
	"fmt"

	"dario.cat/mergo"
)

// Merge applies fragment over dst. Set scalars in the fragment override,
// maps merge key by key and slices (rules, plugins, entry paths) are appended.
// Zero values in the fragment never override dst.
func Merge(dst *Configuration, fragment Configuration) error {
	if err := mergo.Merge(dst, fragment, mergo.WithOverride, mergo.WithAppendSlice); err != nil {
		return fmt.Errorf("failed to merge configuration: %w", err)
	}
	return nil
}
