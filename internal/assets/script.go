package assets

import (
	"fmt"

	"github.com/dop251/goja"
)

// ValidateScript compiles src as a classic (non-module) script. It does not
// run it, so browser globals need not exist.
func ValidateScript(name, src string) error {
	if _, err := goja.Compile(name, src, false); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidScript, name, err)
	}
	return nil
}
