package assets

import (
	"fmt"
	"regexp"
	"strings"
)

// staticName allows a single extension from the provisioned set.
var staticName = regexp.MustCompile(`^[A-Za-z0-9_-]+\.(css|js)$`)

// ValidateAssetName checks that a template name is safe for use as a filename.
// Returns ErrInvalidAssetName if the name is empty or contains path separators,
// dots (which could allow extension manipulation), or traversal characters.
func ValidateAssetName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidAssetName)
	}
	if strings.ContainsAny(name, "/\\.") {
		return fmt.Errorf("%w: %q", ErrInvalidAssetName, name)
	}
	return nil
}

// ValidateStaticName checks a static file name: one base name with a .css or
// .js extension and no path components.
func ValidateStaticName(name string) error {
	if !staticName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidAssetName, name)
	}
	return nil
}
