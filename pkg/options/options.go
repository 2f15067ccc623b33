// Package options defines the generic options interface and flag helpers.
package options

import (
	"strings"

	"github.com/spf13/pflag"
)

// Join concatenates prefixes with "." and appends a trailing "." when the
// result is non-empty. Used to build flag names like "milvus.address" or
// "prefix.milvus.address".
func Join(prefixes ...string) string {
	joined := strings.Join(prefixes, ".")
	if joined != "" {
		joined += "."
	}
	return joined
}

// IOptions is implemented by every options struct.
type IOptions interface {
	// Validate checks the options and may complete defaults.
	Validate() []error

	// AddFlags binds the options to the given flagset.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}
