package helpers

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// A short name-safe digest used to disambiguate truncated chunk names
func HashBase36(text string) string {
	return strconv.FormatUint(xxhash.Sum64String(text), 36)
}
