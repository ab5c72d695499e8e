package test

import (
	"strings"

	"github.com/google/go-cmp/cmp"
)

// Renders a line-by-line diff of two snapshots. Lines only in "old" start
// with "-" and lines only in "new" start with "+".
func Diff(old string, new string) string {
	return cmp.Diff(strings.Split(old, "\n"), strings.Split(new, "\n"))
}
