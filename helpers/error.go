package helpers

import (
	"strings"

	"github.com/juju/errors"
)

// FoldErrors skips nil entries. Single error is returned as is,
// so errors.IsTimeout/IsNotValid still work on it.
func FoldErrors(errs []error) error {
	var first error
	var sb strings.Builder
	n := 0
	for _, e := range errs {
		if e == nil {
			continue
		}
		if n == 0 {
			first = e
		} else {
			sb.WriteByte('\n')
		}
		sb.WriteString(e.Error())
		n++
	}
	switch n {
	case 0:
		return nil
	case 1:
		return first
	}
	return errors.New(sb.String())
}
