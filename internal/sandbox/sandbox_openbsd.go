//go:build openbsd

package sandbox

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// restrict pledges promises. Exec promises are left alone so the layout
// tool runs unrestricted.
func restrict(promises string) error {
	if err := unix.PledgePromises(promises); err != nil {
		return fmt.Errorf("pledge %q: %w", promises, err)
	}
	return nil
}
