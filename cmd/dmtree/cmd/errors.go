package cmd

import (
	"errors"

	bolterrors "go.etcd.io/bbolt/errors"
)

// isDBLockError reports whether err is a bbolt lock timeout: another
// process holds the cache open.
func isDBLockError(err error) bool {
	return errors.Is(err, bolterrors.ErrTimeout)
}
