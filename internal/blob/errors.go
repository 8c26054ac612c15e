package blob

import "errors"

// ErrNotExist is returned by Read when path has never been written.
var ErrNotExist = errors.New("blob does not exist")
