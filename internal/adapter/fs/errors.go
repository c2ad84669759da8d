package fs

import "errors"

var ErrNotText = errors.New("file is not text")
