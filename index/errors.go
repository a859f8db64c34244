package index

import "errors"

// ErrKeyNotFound is returned by remove/delete when the key is absent.
var ErrKeyNotFound = errors.New("index: key not found")

// ErrValueNotFound is returned by a multi-value remove when the key exists
// but does not hold the given value.
var ErrValueNotFound = errors.New("index: value not found")

// ErrKeyOccupied is returned by a unique set with overwrite=false when the
// key is already bound.
var ErrKeyOccupied = errors.New("index: key occupied")

// ErrMalformedLogRecord is returned by from_bytes when the replay stream
// cannot be decoded, or contains a tuple kind the index cannot apply.
var ErrMalformedLogRecord = errors.New("index: malformed log record")
