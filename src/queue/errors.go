package queue

import "github.com/pkg/errors"

// ErrIndexOutOfRange is returned by positional insertion when the index is not
// within [0, Len()].
var ErrIndexOutOfRange = errors.New("queue: index out of range")
