package cache

import "errors"

// ErrBadRecord marks a queue payload that could not be decoded. The payload
// has already been removed from the queue.
var ErrBadRecord = errors.New("invalid match record payload")
