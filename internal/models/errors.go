package models

import "errors"

// ErrItemOutOfStock is returned by inventories when a player holds none of
// the requested item.
var ErrItemOutOfStock = errors.New("item out of stock")

// ErrRecordRejected marks a match record that can never be stored as is.
// Retrying it unchanged will fail again.
var ErrRecordRejected = errors.New("match record rejected")
