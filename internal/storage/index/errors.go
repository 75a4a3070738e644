package index

import "errors"

// ErrEntryNotFound is spec §7's "index-entry-not-found": an Iid-based
// lookup addressed a slot outside the leaf's current num_key.
var ErrEntryNotFound = errors.New("index: entry not found")
