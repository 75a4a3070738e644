package record

import "errors"

var (
	// ErrRecordNotFound is returned by Get/Update/Delete when rid's bit is
	// not set (spec §7 "record-not-found").
	ErrRecordNotFound = errors.New("record: not found")
	// ErrSizeMismatch is returned when a caller's buffer does not match
	// this file's fixed record_size.
	ErrSizeMismatch = errors.New("record: buffer size does not match record_size")
)
