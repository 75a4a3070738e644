package diskmgr

import "errors"

var (
	// ErrPageNotExist is returned when a page cannot be read from disk.
	ErrPageNotExist = errors.New("diskmgr: page does not exist")
	// ErrPageCorrupt is returned when a page's checksum does not match.
	ErrPageCorrupt = errors.New("diskmgr: page checksum mismatch")
	// ErrFileNotOpen is returned when a FileID is not registered with the Manager.
	ErrFileNotOpen = errors.New("diskmgr: file not open")
)
