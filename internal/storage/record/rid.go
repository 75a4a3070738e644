package record

// RID is a record identifier: (page_no, slot_no), uniquely locating a
// record within one heap file (spec §3). Its wire shape is two little-
// endian int32s, matching diskmgr's own page addressing.
type RID struct {
	PageNo int32
	SlotNo int32
}

// InvalidRID is the scan cursor's end-of-file sentinel.
var InvalidRID = RID{PageNo: -1, SlotNo: -1}

// Valid reports whether r addresses a real slot.
func (r RID) Valid() bool { return r != InvalidRID }
