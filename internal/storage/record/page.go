package record

import "encoding/binary"

func pageNumRecords(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf[dataHeaderNumRecordsOff:])
}

func setPageNumRecords(buf []byte, n uint32) {
	binary.LittleEndian.PutUint32(buf[dataHeaderNumRecordsOff:], n)
}

func pageNextFree(buf []byte) int32 {
	return int32(binary.LittleEndian.Uint32(buf[dataHeaderNextFreeOff:]))
}

func setPageNextFree(buf []byte, v int32) {
	binary.LittleEndian.PutUint32(buf[dataHeaderNextFreeOff:], uint32(v))
}
