package index

import (
	"path/filepath"
	"testing"

	"github.com/SimonWaldherr/tinySQL/internal/storage/buffer"
	"github.com/SimonWaldherr/tinySQL/internal/storage/diskmgr"
	"github.com/SimonWaldherr/tinySQL/internal/storage/lockmgr"
	"github.com/SimonWaldherr/tinySQL/internal/storage/record"
	"github.com/SimonWaldherr/tinySQL/internal/storage/txn"
)

// testColLen is chosen so a minimum-size (512-byte) page holds exactly 4
// key/rid pairs per node (spec §8's literal max_n=4 scenarios): available
// = 512-16-24 = 472, and 472/(100+8) = 4.
const testColLen = 100

func newTestTree(t *testing.T) (*BTree, *txn.Manager) {
	t.Helper()
	disk, err := diskmgr.NewManager(filepath.Join(t.TempDir(), "data"), diskmgr.MinPageSize)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	pool := buffer.NewBufferPool(disk, 64, nil)
	bt, err := Create(pool, disk, ColInt64, testColLen)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if bt.MaxN() != 4 {
		t.Fatalf("test assumes max_n=4, got %d", bt.MaxN())
	}
	lm := lockmgr.New(nil)
	return bt, txn.NewManager(lm, nil)
}

func keyOf(v int64) []byte { return EncodeInt64Key(v, testColLen) }

func ridOf(v int64) record.RID { return record.RID{PageNo: int32(v), SlotNo: 0} }

func TestInsertEntry_SplitsLeafAtMaxN(t *testing.T) {
	bt, _ := newTestTree(t)
	for v := int64(1); v <= 4; v++ {
		ok, err := bt.InsertEntry(keyOf(v), ridOf(v), nil)
		if err != nil || !ok {
			t.Fatalf("InsertEntry(%d) = %v, %v", v, ok, err)
		}
	}

	root, err := bt.rootPage()
	if err != nil {
		t.Fatalf("rootPage: %v", err)
	}
	frame, err := bt.fetchLatched(root, true)
	if err != nil {
		t.Fatalf("fetchLatched root: %v", err)
	}
	if nodeIsLeaf(frame.Buf) {
		t.Fatal("root should have split into an internal node after a 4th insert at max_n=4")
	}
	if n := nodeNumKey(frame.Buf); n != 2 {
		t.Fatalf("root should have exactly 2 children after one split, got %d", n)
	}
	bt.unlatchUnpin(held{root, frame, true}, false)

	for v := int64(1); v <= 4; v++ {
		rids, err := bt.GetValue(keyOf(v))
		if err != nil {
			t.Fatalf("GetValue(%d): %v", v, err)
		}
		if len(rids) != 1 || rids[0] != ridOf(v) {
			t.Fatalf("GetValue(%d) = %v, want [%v]", v, rids, ridOf(v))
		}
	}
}

func TestInsertEntry_RejectsDuplicateKey(t *testing.T) {
	bt, _ := newTestTree(t)
	if _, err := bt.InsertEntry(keyOf(1), ridOf(1), nil); err != nil {
		t.Fatalf("InsertEntry: %v", err)
	}
	ok, err := bt.InsertEntry(keyOf(1), ridOf(99), nil)
	if err != nil {
		t.Fatalf("InsertEntry duplicate: %v", err)
	}
	if ok {
		t.Fatal("InsertEntry should reject a duplicate key")
	}
	rids, err := bt.GetValue(keyOf(1))
	if err != nil || len(rids) != 1 || rids[0] != ridOf(1) {
		t.Fatalf("GetValue(1) = %v, %v, want original rid preserved", rids, err)
	}
}

func TestScan_YieldsAscendingOrderAcrossManySplits(t *testing.T) {
	bt, _ := newTestTree(t)
	for v := int64(1); v <= 10; v++ {
		if ok, err := bt.InsertEntry(keyOf(v), ridOf(v), nil); err != nil || !ok {
			t.Fatalf("InsertEntry(%d) = %v, %v", v, ok, err)
		}
	}

	begin, err := bt.LeafBegin()
	if err != nil {
		t.Fatalf("LeafBegin: %v", err)
	}
	cur := bt.Scan(begin)
	var got []record.RID
	for {
		rid, _, ok := cur.Next()
		if !ok {
			break
		}
		got = append(got, rid)
	}
	if len(got) != 10 {
		t.Fatalf("scan yielded %d entries, want 10", len(got))
	}
	for i, rid := range got {
		want := ridOf(int64(i + 1))
		if rid != want {
			t.Fatalf("scan[%d] = %v, want %v", i, rid, want)
		}
	}

	lb, err := bt.LowerBound(keyOf(5))
	if err != nil {
		t.Fatalf("LowerBound: %v", err)
	}
	rid, err := bt.GetRID(lb)
	if err != nil || rid != ridOf(5) {
		t.Fatalf("LowerBound(5) -> GetRID = %v, %v, want rid(5)", rid, err)
	}
}

func TestDeleteEntry_RebalancesAndForgetsKey(t *testing.T) {
	bt, _ := newTestTree(t)
	for v := int64(1); v <= 10; v++ {
		if _, err := bt.InsertEntry(keyOf(v), ridOf(v), nil); err != nil {
			t.Fatalf("InsertEntry(%d): %v", v, err)
		}
	}

	for _, v := range []int64{3, 4} {
		ok, err := bt.DeleteEntry(keyOf(v), nil)
		if err != nil || !ok {
			t.Fatalf("DeleteEntry(%d) = %v, %v", v, ok, err)
		}
	}

	for _, v := range []int64{3, 4} {
		rids, err := bt.GetValue(keyOf(v))
		if err != nil {
			t.Fatalf("GetValue(%d): %v", v, err)
		}
		if len(rids) != 0 {
			t.Fatalf("GetValue(%d) = %v, want empty after delete", v, rids)
		}
	}

	remaining := []int64{1, 2, 5, 6, 7, 8, 9, 10}
	for _, v := range remaining {
		rids, err := bt.GetValue(keyOf(v))
		if err != nil || len(rids) != 1 || rids[0] != ridOf(v) {
			t.Fatalf("GetValue(%d) = %v, %v, want [%v]", v, rids, err, ridOf(v))
		}
	}

	begin, err := bt.LeafBegin()
	if err != nil {
		t.Fatalf("LeafBegin: %v", err)
	}
	cur := bt.Scan(begin)
	var got []int64
	for {
		rid, _, ok := cur.Next()
		if !ok {
			break
		}
		got = append(got, int64(rid.PageNo))
	}
	if len(got) != len(remaining) {
		t.Fatalf("scan after delete yielded %v, want %v", got, remaining)
	}
	for i, v := range remaining {
		if got[i] != v {
			t.Fatalf("scan after delete = %v, want %v", got, remaining)
		}
	}
}

func TestDeleteEntry_EmptyingTreeResetsRoot(t *testing.T) {
	bt, _ := newTestTree(t)
	for v := int64(1); v <= 3; v++ {
		if _, err := bt.InsertEntry(keyOf(v), ridOf(v), nil); err != nil {
			t.Fatalf("InsertEntry(%d): %v", v, err)
		}
	}
	for v := int64(1); v <= 3; v++ {
		if ok, err := bt.DeleteEntry(keyOf(v), nil); err != nil || !ok {
			t.Fatalf("DeleteEntry(%d) = %v, %v", v, ok, err)
		}
	}

	root, err := bt.rootPage()
	if err != nil {
		t.Fatalf("rootPage: %v", err)
	}
	if root != sentinelPage {
		t.Fatalf("root_page = %d, want sentinel once the tree is empty", root)
	}
	if ok, err := bt.DeleteEntry(keyOf(1), nil); err != nil || ok {
		t.Fatalf("DeleteEntry on empty tree = %v, %v, want (false, nil)", ok, err)
	}
}

// TestDeleteEntry_OddMaxN_MaintainsMinOccupancy exercises the rebalance
// thresholds with an odd max_n, where floor(max_n/2) and ceil(max_n/2)
// diverge (spec §3's minimum-occupancy invariant; spec §4.4's Redistribute
// threshold is 2*ceil(max_n/2), not max_n).
func TestDeleteEntry_OddMaxN_MaintainsMinOccupancy(t *testing.T) {
	disk, err := diskmgr.NewManager(filepath.Join(t.TempDir(), "data"), diskmgr.MinPageSize)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	pool := buffer.NewBufferPool(disk, 64, nil)
	const oddColLen = 33 // (512-16-24)/(33+8) = 11, an odd max_n
	bt, err := Create(pool, disk, ColInt64, oddColLen)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if bt.MaxN()%2 == 0 {
		t.Fatalf("test assumes an odd max_n, got %d", bt.MaxN())
	}
	keyOfOdd := func(v int64) []byte { return EncodeInt64Key(v, oddColLen) }

	const n = 60
	for v := int64(1); v <= n; v++ {
		if _, err := bt.InsertEntry(keyOfOdd(v), ridOf(v), nil); err != nil {
			t.Fatalf("InsertEntry(%d): %v", v, err)
		}
	}
	for v := int64(1); v <= n; v += 3 {
		if ok, err := bt.DeleteEntry(keyOfOdd(v), nil); err != nil || !ok {
			t.Fatalf("DeleteEntry(%d) = %v, %v", v, ok, err)
		}
	}

	minKeys := (bt.MaxN() + 1) / 2
	root, err := bt.rootPage()
	if err != nil {
		t.Fatalf("rootPage: %v", err)
	}
	var walk func(pageNo int32, isRoot bool)
	walk = func(pageNo int32, isRoot bool) {
		frame, err := bt.fetchLatched(pageNo, true)
		if err != nil {
			t.Fatalf("fetchLatched(%d): %v", pageNo, err)
		}
		numKey := nodeNumKey(frame.Buf)
		isLeaf := nodeIsLeaf(frame.Buf)
		if !isRoot && numKey < minKeys {
			t.Fatalf("page %d has %d entries, want >= %d (max_n=%d)", pageNo, numKey, minKeys, bt.MaxN())
		}
		var children []int32
		if !isLeaf {
			for i := 0; i < numKey; i++ {
				children = append(children, bt.childPageAt(frame.Buf, i))
			}
		}
		bt.unlatchUnpin(held{pageNo, frame, true}, false)
		for _, c := range children {
			walk(c, false)
		}
	}
	walk(root, true)

	for v := int64(1); v <= n; v++ {
		rids, err := bt.GetValue(keyOfOdd(v))
		if err != nil {
			t.Fatalf("GetValue(%d): %v", v, err)
		}
		wantPresent := (v-1)%3 != 0
		if wantPresent != (len(rids) == 1) {
			t.Fatalf("GetValue(%d) = %v, want present=%v", v, rids, wantPresent)
		}
	}
}

func TestAbort_UndoesInsertAndDelete(t *testing.T) {
	bt, tm := newTestTree(t)
	// key 1 exists before the transaction starts, so only its delete is
	// part of the write-set that Abort rolls back.
	if _, err := bt.InsertEntry(keyOf(1), ridOf(1), nil); err != nil {
		t.Fatalf("InsertEntry: %v", err)
	}

	tr := tm.Begin()
	ctx := &record.Ctx{Txn: tr}

	if _, err := bt.InsertEntry(keyOf(2), ridOf(2), ctx); err != nil {
		t.Fatalf("InsertEntry: %v", err)
	}
	if _, err := bt.DeleteEntry(keyOf(1), ctx); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}

	if err := tm.Abort(tr); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	rids1, err := bt.GetValue(keyOf(1))
	if err != nil || len(rids1) != 1 || rids1[0] != ridOf(1) {
		t.Fatalf("GetValue(1) after abort = %v, %v, want [%v] (delete undone)", rids1, err, ridOf(1))
	}
	rids2, err := bt.GetValue(keyOf(2))
	if err != nil || len(rids2) != 0 {
		t.Fatalf("GetValue(2) after abort = %v, %v, want empty (insert undone)", rids2, err)
	}
}
