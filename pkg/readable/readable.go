// Package readable defines the capability shared by every layer the DB
// controller reads through: the memtable and the SSTable. Expressing it
// as one small interface lets the controller walk a heterogeneous list
// of layers (two memtables, then N SSTables) with a single loop instead
// of duplicating the same probe-and-decide logic per concrete type.
package readable

// Lookup is the result of a layered-read probe: Present distinguishes
// "key not in this table" from "key in this table", and Tombstone
// distinguishes a deletion marker from a live value once Present is
// true.
type Lookup struct {
	Present   bool
	Tombstone bool
}

// Table is implemented by *sstable.SSTable directly and by
// *memtable.Memtable through its AsTable adapter.
// Err is non-nil only for a table backed by disk I/O that has failed;
// an in-memory table's methods never fail.
type Table interface {
	Lookup(key []byte) (Lookup, error)
	Get(key []byte) (value []byte, found bool, err error)
	Size() int
}
