// Package permission implements the process-wide, runtime-mutable policy
// table gating the six global capabilities of the server.
//
// Grounded on the design note in spec §9 ("Global mutable permission
// table... Model as a struct behind a read-write lock or as a set of
// atomic booleans"): each flag is an atomic.Bool so a read never races a
// write and never needs to block on one, matching spec §5's "atomic
// reads, unsynchronised writes by operator UI" discipline.
package permission

import "sync/atomic"

// Table holds the six global flags from spec §3. The zero value denies
// everything; callers must explicitly enable flags (typically by loading
// them from configuration at startup).
type Table struct {
	allUserGetMessage  atomic.Bool
	allUserPutMessage  atomic.Bool
	distributeMessage  atomic.Bool
	allUserGetFilelist atomic.Bool
	allUserDownloadFile atomic.Bool
	allUserUploadFile  atomic.Bool
}

// New returns a Table with every flag set to the given default.
func New(defaultValue bool) *Table {
	t := &Table{}
	t.SetAllUserGetMessage(defaultValue)
	t.SetAllUserPutMessage(defaultValue)
	t.SetDistributeMessage(defaultValue)
	t.SetAllUserGetFilelist(defaultValue)
	t.SetAllUserDownloadFile(defaultValue)
	t.SetAllUserUploadFile(defaultValue)
	return t
}

func (t *Table) AllUserGetMessage() bool   { return t.allUserGetMessage.Load() }
func (t *Table) AllUserPutMessage() bool   { return t.allUserPutMessage.Load() }
func (t *Table) DistributeMessage() bool   { return t.distributeMessage.Load() }
func (t *Table) AllUserGetFilelist() bool  { return t.allUserGetFilelist.Load() }
func (t *Table) AllUserDownloadFile() bool { return t.allUserDownloadFile.Load() }
func (t *Table) AllUserUploadFile() bool   { return t.allUserUploadFile.Load() }

func (t *Table) SetAllUserGetMessage(v bool)   { t.allUserGetMessage.Store(v) }
func (t *Table) SetAllUserPutMessage(v bool)   { t.allUserPutMessage.Store(v) }
func (t *Table) SetDistributeMessage(v bool)   { t.distributeMessage.Store(v) }
func (t *Table) SetAllUserGetFilelist(v bool)  { t.allUserGetFilelist.Store(v) }
func (t *Table) SetAllUserDownloadFile(v bool) { t.allUserDownloadFile.Store(v) }
func (t *Table) SetAllUserUploadFile(v bool)   { t.allUserUploadFile.Store(v) }

// Snapshot is a point-in-time copy of every flag, useful for logging or an
// operator status view. It is not itself synchronized with any single
// instant — each field is read independently, per spec §5.
type Snapshot struct {
	AllUserGetMessage   bool
	AllUserPutMessage   bool
	DistributeMessage   bool
	AllUserGetFilelist  bool
	AllUserDownloadFile bool
	AllUserUploadFile   bool
}

func (t *Table) Snapshot() Snapshot {
	return Snapshot{
		AllUserGetMessage:   t.AllUserGetMessage(),
		AllUserPutMessage:   t.AllUserPutMessage(),
		DistributeMessage:   t.DistributeMessage(),
		AllUserGetFilelist:  t.AllUserGetFilelist(),
		AllUserDownloadFile: t.AllUserDownloadFile(),
		AllUserUploadFile:   t.AllUserUploadFile(),
	}
}
