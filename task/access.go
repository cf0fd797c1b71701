package task

// AccessType is the declared intent of a DataAccess region. The three
// specialised kinds (reduction/commutative/concurrent, see IsSpecial)
// never participate in data-copy steps; the weak-* kinds are classified
// for copy steps like their non-weak counterparts.
type AccessType int

const (
	AccessRead AccessType = iota
	AccessWrite
	AccessReadWrite
	AccessWeakRead
	AccessWeakWrite
	AccessWeakReadWrite
	AccessReduction
	AccessCommutative
	AccessConcurrent
)

// IsWeak reports whether the access type is one of the weak variants.
func (a AccessType) IsWeak() bool {
	switch a {
	case AccessWeakRead, AccessWeakWrite, AccessWeakReadWrite:
		return true
	default:
		return false
	}
}

// IsSpecial reports whether the access is reduction/commutative/concurrent,
// the three kinds that always resolve to a Null copy step regardless of
// source/target, per spec §4.3's copy-step construction rules.
func (a AccessType) IsSpecial() bool {
	switch a {
	case AccessReduction, AccessCommutative, AccessConcurrent:
		return true
	default:
		return false
	}
}

// Region is an address range a DataAccess covers.
type Region struct {
	Address uintptr
	Length  uintptr
}

// DataAccess records one declared region a task touches, plus the
// bookkeeping the workflow engine needs to build a copy step for it.
type DataAccess struct {
	Region Region
	Type   AccessType

	// Source is the access's current location. The zero value's
	// directory bit is false and Kind is DeviceHost, which is NOT the
	// same as "unset" — use HasSource/ClearSource to track satisfiability
	// explicitly rather than overloading the zero MemoryPlace.
	source    MemoryPlace
	hasSource bool

	// Output, when non-nil, is the taskwait output location a fragment
	// of this access must end up at. Nil for ordinary (non-taskwait)
	// accesses.
	Output *MemoryPlace

	// ValidNamespaceSelf is set when the copy-step construction decided
	// the target is local (host, or this node's own memory node) — it
	// records this node's index so downstream registration can use it.
	ValidNamespaceSelf *NodeIndex

	Weak bool
}

// HasSource reports whether the access is read-satisfied, i.e. its
// current location is known. A false return models "current location
// is null" from spec §3: not yet read-satisfied.
func (d *DataAccess) HasSource() bool { return d.hasSource }

// Source returns the current location. Callers must check HasSource first.
func (d *DataAccess) Source() MemoryPlace { return d.source }

// SetSource records the access's current (source) location, marking it read-satisfied.
func (d *DataAccess) SetSource(mp MemoryPlace) {
	d.source = mp
	d.hasSource = true
}

// ClearSource resets read-satisfiability, modelling "not yet read-satisfied".
func (d *DataAccess) ClearSource() {
	d.source = MemoryPlace{}
	d.hasSource = false
}
