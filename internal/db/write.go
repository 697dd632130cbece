package db

// Sentinels used by stores for documents that were never written.
const (
	UnassignedSeqNo       int64 = -2
	UnassignedPrimaryTerm int64 = 0
)

// ContentTypeJSON is the only body encoding the drivers accept.
const ContentTypeJSON = "application/json"

// OpType selects how a write treats an existing document.
type OpType string

const (
	// OpTypeIndex creates or overwrites the document.
	OpTypeIndex OpType = "index"
	// OpTypeCreate fails with a version conflict if the document exists.
	OpTypeCreate OpType = "create"
)

// Refresh controls when a write becomes visible to search.
type Refresh string

const (
	// RefreshNone returns as soon as the write is durable.
	RefreshNone Refresh = ""
	// RefreshTrue forces an immediate refresh of the affected shards.
	RefreshTrue Refresh = "true"
	// RefreshWaitFor blocks until the write is visible to search.
	RefreshWaitFor Refresh = "wait_for"
)

// ParseRefresh maps a config value onto a Refresh policy.
func ParseRefresh(s string) (Refresh, bool) {
	switch s {
	case "", "none", "false":
		return RefreshNone, true
	case "true":
		return RefreshTrue, true
	case "wait_for":
		return RefreshWaitFor, true
	default:
		return RefreshNone, false
	}
}

// WriteRequest is a single document write.
type WriteRequest struct {
	Index       string
	ID          string
	Body        []byte
	ContentType string
	OpType      OpType

	// HasPrecondition enables the compare-and-swap check against IfSeqNo/IfPrimaryTerm.
	HasPrecondition bool
	IfSeqNo         int64
	IfPrimaryTerm   int64

	// Refresh applies to single writes only; Bulk takes its own policy.
	Refresh Refresh
}

// WriteResult is the version pair assigned by a successful write.
type WriteResult struct {
	SeqNo       int64
	PrimaryTerm int64
}

// BulkItemResult is the outcome of one item in a bulk request.
type BulkItemResult struct {
	Index       string
	ID          string
	SeqNo       int64
	PrimaryTerm int64
	Status      int
	// Err is nil on success. Conflicts wrap ErrVersionConflict.
	Err error
}

// Failed reports whether the item was rejected.
func (r BulkItemResult) Failed() bool { return r.Err != nil }
