package occdex

// FailureKind classifies a failed bulk item.
type FailureKind int

const (
	// FailureOther is any failure that is not a version conflict.
	FailureOther FailureKind = iota
	// FailureConflict means the item's version precondition did not hold.
	FailureConflict
)

func (k FailureKind) String() string {
	if k == FailureConflict {
		return "conflict"
	}
	return "other"
}

// BulkItemFailure describes why one item of a bulk request was rejected.
type BulkItemFailure struct {
	Kind   FailureKind
	Status int
	Reason string
	Err    error
}

// BulkItem is the outcome of one document in a bulk request.
// Exactly one of the version fields or Failure is meaningful.
type BulkItem struct {
	Index       string
	ID          string
	SeqNo       int64
	PrimaryTerm int64
	Status      int
	Failure     *BulkItemFailure
}

// Failed reports whether the item was rejected.
func (i *BulkItem) Failed() bool { return i.Failure != nil }

// IsConflict reports whether the item was rejected by a version conflict.
func (i *BulkItem) IsConflict() bool {
	return i.Failure != nil && i.Failure.Kind == FailureConflict
}

// BulkResult holds per-item outcomes in input order.
type BulkResult struct {
	Items []BulkItem
}

// HasFailures reports whether any item failed.
func (r *BulkResult) HasFailures() bool {
	for i := range r.Items {
		if r.Items[i].Failed() {
			return true
		}
	}
	return false
}

// Succeeded returns the items that were written.
func (r *BulkResult) Succeeded() []BulkItem {
	return r.filter(false)
}

// Failed returns the items that were rejected.
func (r *BulkResult) Failed() []BulkItem {
	return r.filter(true)
}

// ByID returns the first item for the given document id.
func (r *BulkResult) ByID(id string) (BulkItem, bool) {
	for _, it := range r.Items {
		if it.ID == id {
			return it, true
		}
	}
	return BulkItem{}, false
}

func (r *BulkResult) filter(failed bool) []BulkItem {
	out := make([]BulkItem, 0, len(r.Items))
	for _, it := range r.Items {
		if it.Failed() == failed {
			out = append(out, it)
		}
	}
	return out
}
