package occdex

// VersionAwareMapper wraps a base ResultMapper and back-fills the version
// token of every mapped object from the hit envelope, which the stored body
// does not carry.
//
// Objects are mutated in place. Only types whose values implement Versioned
// (in practice pointer types) are back-filled; others pass through untouched.
type VersionAwareMapper[T any] struct {
	base ResultMapper[T]
}

// NewVersionAwareMapper wraps base.
func NewVersionAwareMapper[T any](base ResultMapper[T]) *VersionAwareMapper[T] {
	return &VersionAwareMapper[T]{base: base}
}

// MapResults maps every hit, then sets each object's token from the hit with
// the same id. Objects without a matching hit get the unassigned sentinels.
func (m *VersionAwareMapper[T]) MapResults(resp *SearchResponse) ([]T, error) {
	items, err := m.base.MapResults(resp)
	if err != nil {
		return nil, err
	}

	seqNos := make(map[string]int64, len(resp.Hits))
	terms := make(map[string]int64, len(resp.Hits))
	for i := range resp.Hits {
		seqNos[resp.Hits[i].ID] = resp.Hits[i].SeqNo
		terms[resp.Hits[i].ID] = resp.Hits[i].PrimaryTerm
	}

	for _, item := range items {
		v, ok := any(item).(Versioned)
		if !ok {
			continue
		}
		seqNo, ok := seqNos[v.DocumentID()]
		if !ok {
			seqNo = UnassignedSeqNo
		}
		term, ok := terms[v.DocumentID()]
		if !ok {
			term = UnassignedPrimaryTerm
		}
		v.SetVersion(seqNo, term)
	}
	return items, nil
}

// MapSearchHit maps one hit and copies its token directly.
func (m *VersionAwareMapper[T]) MapSearchHit(hit *Hit) (T, error) {
	item, err := m.base.MapSearchHit(hit)
	if err != nil {
		return item, err
	}
	if v, ok := any(item).(Versioned); ok {
		v.SetVersion(hit.SeqNo, hit.PrimaryTerm)
	}
	return item, nil
}
