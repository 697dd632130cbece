package occdex

import (
	"fmt"

	"github.com/kailas-cloud/occdex/internal/db"
)

// Version sentinels reported by documents that have never been persisted.
const (
	UnassignedSeqNo       = db.UnassignedSeqNo
	UnassignedPrimaryTerm = db.UnassignedPrimaryTerm
)

// Versioned is implemented by every entity stored through a Repository.
//
// The (SeqNo, PrimaryTerm) pair is a conflict-detection token: an identical
// pair means no other write happened since this copy was read or written.
// It carries no ordering meaning beyond that.
type Versioned interface {
	DocumentID() string
	SeqNo() int64
	PrimaryTerm() int64
	SetVersion(seqNo, primaryTerm int64)
}

// Version is an embeddable implementation of the version half of Versioned.
// Its zero value reports the unassigned sentinels.
//
//	type Post struct {
//	    occdex.Version `json:"-"`
//	    ID string `json:"id"`
//	}
type Version struct {
	seqNo       int64
	primaryTerm int64
	assigned    bool
}

// NewVersion returns a Version holding the given token.
func NewVersion(seqNo, primaryTerm int64) Version {
	var v Version
	v.SetVersion(seqNo, primaryTerm)
	return v
}

// SeqNo returns the sequence number of the last successful write.
func (v *Version) SeqNo() int64 {
	if !v.assigned {
		return UnassignedSeqNo
	}
	return v.seqNo
}

// PrimaryTerm returns the primary term of the last successful write.
func (v *Version) PrimaryTerm() int64 {
	if !v.assigned {
		return UnassignedPrimaryTerm
	}
	return v.primaryTerm
}

// SetVersion overwrites the token. Setting both sentinels resets it.
func (v *Version) SetVersion(seqNo, primaryTerm int64) {
	v.seqNo = seqNo
	v.primaryTerm = primaryTerm
	v.assigned = seqNo != UnassignedSeqNo || primaryTerm != UnassignedPrimaryTerm
}

// Token formats the token as seq_no/primary_term.
func (v *Version) Token() string {
	return fmt.Sprintf("%d/%d", v.SeqNo(), v.PrimaryTerm())
}

// IsPersisted reports whether doc carries a token returned by the store.
// A token with either half unassigned is treated as never persisted.
func IsPersisted(doc Versioned) bool {
	return doc.SeqNo() >= 0 && doc.PrimaryTerm() > UnassignedPrimaryTerm
}
