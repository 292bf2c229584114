package gossip

import (
	"encoding/binary"
	"io"
)

// Member is the membership record of a node.
//
// Records are never mutated. An add or remove with a newer timestamp
// supersedes the record with a new one.
type Member struct {
	Endpoint Endpoint `json:"endpoint" codec:"endpoint"`

	// TimeAdded is the UNIX timestamp in milliseconds the node joined.
	TimeAdded int64 `json:"time_added" codec:"time_added"`

	// TimeRemoved is the UNIX timestamp in milliseconds the node left, or
	// zero if it has never left.
	TimeRemoved int64 `json:"time_removed" codec:"time_removed"`
}

// Exists returns whether the member is part of the cluster. Ties are
// resolved in favour of the member being added.
func (m Member) Exists() bool {
	return m.TimeAdded >= m.TimeRemoved
}

// writeDigest writes the canonical binary form of the record used to compute
// the membership digest.
func (m Member) writeDigest(w io.Writer) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], uint16(len(m.Endpoint.Host)))
	_, _ = w.Write(buf[:])
	_, _ = io.WriteString(w, m.Endpoint.Host)
	_ = binary.Write(w, binary.BigEndian, int32(m.Endpoint.Port))
	_ = binary.Write(w, binary.BigEndian, m.TimeAdded)
	_ = binary.Write(w, binary.BigEndian, m.TimeRemoved)
}
