// Package fingerprint computes the structural identity of a plan.
package fingerprint

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/mickamy/scanprof/internal/model"
)

// Fingerprint identifies a plan shape. Equal fingerprints mean the plans have
// the same nodes in the same order, regardless of their counters.
type Fingerprint uint64

func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}

// MarshalText encodes the fingerprint as hex so it can key JSON objects.
func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Compute hashes the (idx, selectid, parentid, name, explain) sequence of nodes in
// the given order. Integers are fixed-width and strings length-prefixed, so no two
// distinct sequences share an encoding.
func Compute(nodes []model.PlanNode) Fingerprint {
	d := xxhash.New()
	buf := make([]byte, 0, 128)

	buf = binary.BigEndian.AppendUint64(buf, uint64(len(nodes)))
	for _, n := range nodes {
		buf = binary.BigEndian.AppendUint64(buf, uint64(int64(n.Idx)))
		buf = binary.BigEndian.AppendUint64(buf, uint64(int64(n.SelectID)))
		buf = binary.BigEndian.AppendUint64(buf, uint64(int64(n.ParentID)))
		buf = appendString(buf, n.Name)
		buf = appendString(buf, n.Explain)
		_, _ = d.Write(buf)
		buf = buf[:0]
	}
	_, _ = d.Write(buf)

	return Fingerprint(d.Sum64())
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint64(buf, uint64(len(s)))
	return append(buf, s...)
}
