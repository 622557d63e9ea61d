package worker

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/vadash/openvault-sub001/internal/memory"
)

// Fingerprint hashes every field of every event that can affect scoring.
// Two memory sets with the same fingerprint score identically.
func Fingerprint(events []*memory.Event) uint64 {
	h := xxhash.New()
	var buf [8]byte

	writeInt := func(v int64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		_, _ = h.Write(buf[:])
	}
	writeString := func(s string) {
		writeInt(int64(len(s)))
		_, _ = h.WriteString(s)
	}

	writeInt(int64(len(events)))
	for _, ev := range events {
		writeString(ev.ID)
		writeString(ev.Summary)
		writeInt(int64(ev.Importance))
		writeInt(int64(len(ev.MessageIDs)))
		for _, id := range ev.MessageIDs {
			writeInt(int64(id))
		}
		writeInt(int64(len(ev.Embedding)))
		for _, f := range ev.Embedding {
			writeInt(int64(math.Float32bits(f)))
		}
	}
	return h.Sum64()
}
