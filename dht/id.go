package dht

import (
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math/bits"
)

const (
	// IDBytes is the width of a NodeID in bytes.
	IDBytes = 20
	// IDBits is the width of a NodeID in bits, and the number of k-buckets
	// in a routing table.
	IDBits = IDBytes * 8
)

// NodeID is a fixed-width 160-bit identifier. Node identities and value
// keys share this space so XOR distance is meaningful between them.
type NodeID [IDBytes]byte

// String renders the identifier as 40 lowercase hex characters, the wire
// representation.
func (id NodeID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether the identifier is all zero bits.
func (id NodeID) IsZero() bool {
	return id == NodeID{}
}

// ParseNodeID decodes the wire representation of an identifier. It rejects
// anything that is not exactly 40 hex characters.
func ParseNodeID(s string) (NodeID, error) {
	var id NodeID
	if len(s) != IDBytes*2 {
		return id, fmt.Errorf("node id must be %d hex characters, got %d", IDBytes*2, len(s))
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid node id: %w", err)
	}
	copy(id[:], decoded)
	return id, nil
}

// Distance computes the XOR metric between two identifiers. It is
// symmetric, zero iff a == b, and satisfies the triangle inequality.
func Distance(a, b NodeID) NodeID {
	var d NodeID
	for i := 0; i < IDBytes; i++ {
		d[i] = a[i] ^ b[i]
	}
	return d
}

// CompareDistance orders two distances as big-endian unsigned integers,
// returning -1, 0 or 1. All closeness ordering in the routing table and
// lookups goes through this comparison.
func CompareDistance(a, b NodeID) int {
	return bytes.Compare(a[:], b[:])
}

// BucketIndex determines which k-bucket a peer belongs in relative to the
// local identifier: the position of the highest differing bit, so peers
// sharing a longer prefix with the local id land in lower buckets. The
// degenerate distance-zero case maps to bucket 0.
func BucketIndex(local, peer NodeID) int {
	d := Distance(local, peer)
	for i := 0; i < IDBytes; i++ {
		if d[i] == 0 {
			continue
		}
		return (IDBytes-1-i)*8 + bits.Len8(d[i]) - 1
	}
	return 0
}

// Digest maps arbitrary bytes into the identifier space. Identity
// derivation is pluggable so tests can pin identifiers deterministically.
type Digest func([]byte) NodeID

// SHA1Digest is the default digest: SHA-1, the 160-bit hash that defines
// the 40-hex-character wire format.
func SHA1Digest(data []byte) NodeID {
	return NodeID(sha1.Sum(data))
}

// DeriveKey maps a semantic name (such as "user:alice") into the
// identifier space so it can be compared against node identifiers.
func DeriveKey(d Digest, seed string) NodeID {
	return d([]byte(seed))
}

// RandomIDInBucket returns a random identifier whose distance from local
// has its highest set bit at the given bucket index, i.e. an id that the
// local routing table would file under that bucket. Used for bucket
// refresh lookups.
func RandomIDInBucket(local NodeID, index int) NodeID {
	var d NodeID
	// rand.Read on a fixed-size buffer cannot fail.
	_, _ = rand.Read(d[:])

	byteIdx := IDBytes - 1 - index/8
	bitIdx := uint(index % 8)
	for i := 0; i < byteIdx; i++ {
		d[i] = 0
	}
	d[byteIdx] &= byte(1<<bitIdx) - 1
	d[byteIdx] |= 1 << bitIdx

	return Distance(local, d)
}
