package merkle

import (
	"github.com/cespare/xxhash/v2"
)

// DefaultBucketSize is the target number of entries per VNode bucket before
// the bucket count doubles.
const DefaultBucketSize = 10000

// BucketIndex returns which bucket `name` falls into, given numBuckets
// buckets. A stable hash of the name keeps the assignment independent of
// insertion order and of any other field on the entry.
func BucketIndex(name string, numBuckets uint32) uint32 {
	if numBuckets == 0 {
		numBuckets = 1
	}
	return uint32(xxhash.Sum64String(name) % uint64(numBuckets))
}

// NumBucketsFor returns the smallest power-of-two bucket count such that
// numEntries/buckets <= targetSize, starting from 1 and doubling on
// overflow.
func NumBucketsFor(numEntries int, targetSize int) uint32 {
	if targetSize <= 0 {
		targetSize = DefaultBucketSize
	}
	n := uint32(1)
	for int(n)*targetSize < numEntries {
		n *= 2
	}
	return n
}

// BuildVNodeBuckets partitions children into NumBucketsFor(len(children),
// targetSize) buckets by BucketIndex, sorting each bucket's members
// ascending by name so that identical buckets produce identical hashes
// regardless of insertion order.
func BuildVNodeBuckets(children []VNodeChild, targetSize int) []*VNodeData {
	numBuckets := NumBucketsFor(len(children), targetSize)
	buckets := make([]*VNodeData, numBuckets)
	for i := range buckets {
		buckets[i] = &VNodeData{BucketIndex: uint32(i), NumBuckets: numBuckets}
	}
	for _, c := range children {
		idx := BucketIndex(c.Name, numBuckets)
		buckets[idx].Children = append(buckets[idx].Children, c)
	}
	for _, b := range buckets {
		SortChildren(b.Children)
	}
	return buckets
}
