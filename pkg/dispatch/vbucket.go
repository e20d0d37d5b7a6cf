package dispatch

import "hash/crc32"

// vbucketFor computes the partition id for key (§4.H): classic CRC-32
// (IEEE 802.3), sum right-shifted by 16 and masked to 15 bits, then
// reduced modulo the vbucket count. numVBuckets must be > 0.
func vbucketFor(key []byte, numVBuckets int) uint16 {
	sum := crc32.ChecksumIEEE(key)
	masked := (sum >> 16) & 0x7fff
	return uint16(int(masked) % numVBuckets)
}
