// Package protocol holds the pure pieces of the datagram transfer protocol:
// chunk arithmetic, the additive checksum, and the packet, ack and control
// message encodings.
package protocol

// Checksum is the sum of all bytes modulo 256. It only catches accidental
// corruption and offers no protection against tampering.
func Checksum(data []byte) uint8 {
	var sum uint8
	for _, b := range data {
		sum += b
	}
	return sum
}

// ChunkCount returns ceil(fileSize / chunkSize).
func ChunkCount(fileSize uint64, chunkSize int) uint64 {
	if chunkSize <= 0 {
		return 0
	}
	c := uint64(chunkSize)
	return (fileSize + c - 1) / c
}

// ChunkLength returns the number of meaningful bytes in chunk index.
// Every chunk is chunkSize long except the last, which carries the remainder.
func ChunkLength(fileSize uint64, chunkSize int, index uint64) int {
	count := ChunkCount(fileSize, chunkSize)
	if index >= count {
		return 0
	}
	if index < count-1 {
		return chunkSize
	}
	return int(fileSize - (count-1)*uint64(chunkSize))
}

// ChunkOffset is the byte offset of chunk index within the file.
func ChunkOffset(chunkSize int, index uint64) int64 {
	return int64(index) * int64(chunkSize)
}
