package audio

// chunkRing is a fixed-capacity FIFO ring of audio chunks. Pushing into a
// full ring evicts the oldest chunk. Not safe for concurrent use; the
// JitterSender serializes access.
type chunkRing struct {
	buf      [][]byte
	head     int // read position
	tail     int // write position
	count    int
	capacity int

	totalPushed  int64
	totalDropped int64
}

func newChunkRing(capacity int) *chunkRing {
	if capacity < 1 {
		capacity = 1
	}
	return &chunkRing{
		buf:      make([][]byte, capacity),
		capacity: capacity,
	}
}

// push appends a chunk, evicting the oldest first when full. Reports
// whether an eviction happened.
func (r *chunkRing) push(chunk []byte) bool {
	dropped := false
	if r.count == r.capacity {
		r.buf[r.head] = nil
		r.head = (r.head + 1) % r.capacity
		r.count--
		r.totalDropped++
		dropped = true
	}

	r.buf[r.tail] = chunk
	r.tail = (r.tail + 1) % r.capacity
	r.count++
	r.totalPushed++
	return dropped
}

// pop removes and returns the oldest chunk.
func (r *chunkRing) pop() ([]byte, bool) {
	if r.count == 0 {
		return nil, false
	}
	chunk := r.buf[r.head]
	r.buf[r.head] = nil // release for GC
	r.head = (r.head + 1) % r.capacity
	r.count--
	return chunk, true
}

func (r *chunkRing) len() int {
	return r.count
}

// clear discards all queued chunks.
func (r *chunkRing) clear() {
	for i := range r.buf {
		r.buf[i] = nil
	}
	r.head = 0
	r.tail = 0
	r.count = 0
}
