package audio

// RingBuffer is a fixed-capacity sample buffer that accumulates incoming
// audio until a full chunk-sized block is ready. Capacity is twice the
// block size so a write batch can straddle a block boundary without
// forcing a drop. It is not safe for concurrent use: the recorder's
// ingest goroutine is the single reader and writer.
type RingBuffer struct {
	buf       []float32
	blockSize int
	read      int
	write     int
	size      int
}

// NewRingBuffer creates a ring buffer emitting blocks of blockSize samples.
func NewRingBuffer(blockSize int) *RingBuffer {
	if blockSize <= 0 {
		blockSize = 1
	}
	return &RingBuffer{
		buf:       make([]float32, blockSize*2),
		blockSize: blockSize,
	}
}

// Write appends samples, returning the number that did not fit and were
// dropped. Overflow means the consumer stalled for a full block duration.
func (r *RingBuffer) Write(samples []float32) int {
	free := len(r.buf) - r.size
	n := len(samples)
	dropped := 0
	if n > free {
		dropped = n - free
		n = free
	}
	if n == 0 {
		return dropped
	}
	first := copy(r.buf[r.write:], samples[:n])
	if first < n {
		copy(r.buf, samples[first:n])
	}
	r.write = (r.write + n) % len(r.buf)
	r.size += n
	return dropped
}

// Blocks reports how many complete blocks are currently buffered.
func (r *RingBuffer) Blocks() int {
	return r.size / r.blockSize
}

// ReadBlock removes and returns exactly one block of samples, or nil when
// less than a full block is buffered. The returned slice is a fresh copy.
func (r *RingBuffer) ReadBlock() []float32 {
	if r.size < r.blockSize {
		return nil
	}
	return r.TakeUpTo(r.blockSize)
}

// TakeUpTo removes and returns at most n buffered samples in FIFO order.
// Returns nil when the buffer is empty.
func (r *RingBuffer) TakeUpTo(n int) []float32 {
	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]float32, n)
	first := copy(out, r.buf[r.read:])
	if first < n {
		copy(out[first:], r.buf[:n-first])
	}
	r.read = (r.read + n) % len(r.buf)
	r.size -= n
	return out
}

// Flush removes and returns everything currently buffered, which is the
// final, shorter-than-nominal block at stop time. Nil when empty.
func (r *RingBuffer) Flush() []float32 {
	return r.TakeUpTo(r.size)
}

// Len returns the number of buffered samples not yet taken.
func (r *RingBuffer) Len() int {
	return r.size
}

// BlockSize returns the emitted block size in samples.
func (r *RingBuffer) BlockSize() int {
	return r.blockSize
}

// Reset discards all buffered samples.
func (r *RingBuffer) Reset() {
	r.read = 0
	r.write = 0
	r.size = 0
}
