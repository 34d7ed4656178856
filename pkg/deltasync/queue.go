package deltasync

// downloadQueue is the one range of missing bytes waiting to be fetched.
// It covers the consecutive entries [first, first+count) of the index.
type downloadQueue struct {
	first int
	count int
	ofs   int64
	size  int64
	max   int64
}

func (q *downloadQueue) empty() bool {
	return q.size == 0
}

// fits reports whether a miss at ofs of size bytes can join the queue.
func (q *downloadQueue) fits(ofs, size int64) bool {
	if q.empty() {
		return true
	}
	return q.ofs+q.size == ofs && q.size+size <= q.max
}

func (q *downloadQueue) add(entry int, ofs, size int64) {
	if q.empty() {
		q.first, q.count, q.ofs = entry, 0, ofs
	}
	q.count++
	q.size += size
}

func (q *downloadQueue) reset() {
	q.first, q.count, q.ofs, q.size = 0, 0, 0, 0
}
