package deltasync

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/zhengshuai-xiao/fidxsync/internal"
	"github.com/zhengshuai-xiao/fidxsync/pkg/fidx"
)

// transfer writes the data of one target in a single forward pass, copying
// chunks found locally and fetching the rest in coalesced ranges.
type transfer struct {
	opts   *Options
	corpus *Corpus
	idx    *fidx.Index
	name   string
	source string
	res    *TargetResult

	out     io.Writer
	written int64
	queue   downloadQueue
	files   map[Handle]*os.File
}

func (t *transfer) run(ctx context.Context, dataTmp string, raw []byte) (err error) {
	f, err := os.OpenFile(dataTmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dataTmp, err)
	}
	defer func() {
		if f != nil {
			f.Close()
		}
	}()
	b := fidx.NewBuilder()
	t.out = io.MultiWriter(f, b)

	var rofs int64
	for i, ent := range t.idx.Entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		size := int64(ent.Size)
		if m, ok := t.corpus.Lookup(ent.Sum); ok {
			if err := t.flush(ctx); err != nil {
				return err
			}
			if data := t.candidate(m, ent); data != nil {
				if err := t.write(data); err != nil {
					return err
				}
				t.res.Reused += size
				rofs += size
				t.progress(i)
				continue
			}
			t.res.Fallbacks++
		}
		if !t.queue.fits(rofs, size) {
			if err := t.flush(ctx); err != nil {
				return err
			}
		}
		t.queue.add(i, rofs, size)
		rofs += size
		t.progress(i)
	}
	if err := t.flush(ctx); err != nil {
		return err
	}
	t.opts.Observer.ProgressDone()

	if t.written != t.idx.Size {
		return fmt.Errorf("%w: wrote %d bytes, index describes %d", internal.ErrShortRead, t.written, t.idx.Size)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", dataTmp, err)
	}
	err = f.Close()
	f = nil
	if err != nil {
		return fmt.Errorf("failed to close %s: %w", dataTmp, err)
	}

	t.res.DataSum = b.DataSum()
	if !bytes.Equal(b.Finish(), raw) {
		logger.Warnf("%s: published index is not the content defined index of its data", t.name)
	}
	t.closeFiles()
	return nil
}

// candidate reads the local copy behind m and returns it when it still
// hashes to ent.Sum, nil otherwise.
func (t *transfer) candidate(m Mapping, ent fidx.Entry) []byte {
	src := t.corpus.Source(m.Handle)
	data, err := t.readLocal(m)
	if err != nil {
		logger.Warnf("cannot read chunk %s at %d of %s, downloading it: %v", ent.Sum.Short(), m.Offset, src.DataPath, err)
		return nil
	}
	if got := fidx.BlobSum(data); got != ent.Sum {
		logger.Warnf("%v: %s at %d of %s hashes to %s, downloading it", internal.ErrCorruptChunk,
			ent.Sum.Short(), m.Offset, src.DataPath, got.Short())
		return nil
	}
	return data
}

func (t *transfer) readLocal(m Mapping) ([]byte, error) {
	f, ok := t.files[m.Handle]
	if !ok {
		var err error
		if f, err = os.Open(t.corpus.Source(m.Handle).DataPath); err != nil {
			return nil, err
		}
		t.files[m.Handle] = f
	}
	buf := make([]byte, m.Size)
	n, err := f.ReadAt(buf, m.Offset)
	if n == len(buf) {
		return buf, nil
	}
	if err == nil || err == io.EOF {
		err = fmt.Errorf("%w: got %d of %d bytes", internal.ErrShortRead, n, len(buf))
	}
	return nil, err
}

// flush fetches the queued range with exactly one request and checks every
// chunk in it before writing.
func (t *transfer) flush(ctx context.Context) error {
	if t.queue.empty() {
		return nil
	}
	q := t.queue
	t.queue.reset()

	t.res.Fetches++
	data, err := t.opts.Fetcher.Get(ctx, t.source, q.ofs, q.size)
	if err != nil {
		return fmt.Errorf("failed to fetch [%d, +%d): %w", q.ofs, q.size, err)
	}
	if int64(len(data)) != q.size {
		return fmt.Errorf("%w: fetched %d of %d bytes at %d", internal.ErrShortRead, len(data), q.size, q.ofs)
	}
	var pos int64
	for _, ent := range t.idx.Entries[q.first : q.first+q.count] {
		chunk := data[pos : pos+int64(ent.Size)]
		if fidx.BlobSum(chunk) != ent.Sum {
			return fmt.Errorf("%w: downloaded chunk %s at %d", internal.ErrCorruptChunk, ent.Sum.Short(), q.ofs+pos)
		}
		pos += int64(ent.Size)
	}
	if err := t.write(data); err != nil {
		return err
	}
	t.res.Downloaded += q.size
	logger.Tracef("fetched [%d, +%d) of %s", q.ofs, q.size, t.source)
	return nil
}

func (t *transfer) write(data []byte) error {
	n, err := internal.WriteAll(t.out, data)
	t.written += int64(n)
	return err
}

func (t *transfer) progress(i int) {
	if (i+1)%t.opts.ProgressEvery == 0 {
		t.opts.Observer.Progress(t.written, t.idx.Size, t.name)
	}
}

func (t *transfer) closeFiles() {
	for h, f := range t.files {
		f.Close()
		delete(t.files, h)
	}
}
