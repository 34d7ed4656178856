package deltasync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/zhengshuai-xiao/fidxsync/internal"
	"github.com/zhengshuai-xiao/fidxsync/pkg/fetch"
	"github.com/zhengshuai-xiao/fidxsync/pkg/fidx"
	"github.com/zhengshuai-xiao/fidxsync/pkg/meta"
)

// LockName is the lock file that keeps two processes from syncing the same
// directory.
const LockName = ".fidxsync.lock"

var stampTimes = internal.StampTimes

type Options struct {
	Fetcher  fetch.Fetcher
	LocalDir string
	Observer Observer
	// Journal is optional. When set, every target leaves a record and the
	// whole run holds its lease lock.
	Journal     meta.Journal
	LockTimeout time.Duration

	// Include is a doublestar pattern on target names.
	Include       string
	MaxQueueSize  int64
	ProgressEvery int
}

type Engine struct {
	opts Options
}

func NewEngine(opts Options) (*Engine, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("no fetcher")
	}
	if opts.LocalDir == "" {
		opts.LocalDir = "."
	}
	st, err := os.Stat(opts.LocalDir)
	if err != nil {
		return nil, fmt.Errorf("local directory: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("local directory %s is not a directory", opts.LocalDir)
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.MaxQueueSize <= 0 {
		opts.MaxQueueSize = internal.DefaultMaxQueueSize
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = internal.DefaultProgressEvery
	}
	return &Engine{opts: opts}, nil
}

// TargetResult is the outcome of syncing one target.
type TargetResult struct {
	Name    string
	Outcome meta.Outcome
	// Missing is what the plan expected to download.
	Missing    int64
	Reused     int64
	Downloaded int64
	// Fallbacks counts local candidates that failed re-hashing.
	Fallbacks int
	Fetches   int
	FileSum   fidx.Sum
	DataSum   fidx.Sum
	Err       error
	Started   time.Time
	Finished  time.Time
}

type Report struct {
	Session string
	Base    string
	Targets []*TargetResult
}

func (r *Report) Failed() int {
	n := 0
	for _, t := range r.Targets {
		if t.Outcome == meta.OutcomeFailed {
			n++
		}
	}
	return n
}

// Err summarizes the failed targets, nil when every target succeeded.
func (r *Report) Err() error {
	failed := r.Failed()
	if failed == 0 {
		return nil
	}
	for _, t := range r.Targets {
		if t.Err != nil {
			return fmt.Errorf("%d of %d targets failed, first %s: %w", failed, len(r.Targets), t.Name, t.Err)
		}
	}
	return fmt.Errorf("%d of %d targets failed", failed, len(r.Targets))
}

// Run syncs every target found at base into the local directory. Failing
// targets are reported in the Report; the error is for failures that stop
// the whole run.
func (e *Engine) Run(ctx context.Context, base string) (*Report, error) {
	obs := e.opts.Observer
	session := uuid.NewString()
	internal.SetLogID(session[:8])
	defer internal.SetLogID("")

	lock := flock.New(filepath.Join(e.opts.LocalDir, LockName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", e.opts.LocalDir, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s is locked by another process", internal.ErrLocked, e.opts.LocalDir)
	}
	defer lock.Unlock()

	if e.opts.Journal != nil {
		unlock, err := e.opts.Journal.Lock(ctx, "sync", e.opts.LockTimeout)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	baseDir, targets, err := ResolveTargets(ctx, e.opts.Fetcher, base)
	if err != nil {
		return nil, err
	}
	if targets, err = MatchTargets(targets, e.opts.Include); err != nil {
		return nil, err
	}
	obs.Log(fmt.Sprintf("base is %s, %d targets:", baseDir, len(targets)))
	for _, name := range targets {
		obs.Log("  " + name)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no target names found in %s", base)
	}

	obs.Log("reading existing index files")
	corpus, err := LoadCorpus(e.opts.LocalDir, targets)
	if err != nil {
		return nil, fmt.Errorf("failed to load local indices: %w", err)
	}
	logger.Infof("session %s: %d local sources, %d chunks", session, corpus.Sources(), corpus.Len())

	report := &Report{Session: session, Base: baseDir}
	for _, name := range targets {
		res := e.SyncTarget(ctx, corpus, baseDir, name)
		report.Targets = append(report.Targets, res)
		e.record(ctx, session, res)
	}
	logger.Infof("session %s done, %d of %d targets failed", session, report.Failed(), len(report.Targets))
	return report, nil
}

// SyncTarget brings one target up to date. Whatever happens, the previous
// local files stay intact until the new ones are complete and verified.
func (e *Engine) SyncTarget(ctx context.Context, corpus *Corpus, baseDir, name string) *TargetResult {
	obs := e.opts.Observer
	obs.Log("")
	obs.Log(name)
	res := &TargetResult{Name: name, Started: time.Now()}
	if err := e.syncTarget(ctx, corpus, baseDir, name, res); err != nil {
		res.Outcome = meta.OutcomeFailed
		res.Err = err
		obs.Log(fmt.Sprintf("    error: %v", err))
		logger.Errorf("sync of %s failed: %v", name, err)
	}
	res.Finished = time.Now()
	return res
}

func (e *Engine) syncTarget(ctx context.Context, corpus *Corpus, baseDir, name string, res *TargetResult) (err error) {
	obs := e.opts.Observer
	indexPath := filepath.Join(e.opts.LocalDir, name)
	dataPath := fidx.DataName(indexPath)
	indexTmp := indexPath + internal.TmpSuffix
	dataTmp := dataPath + internal.TmpSuffix
	defer func() {
		if err != nil {
			internal.RemoveQuietly(indexTmp, dataTmp)
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := e.opts.Fetcher.Get(ctx, fetch.Join(baseDir, name), 0, fetch.ToEnd)
	if err != nil {
		return fmt.Errorf("failed to download index: %w", err)
	}
	if err := os.WriteFile(indexTmp, raw, 0644); err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}
	idx, err := fidx.Parse(raw)
	if err != nil {
		return fmt.Errorf("downloaded index: %w", err)
	}
	res.FileSum = idx.FileSum

	if h, ok := corpus.Handle(name); ok && corpus.Source(h).Index.FileSum == idx.FileSum {
		obs.Log("    already up to date.")
		internal.RemoveQuietly(indexTmp, dataTmp)
		res.Outcome = meta.OutcomeUpToDate
		return nil
	}

	chunks := 0
	for _, ent := range idx.Entries {
		if _, ok := corpus.Lookup(ent.Sum); !ok {
			res.Missing += int64(ent.Size)
			chunks++
		}
	}
	obs.Log(fmt.Sprintf("    need to download %s of %s in %d chunks.",
		humanize.IBytes(uint64(res.Missing)), humanize.IBytes(uint64(idx.Size)), chunks))

	t := &transfer{
		opts:   &e.opts,
		corpus: corpus,
		idx:    idx,
		name:   name,
		source: fetch.Join(baseDir, fidx.DataName(name)),
		res:    res,
		queue:  downloadQueue{max: e.opts.MaxQueueSize},
		files:  make(map[Handle]*os.File),
	}
	defer t.closeFiles()
	if err := t.run(ctx, dataTmp, raw); err != nil {
		return err
	}

	// rename keeps the times, so the pair is installed already matching
	if err := stampTimes(time.Now(), dataTmp, indexTmp); err != nil {
		return err
	}
	if err := internal.ReplaceFile(dataTmp, dataPath); err != nil {
		return err
	}
	if err := internal.ReplaceFile(indexTmp, indexPath); err != nil {
		// the data is in place; a stale index is regenerated next time
		return err
	}
	res.Outcome = meta.OutcomeUpdated
	logger.Infof("%s updated: reused %s, downloaded %s in %d fetches, %d fallbacks",
		name, internal.FormatBytes(res.Reused), internal.FormatBytes(res.Downloaded), res.Fetches, res.Fallbacks)
	return nil
}

func (e *Engine) record(ctx context.Context, session string, res *TargetResult) {
	if e.opts.Journal == nil {
		return
	}
	rec := &meta.SyncRecord{
		Session:    session,
		Target:     res.Name,
		Outcome:    res.Outcome,
		Reused:     res.Reused,
		Downloaded: res.Downloaded,
		Fetches:    res.Fetches,
		Started:    res.Started,
		Finished:   res.Finished,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	if res.FileSum != (fidx.Sum{}) {
		rec.FileSum = res.FileSum.String()
	}
	if err := e.opts.Journal.Record(context.WithoutCancel(ctx), rec); err != nil {
		logger.Warnf("failed to journal %s: %v", res.Name, err)
	}
}
