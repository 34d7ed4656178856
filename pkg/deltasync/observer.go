package deltasync

// Observer receives the user facing messages and progress of a sync.
// Implementations must not block for long; they run on the sync goroutine.
type Observer interface {
	Log(msg string)
	// Progress reports done of total bytes for label.
	Progress(done, total int64, label string)
	// ProgressDone ends a run of Progress calls.
	ProgressDone()
}

// LogObserver sends messages to the package logger, progress at debug level.
type LogObserver struct{}

func (LogObserver) Log(msg string) {
	logger.Info(msg)
}

func (LogObserver) Progress(done, total int64, label string) {
	logger.Debugf("%s: %d/%d", label, done, total)
}

func (LogObserver) ProgressDone() {}

type nopObserver struct{}

func (nopObserver) Log(string)                    {}
func (nopObserver) Progress(int64, int64, string) {}
func (nopObserver) ProgressDone()                 {}
