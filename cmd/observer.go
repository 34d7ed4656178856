package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
)

// consoleObserver prints sync messages, and on a terminal a progress line
// that is redrawn in place.
type consoleObserver struct {
	w       io.Writer
	tty     bool
	lineLen int
}

func (o *consoleObserver) Log(msg string) {
	o.clear()
	fmt.Fprintln(o.w, msg)
}

func (o *consoleObserver) Progress(done, total int64, label string) {
	if !o.tty {
		return
	}
	line := fmt.Sprintf("    %s/%s", humanize.IBytes(uint64(done)), humanize.IBytes(uint64(total)))
	if total > 0 {
		line += fmt.Sprintf(" (%d%%)", done*100/total)
	}
	o.clear()
	fmt.Fprint(o.w, line+"\r")
	o.lineLen = len(line)
}

func (o *consoleObserver) ProgressDone() {
	o.clear()
}

func (o *consoleObserver) clear() {
	if o.lineLen > 0 {
		fmt.Fprint(o.w, strings.Repeat(" ", o.lineLen)+"\r")
		o.lineLen = 0
	}
}
