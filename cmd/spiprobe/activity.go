package main

import (
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
)

// barActivity shows long console operations as a progress bar on the host.
// A new bar starts whenever the unit count changes.
type barActivity struct {
	w     io.Writer
	bar   *progressbar.ProgressBar
	total int
}

func newBarActivity(w io.Writer) *barActivity {
	return &barActivity{w: w}
}

func (a *barActivity) Progress(current, total int) {
	if total <= 0 {
		return
	}
	if a.bar == nil || total != a.total {
		a.Idle()
		a.total = total
		a.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(a.w),
			progressbar.OptionSetDescription("Working"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowBytes(false),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	a.bar.Set(current)
}

func (a *barActivity) Idle() {
	if a.bar != nil {
		a.bar.Finish()
		a.bar = nil
	}
	a.total = 0
}
