package main

import (
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/maauso/faceswap/internal/processor"
)

// progressBars shows one bar per processor stage.
type progressBars struct {
	w io.Writer

	mu      sync.Mutex
	current processor.ID
	bar     *progressbar.ProgressBar
}

func newProgressBars(w io.Writer) *progressBars {
	return &progressBars{w: w}
}

// Update implements processor.ProgressFunc.
func (p *progressBars) Update(id processor.ID, done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil || id != p.current {
		if p.bar != nil {
			_ = p.bar.Finish()
		}
		p.current = id
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription(string(id)),
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionShowCount(),
		)
	}
	if int64(done) > p.bar.State().CurrentNum {
		_ = p.bar.Set(done)
	}
}

// Finish completes the active bar, if any.
func (p *progressBars) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}
}
