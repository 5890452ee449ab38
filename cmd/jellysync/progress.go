package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"jellysync/internal/transfer"
)

const progressInterval = 250 * time.Millisecond

// progressPrinter draws a single self-overwriting progress line. It is only
// active on terminals.
type progressPrinter struct {
	out     io.Writer
	enabled bool

	mu    sync.Mutex
	last  time.Time
	drawn bool
}

func newProgressPrinter(out io.Writer, enabled bool) *progressPrinter {
	return &progressPrinter{out: out, enabled: enabled}
}

func (p *progressPrinter) update(progress transfer.Progress) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	if now.Sub(p.last) < progressInterval {
		return
	}
	p.last = now
	p.drawn = true
	fmt.Fprintf(p.out, "\r\x1b[K%s", progressLine(progress))
}

func (p *progressPrinter) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.drawn {
		fmt.Fprint(p.out, "\r\x1b[K")
		p.drawn = false
	}
}

func progressLine(progress transfer.Progress) string {
	name := progress.File.RelPath
	if len(name) > 48 {
		name = "..." + name[len(name)-45:]
	}
	if progress.Total <= 0 {
		return fmt.Sprintf("%s  %s", name, humanize.IBytes(uint64(progress.Written)))
	}
	percent := float64(progress.Written) / float64(progress.Total) * 100
	return fmt.Sprintf("%s  %5.1f%%  %s / %s", name, percent,
		humanize.IBytes(uint64(progress.Written)), humanize.IBytes(uint64(progress.Total)))
}
