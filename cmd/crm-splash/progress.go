package main

import (
	"fmt"
	"io"
)

// progressLine renders sync progress as a single rewritten line, the CLI
// stand-in for the splash screen's progress bar.
type progressLine struct {
	w       io.Writer
	active  bool
	lastLen int
}

func newProgressLine(w io.Writer) *progressLine {
	return &progressLine{w: w}
}

// update redraws the line with the current percent and label. Events arrive
// synchronously from the download loop, already in non-decreasing order.
func (p *progressLine) update(percent int, label string) {
	line := fmt.Sprintf("%3d%% %s", percent, label)
	pad := p.lastLen - len(line)
	if pad < 0 {
		pad = 0
	}
	fmt.Fprintf(p.w, "\r%s%*s", line, pad, "")
	p.lastLen = len(line)
	p.active = true
}

// finish terminates the progress line if anything was drawn
func (p *progressLine) finish() {
	if p.active {
		fmt.Fprintln(p.w)
		p.active = false
	}
}
