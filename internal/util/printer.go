package util

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Printer serializes writes to stdout so output from parallel task
// workers does not interleave mid-line.
type Printer struct {
	mu  sync.Mutex
	out io.Writer
}

var Default = &Printer{out: os.Stdout}

// SetOutput redirects the printer, mainly for tests.
func (p *Printer) SetOutput(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out = w
}

func (p *Printer) Print(a ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.out, a...)
}

func (p *Printer) Printf(format string, a ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, a...)
}

func (p *Printer) Println(a ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, a...)
}
