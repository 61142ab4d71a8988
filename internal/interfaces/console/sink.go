package console

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"xfolio/internal/application/port"
)

// Sink 终端输出；live 行与命令输出共用同一个 writer，需要串行
type Sink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewSink() *Sink { return NewSinkTo(os.Stdout) }

func NewSinkTo(w io.Writer) *Sink { return &Sink{w: w} }

func (s *Sink) WriteLive(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprint(s.w, line) // no newline
	return err
}

// 打印快照行后，留一个空行占位；不立刻重画 live，等下一次变化刷新
func (s *Sink) WriteSnapshot(ts time.Time, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "\n%s %s\n\n", ts.Format("2006-01-02 15:04:05"), line)
	return err
}

func (s *Sink) NewLine() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprint(s.w, "\n")
	return err
}

// Printf 命令输出：先换行离开 live 行
func (s *Sink) Printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprint(s.w, "\n")
	fmt.Fprintf(s.w, format, args...)
}

var _ port.Sink = (*Sink)(nil)
