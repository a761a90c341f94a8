package backend

import (
	"bytes"
	"io"
	"sync"
	"time"
)

// maxLineLength 超过该长度的无换行输出会被强制切分
const maxLineLength = 64 * 1024

// outputSink fans a process's stdout and stderr into one destination,
// one prefixed line at a time. Write errors on dst are dropped: a failing
// log file must never stop the copy and leave the child blocked on a full pipe.
type outputSink struct {
	mu  sync.Mutex
	dst io.Writer
	id  string
	now func() time.Time
}

func newOutputSink(dst io.Writer, launchID string) *outputSink {
	if dst == nil {
		dst = io.Discard
	}
	short := launchID
	if len(short) > 8 {
		short = short[:8]
	}
	return &outputSink{dst: dst, id: short, now: time.Now}
}

// Stream returns the writer for one named stream ("stdout" / "stderr").
func (s *outputSink) Stream(name string) *lineWriter {
	return &lineWriter{sink: s, stream: name}
}

func (s *outputSink) writeLine(stream string, line []byte) {
	var b bytes.Buffer
	b.WriteString(s.now().Format("2006-01-02 15:04:05.000"))
	b.WriteString(" [" + s.id + " " + stream + "] ")
	b.Write(line)
	if len(line) == 0 || line[len(line)-1] != '\n' {
		b.WriteByte('\n')
	}

	s.mu.Lock()
	_, _ = s.dst.Write(b.Bytes())
	s.mu.Unlock()
}

type lineWriter struct {
	sink   *outputSink
	stream string

	// os/exec writes each stream from a single goroutine; Flush runs after
	// Wait, so buf needs no lock of its own.
	buf []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.sink.writeLine(w.stream, w.buf[:i+1])
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) >= maxLineLength {
		w.sink.writeLine(w.stream, w.buf)
		w.buf = w.buf[:0]
	}
	return len(p), nil
}

// Flush writes any trailing partial line.
func (w *lineWriter) Flush() {
	if len(w.buf) > 0 {
		w.sink.writeLine(w.stream, w.buf)
		w.buf = nil
	}
}
