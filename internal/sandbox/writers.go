package sandbox

import (
	"bytes"
	"io"
	"strings"
)

// limitedWriter is an io.Writer that limits total bytes written.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)

	if lw.written >= lw.max {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		lw.discarded += int64(n) - remaining
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		return n, err // report the full length so the copier keeps draining
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}

// lineWriter hands every complete line to emit. Output beyond max bytes is
// counted in discarded but not emitted.
type lineWriter struct {
	emit      func(string)
	max       int64
	seen      int64
	truncated bool
	discarded int64
	partial   []byte
}

func (lw *lineWriter) Write(p []byte) (int, error) {
	n := len(p)
	if lw.seen >= lw.max {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil
	}
	if remaining := lw.max - lw.seen; int64(len(p)) > remaining {
		lw.truncated = true
		lw.discarded += int64(len(p)) - remaining
		p = p[:remaining]
	}
	lw.seen += int64(len(p))

	lw.partial = append(lw.partial, p...)
	for {
		i := bytes.IndexByte(lw.partial, '\n')
		if i < 0 {
			break
		}
		lw.send(lw.partial[:i])
		lw.partial = lw.partial[i+1:]
	}
	return n, nil
}

// Flush emits a trailing line that had no newline.
func (lw *lineWriter) Flush() {
	if len(lw.partial) > 0 {
		lw.send(lw.partial)
		lw.partial = nil
	}
}

func (lw *lineWriter) send(line []byte) {
	s := strings.TrimRight(string(line), "\r")
	if strings.TrimSpace(s) == "" || lw.emit == nil {
		return
	}
	lw.emit(s)
}
