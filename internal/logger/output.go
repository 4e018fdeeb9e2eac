package logger

import (
	"bytes"
	"io"
	"sync"

	"github.com/harrison/buildgraph/internal/executor"
)

// OutputSink hands out a writer for the action output of one target. The
// returned function is called once the target has finished; either value
// may be nil.
type OutputSink interface {
	TargetOutput(target string) (io.Writer, func())
}

// TeeOutput combines sinks into an executor.OutputFunc that copies every
// byte a target writes to each of them.
func TeeOutput(sinks ...OutputSink) executor.OutputFunc {
	return func(target string) (io.Writer, func()) {
		var writers []io.Writer
		var dones []func()
		for _, s := range sinks {
			if s == nil {
				continue
			}
			w, done := s.TargetOutput(target)
			if w != nil {
				writers = append(writers, w)
			}
			if done != nil {
				dones = append(dones, done)
			}
		}
		finish := func() {
			for _, done := range dones {
				done()
			}
		}
		switch len(writers) {
		case 0:
			return io.Discard, finish
		case 1:
			return writers[0], finish
		default:
			return io.MultiWriter(writers...), finish
		}
	}
}

// prefixWriter starts every output line with a fixed prefix.
type prefixWriter struct {
	w      io.Writer
	prefix []byte
	inLine bool // not at start of line
}

func newPrefixWriter(w io.Writer, prefix string) *prefixWriter {
	return &prefixWriter{w: w, prefix: []byte(prefix)}
}

func (pw *prefixWriter) Write(p []byte) (n int, err error) {
	for len(p) > 0 {
		if !pw.inLine {
			if _, err := pw.w.Write(pw.prefix); err != nil {
				return n, err
			}
			pw.inLine = true
		}
		nl := bytes.IndexByte(p, '\n')
		if nl < 0 {
			m, err := pw.w.Write(p)
			return n + m, err
		}
		nl++
		m, err := pw.w.Write(p[:nl])
		n += m
		if err != nil {
			return n, err
		}
		pw.inLine = false
		p = p[nl:]
	}
	return n, nil
}

// Finish terminates a partial last line.
func (pw *prefixWriter) Finish() error {
	if !pw.inLine {
		return nil
	}
	pw.inLine = false
	_, err := pw.w.Write([]byte{'\n'})
	return err
}

// lockedWriter serializes writes that share one destination with the logger.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (lw lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}
