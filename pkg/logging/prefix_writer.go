package logging

import (
	"bytes"
	"io"
)

// PrefixWriter marks every text log line with the emoji of the component
// that wrote it. hclog names sub-loggers "parent.child"; the last segment of
// the name picks the prefix. Partial lines are held back until their newline
// arrives.
type PrefixWriter struct {
	prefixes map[string]string
	fallback string
	w        io.Writer
	pending  []byte
}

// NewPrefixWriter writes to w, prefixing lines of the named components from
// prefixes and every other line with fallback.
func NewPrefixWriter(prefixes map[string]string, fallback string, w io.Writer) *PrefixWriter {
	return &PrefixWriter{
		prefixes: prefixes,
		fallback: fallback,
		w:        w,
	}
}

func (pw *PrefixWriter) Write(p []byte) (int, error) {
	pw.pending = append(pw.pending, p...)

	for {
		end := bytes.IndexByte(pw.pending, '\n')
		if end < 0 {
			break
		}
		line := pw.pending[:end+1]

		prefix := pw.fallback
		if pfx, ok := pw.prefixes[component(line)]; ok {
			prefix = pfx
		}
		if _, err := io.WriteString(pw.w, prefix); err != nil {
			return 0, err
		}
		if _, err := pw.w.Write(line); err != nil {
			return 0, err
		}
		pw.pending = pw.pending[end+1:]
	}

	return len(p), nil
}

// component extracts the last segment of the logger name from an hclog text
// line: "<time> [LEVEL]  cartfriend.settings: message ...".
func component(line []byte) string {
	i := bytes.IndexByte(line, ']')
	if i < 0 {
		return ""
	}
	rest := bytes.TrimLeft(line[i+1:], " ")
	j := bytes.Index(rest, []byte(": "))
	if j < 0 {
		return ""
	}
	name := rest[:j]
	if bytes.IndexByte(name, ' ') >= 0 {
		return ""
	}
	if k := bytes.LastIndexByte(name, '.'); k >= 0 {
		name = name[k+1:]
	}
	return string(name)
}
