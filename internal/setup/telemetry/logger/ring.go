package logger

// lineRing keeps the most recent lines written to a log file.
type lineRing struct {
	lines   []string
	next    int
	full    bool
	pending int // lines pushed since the file was last compacted
}

func newLineRing(capacity int) *lineRing {
	return &lineRing{lines: make([]string, max(capacity, 1))}
}

func (r *lineRing) push(line string) {
	r.lines[r.next] = line
	r.next++

	if r.next == len(r.lines) {
		r.next = 0
		r.full = true
	}

	r.pending++
}

// snapshot returns the kept lines, oldest first.
func (r *lineRing) snapshot() []string {
	if !r.full {
		return append([]string(nil), r.lines[:r.next]...)
	}

	out := make([]string, 0, len(r.lines))
	out = append(out, r.lines[r.next:]...)

	return append(out, r.lines[:r.next]...)
}
