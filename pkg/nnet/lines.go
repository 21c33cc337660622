package nnet

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Weight rows of wide layers easily exceed bufio's default token size.
const maxLineSize = 64 << 20

// lineScanner yields trimmed, non-blank lines and lets the parser push one
// line back after peeking at it.
type lineScanner struct {
	sc     *bufio.Scanner
	n      int
	held   string
	isHeld bool
}

func newLineScanner(r io.Reader) *lineScanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	return &lineScanner{sc: sc}
}

// next returns the next non-blank line. ok is false at end of input.
func (ls *lineScanner) next() (line string, ok bool, err error) {
	if ls.isHeld {
		ls.isHeld = false
		return ls.held, true, nil
	}
	for ls.sc.Scan() {
		ls.n++
		if line := strings.TrimSpace(ls.sc.Text()); line != "" {
			return line, true, nil
		}
	}
	return "", false, ls.sc.Err()
}

// need is next for places where end of input is an error.
func (ls *lineScanner) need(what string) (string, error) {
	line, ok, err := ls.next()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: unexpected end of input, want %s", ErrUnrecognizedLayerFormat, what)
	}
	return line, nil
}

func (ls *lineScanner) unread(line string) {
	ls.held, ls.isHeld = line, true
}

// badLine reports a line the parser could not place.
func (ls *lineScanner) badLine(line string) error {
	return fmt.Errorf("%w: line %d: %q", ErrUnrecognizedLayerFormat, ls.n, line)
}

// tagName returns "Sigmoid" for "<Sigmoid>".
func tagName(tok string) (string, bool) {
	if len(tok) < 3 || tok[0] != '<' || tok[len(tok)-1] != '>' {
		return "", false
	}
	return tok[1 : len(tok)-1], true
}
