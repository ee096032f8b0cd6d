package bridge

import (
	"bufio"
	"io"
	"iter"
	"strings"
	"unicode/utf8"
)

// Lines returns a lazy sequence of the lines read from r.
//
// Line terminators ("\n" or "\r\n") are stripped, and a final line without a
// terminator is still yielded. Lines that are not valid UTF-8 are dropped.
// The sequence ends at EOF or at the first read error; read errors are not
// reported. Ranging over the sequence blocks until each line arrives.
func Lines(r io.Reader) iter.Seq[string] {
	return func(yield func(string) bool) {
		br := bufio.NewReaderSize(r, 64*1024)
		for {
			line, err := br.ReadString('\n')
			if line != "" {
				if strings.HasSuffix(line, "\n") {
					line = strings.TrimSuffix(line[:len(line)-1], "\r")
				}
				if utf8.ValidString(line) {
					if !yield(line) {
						return
					}
				}
			}
			if err != nil {
				return
			}
		}
	}
}
