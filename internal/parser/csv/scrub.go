package csv

import (
	"bytes"
	"io"
	"sort"

	"catalog/internal/config"
)

// scrubber is an io.Reader that replaces every occurrence of pat with repl
// without buffering the whole stream. It holds back the last len(pat)-1 bytes
// of each block so that matches spanning two reads are still found.
type scrubber struct {
	r     io.Reader
	pat   []byte
	repl  []byte
	carry []byte
	out   bytes.Buffer
	chunk []byte
	eof   bool
}

func newScrubber(r io.Reader, pat, repl string) *scrubber {
	return &scrubber{
		r:     r,
		pat:   []byte(pat),
		repl:  []byte(repl),
		chunk: make([]byte, 64*1024),
	}
}

func (s *scrubber) Read(p []byte) (int, error) {
	for s.out.Len() == 0 {
		if s.eof {
			return 0, io.EOF
		}
		n, err := s.r.Read(s.chunk)
		block := append(s.carry, s.chunk[:n]...)
		block = bytes.ReplaceAll(block, s.pat, s.repl)

		if err == io.EOF {
			s.out.Write(block)
			s.carry = s.carry[:0]
			s.eof = true
			continue
		}
		if err != nil {
			return 0, err
		}
		keep := len(s.pat) - 1
		if keep > len(block) {
			keep = len(block)
		}
		s.out.Write(block[:len(block)-keep])
		s.carry = append(make([]byte, 0, keep), block[len(block)-keep:]...)
	}
	return s.out.Read(p)
}

// withScrub chains one scrubber per entry of the "scrub" option (bad
// sequence -> replacement). Entries are applied in key order so the result is
// deterministic.
func withScrub(r io.Reader, opt config.Options) io.Reader {
	pairs := opt.StringMap("scrub")
	if len(pairs) == 0 {
		return r
	}
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		if k != "" && k != pairs[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		r = newScrubber(r, k, pairs[k])
	}
	return r
}
