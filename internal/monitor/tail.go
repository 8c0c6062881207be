package monitor

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

const (
	tailInitialWindow = 64 << 10
	tailMaxWindow     = 4 << 20
)

// Tail holds the trailing records of a session log, oldest first.
type Tail struct {
	Records []Record
}

// Last returns the trailing record.
func (t Tail) Last() (Record, bool) {
	if len(t.Records) == 0 {
		return Record{}, false
	}
	return t.Records[len(t.Records)-1], true
}

func (t Tail) Empty() bool { return len(t.Records) == 0 }

// ReadTail returns up to k trailing records of the log at path. It reads
// backward from the end in doubling windows and only falls back to a full
// forward read when no complete line fits in the largest window.
//
// A final line without a newline is kept only if it is a complete JSON
// document; otherwise it is still being written and is ignored.
func ReadTail(path string, k int) (Tail, error) {
	if k <= 0 {
		k = 1
	}

	f, err := os.Open(path)
	if err != nil {
		return Tail{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Tail{}, err
	}
	size := info.Size()
	if size == 0 {
		return Tail{}, nil
	}

	for window := int64(tailInitialWindow); ; window *= 2 {
		start := size - window
		if start < 0 {
			start = 0
		}
		buf := make([]byte, size-start)
		n, err := f.ReadAt(buf, start)
		if err != nil && err != io.EOF {
			return Tail{}, fmt.Errorf("read %s: %w", path, err)
		}
		buf = buf[:n]

		lines := completeLines(buf, start > 0)
		if len(lines) >= k || start == 0 {
			return tailFromLines(lines, k), nil
		}
		if window >= tailMaxWindow {
			if len(lines) > 0 {
				return tailFromLines(lines, k), nil
			}
			break
		}
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Tail{}, err
	}
	lines, err := streamLastLines(f, k)
	if err != nil {
		return Tail{}, fmt.Errorf("read %s: %w", path, err)
	}
	return tailFromLines(lines, k), nil
}

// completeLines splits buf into non-blank lines. When clipped is set the
// buffer starts mid-file and its first segment may be a partial line.
func completeLines(buf []byte, clipped bool) [][]byte {
	if clipped {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			return nil
		}
		buf = buf[idx+1:]
	}

	var lines [][]byte
	for len(buf) > 0 {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			if isCompleteTrailer(buf) {
				lines = append(lines, buf)
			}
			break
		}
		if line := bytes.TrimSpace(buf[:idx]); len(line) > 0 {
			lines = append(lines, line)
		}
		buf = buf[idx+1:]
	}
	return lines
}

func isCompleteTrailer(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && json.Valid(b)
}

// streamLastLines reads r to the end keeping only the last k non-blank lines.
func streamLastLines(r io.Reader, k int) ([][]byte, error) {
	br := bufio.NewReaderSize(r, tailInitialWindow)
	ring := make([][]byte, 0, k)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			complete := line[len(line)-1] == '\n'
			trimmed := bytes.TrimSpace(line)
			if len(trimmed) > 0 && (complete || json.Valid(trimmed)) {
				if len(ring) == k {
					copy(ring, ring[1:])
					ring = ring[:k-1]
				}
				ring = append(ring, trimmed)
			}
		}
		if err == io.EOF {
			return ring, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func tailFromLines(lines [][]byte, k int) Tail {
	if len(lines) > k {
		lines = lines[len(lines)-k:]
	}
	records := make([]Record, 0, len(lines))
	for _, line := range lines {
		records = append(records, ParseRecord(line))
	}
	return Tail{Records: records}
}
