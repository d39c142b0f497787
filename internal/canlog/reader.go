package canlog

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrEmptyLine is returned for blank lines. They carry no frame and are not
// counted as malformed.
var ErrEmptyLine = errors.New("canlog: empty line")

// MaxLineBytes caps a single log line, terminator included. Longer lines are
// consumed and reported as a *ParseError so memory stays bounded.
const MaxLineBytes = 64 * 1024

// skipCheckEvery is how many lines Skip reads between context checks.
const skipCheckEvery = 1024

// Reader reads a frame log sequentially. Line numbers are 1-based.
type Reader struct {
	br     *bufio.Reader
	number int
	bytes  int64
	// OnLine, when set, is called with the byte size of every line consumed.
	OnLine func(size int64)
}

func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, MaxLineBytes)}
}

// Number returns the number of lines consumed so far.
func (r *Reader) Number() int {
	return r.number
}

// BytesRead returns the bytes consumed so far.
func (r *Reader) BytesRead() int64 {
	return r.bytes
}

// ReadLine returns the next raw line without its terminator. It returns
// io.EOF once no more lines are available, and a *ParseError for a line
// longer than MaxLineBytes.
func (r *Reader) ReadLine() (string, error) {
	chunk, err := r.br.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		size, err := r.discardLine(int64(len(chunk)))
		if err != nil {
			return "", err
		}
		r.consumed(size)
		return "", parseErr(r.number, ErrParse, "line longer than %d bytes", MaxLineBytes)
	}
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", errors.Wrapf(err, "read line %d", r.number+1)
		}
		if len(chunk) == 0 {
			return "", io.EOF
		}
	}
	text := string(chunk)
	r.consumed(int64(len(text)))
	return strings.TrimRight(text, "\r\n"), nil
}

// discardLine drops the rest of an oversized line and returns its full size.
func (r *Reader) discardLine(size int64) (int64, error) {
	for {
		chunk, err := r.br.ReadSlice('\n')
		size += int64(len(chunk))
		switch {
		case err == nil, errors.Is(err, io.EOF):
			return size, nil
		case !errors.Is(err, bufio.ErrBufferFull):
			return size, errors.Wrapf(err, "read line %d", r.number+1)
		}
	}
}

func (r *Reader) consumed(size int64) {
	r.number++
	r.bytes += size
	if r.OnLine != nil {
		r.OnLine(size)
	}
}

// Skip discards up to n lines and returns how many were discarded. Reaching
// the end of input early is not an error. ctx is checked every
// skipCheckEvery lines.
func (r *Reader) Skip(ctx context.Context, n int) (int, error) {
	done := 0
	for done < n {
		if done%skipCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return done, err
			}
		}
		if _, err := r.ReadLine(); err != nil {
			if errors.Is(err, io.EOF) {
				return done, nil
			}
			if !IsRecordError(err) {
				return done, err
			}
		}
		done++
	}
	return done, nil
}

// NextLine reads and tokenizes the next line. Blank lines yield ErrEmptyLine
// and malformed ones a *ParseError.
func (r *Reader) NextLine() (Line, error) {
	text, err := r.ReadLine()
	if err != nil {
		return Line{}, err
	}
	if strings.TrimSpace(strings.TrimPrefix(text, "\uFEFF")) == "" {
		return Line{}, errors.Wrapf(ErrEmptyLine, "line %d", r.number)
	}
	return ParseLine(r.number, text)
}

// Next reads the next line as a Record.
func (r *Reader) Next() (Record, error) {
	line, err := r.NextLine()
	if err != nil {
		return Record{}, err
	}
	return line.Record()
}

// IsRecordError reports whether err concerns a single line or packet rather
// than the source as a whole.
func IsRecordError(err error) bool {
	var perr *ParseError
	return errors.As(err, &perr)
}
