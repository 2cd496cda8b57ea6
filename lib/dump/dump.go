package dump

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"math"

	"github.com/golang/snappy"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("dump")

// Magic opens every dump file
const Magic = "DSTATSDUMP\x00"

// maxFrameLen bounds the length fields read from a dump
const maxFrameLen = 1 << 30

var (
	// ErrBadMagic is returned for input that is not a dump file.
	ErrBadMagic = errors.New("not a dump file")
	// ErrCorrupt is returned for truncated or malformed frames.
	ErrCorrupt = errors.New("corrupt dump")
)

// --------------------------------------------------------------------------
// Writer
// --------------------------------------------------------------------------

// Writer appends key-value frames to a dump. Close must be called to flush
// the buffered frames.
type Writer struct {
	w     *bufio.Writer
	count int
}

// NewWriter writes the magic to w and returns a Writer for the frames.
func NewWriter(w io.Writer) (*Writer, error) {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(Magic); err != nil {
		return nil, err
	}
	return &Writer{w: bw}, nil
}

// Add writes one frame.
func (w *Writer) Add(key string, value []byte) error {
	if uint64(len(key)) > math.MaxUint32 {
		return fmt.Errorf("key of %d bytes is too long", len(key))
	}
	compressed := snappy.Encode(nil, value)

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(key)))
	if _, err := w.w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.w.WriteString(key); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(compressed)))
	if _, err := w.w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.w.Write(compressed); err != nil {
		return err
	}
	w.count++
	return nil
}

// Count returns the number of frames added so far.
func (w *Writer) Count() int {
	return w.count
}

// Close flushes the buffered frames. It does not close the underlying writer.
func (w *Writer) Close() error {
	return w.w.Flush()
}

// --------------------------------------------------------------------------
// Reader
// --------------------------------------------------------------------------

// Reader reads the frames of a dump.
type Reader struct {
	r   *bufio.Reader
	err error
}

// NewReader checks the magic of r and returns a Reader for its frames.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(br, magic); err != nil || !bytes.Equal(magic, []byte(Magic)) {
		return nil, ErrBadMagic
	}
	return &Reader{r: br}, nil
}

// Pairs yields the key-value pairs of the dump in file order. A read error
// ends the sequence and is reported by Err.
func (r *Reader) Pairs() iter.Seq2[string, []byte] {
	return func(yield func(string, []byte) bool) {
		for {
			key, err := r.readFrame(true)
			if err == io.EOF {
				return
			}
			if err != nil {
				r.fail(err)
				return
			}
			compressed, err := r.readFrame(false)
			if err != nil {
				r.fail(err)
				return
			}
			value, err := snappy.Decode(nil, compressed)
			if err != nil {
				r.fail(fmt.Errorf("%w: value of %q: %v", ErrCorrupt, key, err))
				return
			}
			if !yield(string(key), value) {
				return
			}
		}
	}
}

// Err returns the error that ended the last Pairs sequence.
func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) fail(err error) {
	r.err = err
	log.Errorf("reading dump: %v", err)
}

// readFrame reads one length prefixed field. A clean end of input before a
// key is io.EOF, everywhere else it is ErrCorrupt.
func (r *Reader) readFrame(isKey bool) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r.r, lenBuf[:]); err != nil {
		if err == io.EOF && isKey {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameLen {
		return nil, fmt.Errorf("%w: frame of %d bytes", ErrCorrupt, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return buf, nil
}
