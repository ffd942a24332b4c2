package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"

	"github.com/desertthunder/ytrpc/internal/models"
)

const headerSize = 4

// MaxMessageSize is the largest payload a frame may announce (1 MiB).
const MaxMessageSize = 1 << 20

var (
	ErrFrameTooLarge = fmt.Errorf("frame exceeds maximum message size")
	ErrMissingType   = fmt.Errorf("message has no type")
)

// Encode serializes msg as one length-prefixed frame.
func Encode(msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", msg.Type, err)
	}
	if len(payload) > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	frame := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[headerSize:], payload)
	return frame, nil
}

// Result is one decoded frame. Err is a [*models.FramingError] when the payload was malformed.
type Result struct {
	Message Message
	Err     error
}

// Decoder reassembles frames from an append-only byte stream.
//
// The zero value is ready to use. A Decoder is not safe for concurrent use.
type Decoder struct {
	buf []byte
}

// Feed appends chunk to the buffer and returns every frame completed by it.
//
// A trailing partial frame stays buffered. The returned error is non-nil only when the stream is
// unrecoverable ([ErrFrameTooLarge]); results decoded before that point are still returned.
func (d *Decoder) Feed(chunk []byte) ([]Result, error) {
	d.buf = append(d.buf, chunk...)

	var results []Result
	offset := 0
	for len(d.buf)-offset >= headerSize {
		size := int(binary.LittleEndian.Uint32(d.buf[offset:]))
		if size > MaxMessageSize {
			d.compact(offset)
			return results, fmt.Errorf("%w: header announces %d bytes", ErrFrameTooLarge, size)
		}
		if len(d.buf)-offset-headerSize < size {
			break
		}

		payload := d.buf[offset+headerSize : offset+headerSize+size]
		results = append(results, decodePayload(payload))
		offset += headerSize + size
	}

	d.compact(offset)
	return results, nil
}

// Buffered returns the number of bytes held for an incomplete frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

func (d *Decoder) compact(offset int) {
	if offset == 0 {
		return
	}
	d.buf = append(d.buf[:0], d.buf[offset:]...)
}

func decodePayload(payload []byte) Result {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Result{Err: &models.FramingError{Size: len(payload), Err: err}}
	}
	if msg.Type == "" {
		return Result{Err: &models.FramingError{Size: len(payload), Err: ErrMissingType}}
	}
	return Result{Message: msg}
}

// Writer writes frames to an underlying stream. It is safe for concurrent use.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write encodes msg and writes the complete frame in a single call.
func (w *Writer) Write(msg Message) error {
	frame, err := Encode(msg)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.w.Write(frame); err != nil {
		return fmt.Errorf("failed to write %s frame: %w", msg.Type, err)
	}
	return nil
}

// Reader pulls frames from an underlying stream on demand.
type Reader struct {
	r       io.Reader
	dec     Decoder
	pending []Result
	chunk   []byte
	err     error
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, chunk: make([]byte, 32*1024)}
}

// Next returns the next message.
//
// A malformed frame is reported as a [*models.FramingError] and the following call continues with the
// next frame. At end of stream Next returns [io.EOF], or [io.ErrUnexpectedEOF] when a partial frame was
// left over.
func (r *Reader) Next() (Message, error) {
	for {
		if len(r.pending) > 0 {
			res := r.pending[0]
			r.pending = r.pending[1:]
			return res.Message, res.Err
		}
		if r.err != nil {
			return Message{}, r.err
		}

		n, readErr := r.r.Read(r.chunk)
		if n > 0 {
			results, err := r.dec.Feed(r.chunk[:n])
			r.pending = append(r.pending, results...)
			if err != nil {
				r.err = err
				continue
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) && r.dec.Buffered() > 0 {
				readErr = io.ErrUnexpectedEOF
			}
			r.err = readErr
		}
	}
}

// Messages returns a lazy sequence over the frames of r.
//
// Framing errors are yielded alongside a zero Message and iteration continues. Iteration stops after
// the first fatal error, which is yielded unless it is a clean [io.EOF].
func Messages(r io.Reader) iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		reader := NewReader(r)
		for {
			msg, err := reader.Next()
			if err != nil {
				var framingErr *models.FramingError
				if errors.As(err, &framingErr) {
					if !yield(Message{}, err) {
						return
					}
					continue
				}
				if !errors.Is(err, io.EOF) {
					yield(Message{}, err)
				}
				return
			}
			if !yield(msg, nil) {
				return
			}
		}
	}
}
