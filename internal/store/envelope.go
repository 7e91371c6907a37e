package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"lukechampine.com/blake3"
)

// ErrChecksumMismatch is returned when a stored blob does not match its
// recorded checksum.
var ErrChecksumMismatch = errors.New("blob checksum mismatch")

// Envelope layout:
//
//	[magic 'T' 'G'][version][flags][blake3-256 of plain payload][body]
//
// body is the payload, zstd-compressed when flagCompressed is set.
const (
	envelopeVersion = 1
	flagCompressed  = 1 << 0
	checksumSize    = 32
	headerSize      = 4 + checksumSize
)

var envelopeMagic = [2]byte{'T', 'G'}

// Sealed wraps an ObjectStore so that every value is checksummed and
// optionally compressed on the way in and verified on the way out.
type Sealed struct {
	inner    ObjectStore
	compress bool
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
}

var _ ObjectStore = (*Sealed)(nil)

// NewSealed wraps inner. When compress is false values are checksummed but
// stored uncompressed; compressed values are still readable.
func NewSealed(inner ObjectStore, compress bool) (*Sealed, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &Sealed{inner: inner, compress: compress, encoder: encoder, decoder: decoder}, nil
}

// Inner returns the wrapped store.
func (s *Sealed) Inner() ObjectStore {
	return s.inner
}

// Seal encodes payload into an envelope.
func (s *Sealed) Seal(payload []byte) []byte {
	sum := blake3.Sum256(payload)

	var flags byte
	body := payload
	if s.compress {
		flags |= flagCompressed
		body = s.encoder.EncodeAll(payload, nil)
	}

	var buf bytes.Buffer
	buf.Grow(headerSize + len(body))
	buf.Write(envelopeMagic[:])
	buf.WriteByte(envelopeVersion)
	buf.WriteByte(flags)
	buf.Write(sum[:])
	buf.Write(body)
	return buf.Bytes()
}

// Open decodes an envelope and verifies its checksum.
func (s *Sealed) Open(blob []byte) ([]byte, error) {
	if len(blob) < headerSize {
		return nil, fmt.Errorf("envelope too small: %d bytes", len(blob))
	}
	if blob[0] != envelopeMagic[0] || blob[1] != envelopeMagic[1] {
		return nil, fmt.Errorf("envelope has bad magic %x", blob[:2])
	}
	if blob[2] != envelopeVersion {
		return nil, fmt.Errorf("unsupported envelope version %d", blob[2])
	}
	flags := blob[3]
	var want [checksumSize]byte
	copy(want[:], blob[4:headerSize])
	body := blob[headerSize:]

	payload := body
	if flags&flagCompressed != 0 {
		var err error
		payload, err = s.decoder.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("decompressing: %w", err)
		}
	}

	if blake3.Sum256(payload) != want {
		return nil, ErrChecksumMismatch
	}
	return payload, nil
}

// Get reads and verifies the value under key.
func (s *Sealed) Get(ctx context.Context, key string) ([]byte, bool, error) {
	blob, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	payload, err := s.Open(blob)
	if err != nil {
		return nil, false, fmt.Errorf("object %q: %w", key, err)
	}
	return payload, true, nil
}

// Put seals and stores value under key.
func (s *Sealed) Put(ctx context.Context, key string, value []byte) error {
	return s.inner.Put(ctx, key, s.Seal(value))
}

// Scan visits and verifies every value with the given prefix.
func (s *Sealed) Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error {
	return s.inner.Scan(ctx, prefix, func(key string, blob []byte) error {
		payload, err := s.Open(blob)
		if err != nil {
			return fmt.Errorf("object %q: %w", key, err)
		}
		return fn(key, payload)
	})
}

// Sync syncs the wrapped store.
func (s *Sealed) Sync(ctx context.Context) error {
	return s.inner.Sync(ctx)
}

// Close releases the codec resources. The wrapped store is not closed.
func (s *Sealed) Close() error {
	s.decoder.Close()
	return s.encoder.Close()
}
