package codec

import (
	"bytes"
	"compress/gzip"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/pavetrack/field-sync/internal/logger"
)

// ErrMalformedBlob is returned by Decode for blobs that do not carry a
// valid frame.
var ErrMalformedBlob = errors.New("malformed payload blob")

// Frame layout: version(1) | keyID(1) | flags(1) | nonce(12) | ciphertext.
// The nonce is prepended the same way the ciphertext side locates it in a
// sealed DEK blob.
const (
	frameVersion byte = 0x01

	flagCompressed byte = 1 << 0
)

// Pipeline encodes payloads for persistence and transport. Compression
// failure degrades gracefully to store-uncompressed; encryption failure is
// always fatal and aborts the enqueue.
type Pipeline struct {
	keys *Keyring

	// minCompress skips gzip for payloads too small to win anything back.
	minCompress int
	logger      *logger.Logger
}

func NewPipeline(keys *Keyring, minCompress int, log *logger.Logger) *Pipeline {
	if minCompress <= 0 {
		minCompress = 128
	}
	return &Pipeline{keys: keys, minCompress: minCompress, logger: log}
}

// Encode compresses then encrypts payload under the active key.
func (p *Pipeline) Encode(payload []byte) ([]byte, error) {
	keyID, aead, err := p.keys.encoder()
	if err != nil {
		return nil, err
	}

	plaintext, flags := p.compress(payload)

	nonce := make([]byte, aead.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	blob := make([]byte, 0, 3+len(nonce)+len(plaintext)+aead.Overhead())
	blob = append(blob, frameVersion, keyID, flags)
	blob = append(blob, nonce...)
	blob = aead.Seal(blob, nonce, plaintext, blob[:3])

	return blob, nil
}

// Decode reverses Encode: decrypt, then decompress if the frame says so.
// Blobs encoded under any key still held by the ring decode, which is what
// keeps a key rotation window seamless.
func (p *Pipeline) Decode(blob []byte) ([]byte, error) {
	if len(blob) < 3 {
		return nil, ErrMalformedBlob
	}
	if blob[0] != frameVersion {
		return nil, fmt.Errorf("%w: unsupported frame version %d", ErrMalformedBlob, blob[0])
	}

	keyID, flags := blob[1], blob[2]
	aead, err := p.keys.decoder(keyID)
	if err != nil {
		return nil, err
	}

	rest := blob[3:]
	if len(rest) < aead.NonceSize() {
		return nil, ErrMalformedBlob
	}
	nonce, ciphertext := rest[:aead.NonceSize()], rest[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, blob[:3])
	if err != nil {
		return nil, fmt.Errorf("decrypt payload: %w", err)
	}

	if flags&flagCompressed == 0 {
		return plaintext, nil
	}

	zr, err := gzip.NewReader(bytes.NewReader(plaintext))
	if err != nil {
		return nil, fmt.Errorf("open compressed payload: %w", err)
	}
	defer zr.Close()

	payload, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress payload: %w", err)
	}
	return payload, nil
}

// compress gzips payload when it is large enough and actually shrinks.
// Incompressible or failing payloads pass through unchanged; losing
// compression is acceptable, losing the mutation is not.
func (p *Pipeline) compress(payload []byte) ([]byte, byte) {
	if len(payload) < p.minCompress {
		return payload, 0
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		p.logger.Warn().Err(err).Msg("payload compression failed, storing uncompressed")
		return payload, 0
	}
	if err := zw.Close(); err != nil {
		p.logger.Warn().Err(err).Msg("payload compression failed, storing uncompressed")
		return payload, 0
	}

	if buf.Len() >= len(payload) {
		return payload, 0
	}
	return buf.Bytes(), flagCompressed
}
