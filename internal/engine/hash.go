package engine

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"github.com/zeebo/blake3"

	"github.com/bamsammich/mirror/internal/transport"
)

func newHasher() hash.Hash {
	return blake3.New()
}

// hashReader returns the hex BLAKE3 digest of everything read from r.
func hashReader(r io.Reader) (string, error) {
	h := newHasher()
	buf := make([]byte, 32*1024)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", err
	}
	return digest(h), nil
}

func digest(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}

// verifyRemote reads p back from the session and compares its digest with
// the digest of the content that was sent.
func verifyRemote(session transport.Session, p, sent string) error {
	rc, err := session.Retrieve(p)
	if err != nil {
		return fmt.Errorf("read back: %w", err)
	}
	defer rc.Close()

	got, err := hashReader(rc)
	if err != nil {
		return fmt.Errorf("read back: %w", err)
	}
	if got != sent {
		return fmt.Errorf("checksum mismatch: sent %s, stored %s", sent, got)
	}
	return nil
}
