package backup

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// DefaultPasswordHash is the sha256 hex used when no hash is configured.
const DefaultPasswordHash = "16c5b5ddf1b27f16ad5f801bb83595d00e666cc53085e53a4b1e67b715016251"

// Verifier checks backup/restore passwords against a sha256 hex digest.
type Verifier struct {
	want []byte
}

func NewVerifier(hashHex string) (*Verifier, error) {
	h := strings.ToLower(strings.TrimSpace(hashHex))
	if h == "" {
		h = DefaultPasswordHash
	}
	raw, err := hex.DecodeString(h)
	if err != nil || len(raw) != sha256.Size {
		return nil, fmt.Errorf("backup password hash must be 64 hex chars")
	}
	return &Verifier{want: []byte(h)}, nil
}

// Verify reports whether secret hashes to the configured digest. The
// comparison runs in constant time.
func (v *Verifier) Verify(secret string) bool {
	if v == nil || secret == "" {
		return false
	}
	sum := sha256.Sum256([]byte(secret))
	got := []byte(hex.EncodeToString(sum[:]))
	return subtle.ConstantTimeCompare(got, v.want) == 1
}
