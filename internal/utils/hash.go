package utils

import (
    "encoding/hex"

    "golang.org/x/crypto/blake2b"
)

// KeyDigest returns a short hex digest of s.  It keeps user-controlled input
// such as query strings out of Redis key names.
func KeyDigest(s string) string {
    sum := blake2b.Sum256([]byte(s))
    return hex.EncodeToString(sum[:16])
}
