package utils // package utils provides id generation and key hashing helpers

import (
    "crypto/rand"
    "math/big"
)

// Base62 is the alphabet used for meeting ids and short link codes.  Every
// character is safe inside a URL path and a store key.
const Base62 = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// RandomString returns n characters drawn uniformly from alphabet using
// crypto/rand.
func RandomString(n int, alphabet string) (string, error) {
    max := big.NewInt(int64(len(alphabet)))
    out := make([]byte, n)
    for i := range out {
        idx, err := rand.Int(rand.Reader, max)
        if err != nil {
            return "", err
        }
        out[i] = alphabet[idx.Int64()]
    }
    return string(out), nil
}

// IsBase62 reports whether s is exactly n base62 characters.
func IsBase62(s string, n int) bool {
    if len(s) != n {
        return false
    }
    for i := 0; i < len(s); i++ {
        c := s[i]
        if !(c >= '0' && c <= '9' || c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z') {
            return false
        }
    }
    return true
}
