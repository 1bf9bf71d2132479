package signaling

import (
	"crypto/rand"
	"math/big"
	"strings"
	"unicode"
)

// CodeAlphabet omits characters that are easy to misread (0/O, 1/I).
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeLength is the length of codes produced by GenerateCode.
const CodeLength = 6

// NormalizeCode trims the code, drops all whitespace and uppercases it.
// Codes that differ only by whitespace or case map to the same room.
func NormalizeCode(code string) string {
	var b strings.Builder
	b.Grow(len(code))
	for _, r := range code {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// GenerateCode returns a random pairing code drawn from CodeAlphabet.
func GenerateCode() (string, error) {
	buf := make([]byte, CodeLength)
	for i := range buf {
		n, err := randomIndex(len(CodeAlphabet))
		if err != nil {
			return "", err
		}
		buf[i] = CodeAlphabet[n]
	}
	return string(buf), nil
}

// randomIndex returns a cryptographically secure random index in [0, max).
func randomIndex(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}

// NormalizeName applies the display name rules shared by every lobby and
// join message: blank names become DefaultName, long names are cut.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultName
	}
	runes := []rune(name)
	if len(runes) > MaxNameLength {
		return string(runes[:MaxNameLength])
	}
	return name
}
