// Package roomcode produces short human-typable room identifiers.
package roomcode

import (
	"crypto/rand"
	"log"
	"math/big"
)

// Alphabet excludes visually ambiguous glyphs (0/O, 1/I/L).
const (
	Alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	Length   = 6
)

// Generate returns a 6-character code uniformly sampled over Alphabet.
// Uniqueness among live rooms is the registry's job, not ours.
func Generate() string {
	buf := make([]byte, Length)
	for i := range buf {
		buf[i] = Alphabet[randomIndex(len(Alphabet))]
	}
	return string(buf)
}

func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		log.Panic("failed to generate random index: ", err)
	}
	return int(n.Int64())
}
