package game

import "strings"

// Serial number character classes. Letters skip I, O and Y.
const (
	serialLetters = "ABCDEFGHJKLMNPQRSTUVWXZ"
	serialDigits  = "0123456789"
	serialAlnum   = serialLetters + serialDigits
	serialVowels  = "AEIOU"
)

// Rand is the random source. *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
}

// GenerateSerial returns a six character serial number shaped
// [alnum, alnum, digit, letter, letter, alnum].
func GenerateSerial(rng Rand) string {
	classes := [...]string{serialAlnum, serialAlnum, serialDigits, serialLetters, serialLetters, serialAlnum}
	var sb strings.Builder
	sb.Grow(len(classes))
	for _, class := range classes {
		sb.WriteByte(class[rng.IntN(len(class))])
	}
	return sb.String()
}

// SerialHasVowel reports whether the serial contains a vowel.
func SerialHasVowel(serial string) bool {
	return strings.ContainsAny(serial, serialVowels)
}

// SerialLastDigitOdd reports whether the last digit in the serial is odd.
func SerialLastDigitOdd(serial string) bool {
	i := strings.LastIndexAny(serial, serialDigits)
	return i >= 0 && (serial[i]-'0')%2 == 1
}
