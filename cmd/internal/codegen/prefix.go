package codegen

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// Namespace is prepended to every generated identifier.
	Namespace = "IT-"

	initialsWordLimit = 2
)

var wordSplitRe = regexp.MustCompile(`[\s,\-]+`)

// GenerateItemCodeBody returns the initials body for an asset:
// up to two owner initials followed by up to two display-name initials.
//
//	GenerateItemCodeBody("Laptop Computer", "John Doe") == "JDLC"
func GenerateItemCodeBody(displayName, ownerName string) string {
	return initials(ownerName, initialsWordLimit) + initials(displayName, initialsWordLimit)
}

// Prefix returns Namespace + GenerateItemCodeBody.
func Prefix(displayName, ownerName string) string {
	return Namespace + GenerateItemCodeBody(displayName, ownerName)
}

// initials takes the first letter or digit of up to limit words, folded to
// uppercase ASCII. Letters with diacritics lose their marks ("É" -> "E");
// words with nothing foldable are skipped.
func initials(s string, limit int) string {
	s = foldASCII(s)

	var b strings.Builder
	n := 0
	for _, word := range wordSplitRe.Split(s, -1) {
		if n >= limit {
			break
		}
		for _, r := range word {
			if isASCIIAlnum(r) {
				b.WriteRune(unicode.ToUpper(r))
				n++
				break
			}
		}
	}
	if b.Len() > 0 {
		return b.String()
	}

	// No extractable words: first characters of the string without spaces.
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if len(compact) > limit {
		compact = compact[:limit]
	}
	return strings.ToUpper(compact)
}

// foldASCII strips combining marks and drops whatever is still outside
// printable ASCII, so the result is always Code-128 encodable.
func foldASCII(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e {
			return -1
		}
		return r
	}, folded)
}

func isASCIIAlnum(r rune) bool {
	return ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9')
}
