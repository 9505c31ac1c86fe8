package keystore

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/tyler-smith/go-bip39"

	courierr "github.com/mrz1836/courier/pkg/errors"
)

// maxTypoDistance bounds how far a word may be from a BIP39 word to be
// suggested as its correction.
const maxTypoDistance = 2

var (
	spaceRun     = regexp.MustCompile(`\s+`)
	listNumber   = regexp.MustCompile(`(?m)^\s*\d+[.):]\s*`)
	listBullet   = regexp.MustCompile(`(?m)^\s*[-*•]\s*`)
	wordIndexSet map[string]struct{}
)

func init() {
	words := bip39.GetWordList()
	wordIndexSet = make(map[string]struct{}, len(words))
	for _, w := range words {
		wordIndexSet[w] = struct{}{}
	}
}

// NormalizeMnemonic lowercases a pasted phrase and strips list numbering,
// bullets, commas and extra whitespace.
func NormalizeMnemonic(input string) string {
	input = strings.ToLower(input)
	input = listNumber.ReplaceAllString(input, " ")
	input = listBullet.ReplaceAllString(input, " ")
	input = strings.ReplaceAll(input, ",", " ")
	input = spaceRun.ReplaceAllString(input, " ")
	return strings.TrimSpace(input)
}

// GenerateMnemonic returns a new 12 or 24 word English phrase.
func GenerateMnemonic(wordCount int) (string, error) {
	var bits int
	switch wordCount {
	case 12:
		bits = 128
	case 24:
		bits = 256
	default:
		return "", courierr.WithDetails(courierr.ErrInvalidInput, map[string]string{"words": fmt.Sprint(wordCount)})
	}
	entropy, err := bip39.NewEntropy(bits)
	if err != nil {
		return "", courierr.Wrap(err, "generating entropy")
	}
	defer zero(entropy)
	return bip39.NewMnemonic(entropy)
}

// ValidateMnemonic checks word count, word membership and checksum.
// Misspelled words produce a suggestion on the returned error.
func ValidateMnemonic(mnemonic string) error {
	normalized := NormalizeMnemonic(mnemonic)
	words := strings.Fields(normalized)
	if len(words) != 12 && len(words) != 24 {
		return courierr.WithDetails(courierr.ErrInvalidMnemonic, map[string]string{"words": fmt.Sprint(len(words))})
	}

	if hint := typoHint(words); hint != "" {
		return courierr.WithSuggestion(courierr.ErrInvalidMnemonic, hint)
	}
	if _, err := bip39.MnemonicToByteArray(normalized); err != nil {
		return courierr.WithSuggestion(courierr.ErrInvalidMnemonic, "checksum mismatch; check the word order")
	}
	return nil
}

// mnemonicToSeed returns the BIP39 seed with an empty passphrase.
func mnemonicToSeed(mnemonic string) (*SecureBytes, error) {
	normalized := NormalizeMnemonic(mnemonic)
	seed, err := bip39.NewSeedWithErrorChecking(normalized, "")
	if err != nil {
		return nil, courierr.WithCause(courierr.ErrInvalidMnemonic, err)
	}
	defer zero(seed)
	return NewSecureBytes(seed), nil
}

// SuggestWord returns the closest BIP39 word within maxTypoDistance, or "".
func SuggestWord(word string) string {
	word = strings.ToLower(word)
	if _, ok := wordIndexSet[word]; ok {
		return word
	}
	best, bestDist := "", maxTypoDistance+1
	for _, candidate := range bip39.GetWordList() {
		if d := levenshtein.ComputeDistance(word, candidate); d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return best
}

func typoHint(words []string) string {
	var parts []string
	for i, w := range words {
		if _, ok := wordIndexSet[w]; ok {
			continue
		}
		if s := SuggestWord(w); s != "" {
			parts = append(parts, fmt.Sprintf("word %d %q: did you mean %q?", i+1, w, s))
		} else {
			parts = append(parts, fmt.Sprintf("word %d %q is not a BIP39 word", i+1, w))
		}
	}
	return strings.Join(parts, "\n")
}
