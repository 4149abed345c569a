// normalizer.go - Canonical text form for product and supplier names

package processor

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bosocmputer/invoice_resolver/internal/common"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Default noise tokens dropped when they appear as standalone words
var (
	DefaultProductNoise  = []string{"шт", "штук", "уп", "упак"}
	DefaultSupplierNoise = []string{"ооо", "оао", "зао", "пао", "ао", "ип", "чп", "тоо", "llc", "ltd", "inc"}
)

// DefaultLetterLookalikes maps Latin letters OCR confuses with Cyrillic ones.
// Applied after lowercasing, so uppercase shapes (B, H, M, T, K) are covered by their lowercase keys.
var DefaultLetterLookalikes = map[rune]rune{
	'a': 'а', 'b': 'в', 'c': 'с', 'e': 'е', 'h': 'н', 'k': 'к', 'm': 'м',
	'o': 'о', 'p': 'р', 't': 'т', 'x': 'х', 'y': 'у',
	'ё': 'е',
}

// DefaultDigitLookalikes maps digits that stand in for letters inside words
var DefaultDigitLookalikes = map[rune]rune{
	'0': 'о',
	'3': 'з',
}

// in-word joiners kept inside tokens: "в/с", "1,5", "2.5", "жир-15%", "+4"
const joiners = "/.,-%+"

// NormalizerOptions configures one normalizer
type NormalizerOptions struct {
	NoiseTokens []string
	Letters     map[rune]rune // nil = DefaultLetterLookalikes
	Digits      map[rune]rune // nil = DefaultDigitLookalikes
}

// Normalizer turns raw OCR text into the comparable form used by every lookup
type Normalizer struct {
	lower   cases.Caser
	letters map[rune]rune
	digits  map[rune]rune
	noise   map[string]struct{}
}

// NewNormalizer validates the substitution tables and builds the noise set
func NewNormalizer(opts NormalizerOptions) (*Normalizer, error) {
	letters := opts.Letters
	if letters == nil {
		letters = DefaultLetterLookalikes
	}
	digits := opts.Digits
	if digits == nil {
		digits = DefaultDigitLookalikes
	}

	// a value that is also a key would be rewritten again on a second pass
	for _, table := range []map[rune]rune{letters, digits} {
		for from, to := range table {
			if _, ok := letters[to]; ok {
				return nil, fmt.Errorf("lookalike %q -> %q: target is itself substituted", from, to)
			}
			if _, ok := digits[to]; ok {
				return nil, fmt.Errorf("lookalike %q -> %q: target is itself substituted", from, to)
			}
			if !unicode.IsLetter(to) {
				return nil, fmt.Errorf("lookalike %q -> %q: target must be a letter", from, to)
			}
		}
	}
	for from := range digits {
		if !unicode.IsDigit(from) {
			return nil, fmt.Errorf("digit lookalike key %q is not a digit", from)
		}
	}

	n := &Normalizer{
		lower:   cases.Lower(language.Russian),
		letters: letters,
		digits:  digits,
		noise:   make(map[string]struct{}, len(opts.NoiseTokens)),
	}
	for _, tok := range opts.NoiseTokens {
		for _, t := range n.tokenize(n.lower.String(norm.NFC.String(tok))) {
			n.noise[t] = struct{}{}
			n.noise[n.substitute(t)] = struct{}{}
		}
	}
	return n, nil
}

// Normalize is total: any string yields a (possibly empty) canonical string
func (n *Normalizer) Normalize(raw string) string {
	text := norm.NFC.String(strings.ToValidUTF8(raw, " "))
	tokens := n.tokenize(text)

	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tok = n.lower.String(tok)
		sub := n.substitute(tok)
		if n.isNoise(tok) || n.isNoise(sub) {
			continue
		}
		out = append(out, sub)
	}
	return strings.Join(out, " ")
}

func (n *Normalizer) isNoise(tok string) bool {
	_, ok := n.noise[tok]
	return ok
}

// tokenize splits on whitespace and stray punctuation, trimming joiners from token edges
func (n *Normalizer) tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) {
			return false
		}
		return !strings.ContainsRune(joiners, r)
	})

	tokens := fields[:0]
	for _, f := range fields {
		if f = strings.Trim(f, joiners); f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// substitute fixes OCR look-alikes inside tokens that already contain Cyrillic
func (n *Normalizer) substitute(tok string) string {
	runes := []rune(tok)
	if !hasCyrillic(runes) {
		return tok
	}

	out := make([]rune, len(runes))
	for i, r := range runes {
		if to, ok := n.letters[r]; ok {
			out[i] = to
			continue
		}
		if to, ok := n.digits[r]; ok && i > 0 && i < len(runes)-1 &&
			unicode.IsLetter(runes[i-1]) && unicode.IsLetter(runes[i+1]) {
			out[i] = to
			continue
		}
		out[i] = r
	}
	return string(out)
}

func hasCyrillic(runes []rune) bool {
	for _, r := range runes {
		if unicode.Is(unicode.Cyrillic, r) {
			return true
		}
	}
	return false
}

// ValidateText rejects input that is not text before it reaches the engine
func ValidateText(raw string) error {
	if !utf8.ValidString(raw) {
		return fmt.Errorf("%w: invalid UTF-8", common.ErrNormalizationInput)
	}
	for i, r := range raw {
		if unicode.IsControl(r) && r != '\t' && r != '\n' && r != '\r' {
			return fmt.Errorf("%w: control character %U at byte %d", common.ErrNormalizationInput, r, i)
		}
	}
	return nil
}

// NormalizerSet keeps one normalizer per entity kind
type NormalizerSet struct {
	byKind map[common.EntityKind]*Normalizer
}

// NewNormalizerSet builds product and supplier normalizers; nil noise lists use the defaults
func NewNormalizerSet(productNoise, supplierNoise []string) (*NormalizerSet, error) {
	if productNoise == nil {
		productNoise = DefaultProductNoise
	}
	if supplierNoise == nil {
		supplierNoise = DefaultSupplierNoise
	}

	set := &NormalizerSet{byKind: make(map[common.EntityKind]*Normalizer, 2)}
	for kind, noise := range map[common.EntityKind][]string{
		common.KindProduct:  productNoise,
		common.KindSupplier: supplierNoise,
	} {
		n, err := NewNormalizer(NormalizerOptions{NoiseTokens: noise})
		if err != nil {
			return nil, fmt.Errorf("%s normalizer: %w", kind, err)
		}
		set.byKind[kind] = n
	}
	return set, nil
}

// For returns the normalizer of kind, falling back to the product one
func (s *NormalizerSet) For(kind common.EntityKind) *Normalizer {
	if n, ok := s.byKind[kind]; ok {
		return n
	}
	return s.byKind[common.KindProduct]
}

// Normalize is a shortcut for s.For(kind).Normalize(raw)
func (s *NormalizerSet) Normalize(kind common.EntityKind, raw string) string {
	return s.For(kind).Normalize(raw)
}
