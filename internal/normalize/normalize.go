package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"torrent-rating-notifier/internal/config"
)

// Normalizer derives search queries and dedup keys from scraped titles.
type Normalizer struct {
	includeYear bool
}

func NewNormalizer(cfg config.DedupConfig) *Normalizer {
	return &Normalizer{includeYear: cfg.IncludeYear}
}

// Order matters: URLs go before separators are touched, bracketed blocks go
// before anything that could leave half a bracket behind.
var queryNoise = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(https?://|www\.)\S+`),
	regexp.MustCompile(`\[[^\]]*\]`),
	regexp.MustCompile(`\([^)]*\)`),
	regexp.MustCompile(`(?i)\b(480p|576p|720p|1080p|1440p|2160p|4k|uhd)\b`),
	regexp.MustCompile(`(?i)\b(hdrip|bdrip|brrip|bdremux|remux|web-?dl|web-?rip|hdtv|dvdrip|dvdscr|microhd|full\s?hd|blu-?ray)\b`),
	regexp.MustCompile(`(?i)\b(x264|x265|h\.?264|h\.?265|hevc|avc|ac3|eac3|dts|aac|atmos)\b`),
	regexp.MustCompile(`(?i)\b(castellano|latino|vose|vos|subtitulado|spanish|english|dual|multi)\b`),
	regexp.MustCompile(`(?i)\b(temporada|cap[ií]tulo|episodio)s?(\s*\d+)?\b`),
	regexp.MustCompile(`(?i)\bs\d{1,2}(e\d{1,3})?\b`),
	regexp.MustCompile(`(?i)\bt\d{1,2}\b`),
	regexp.MustCompile(`\d+\s*[ªº]`),
	regexp.MustCompile(`(?i)\b(hd|sd)\b`),
}

var (
	// A year after the first word is a release marker; a leading one is
	// probably the title itself ("1917").
	trailingYear  = regexp.MustCompile(`(\S\s+)(19|20)\d{2}\b`)
	strayBrackets = regexp.MustCompile(`[\[\]()]`)
	separators    = regexp.MustCompile(`[_\-.]+`)
	spaces        = regexp.MustCompile(`\s+`)
	danglingShort = regexp.MustCompile(`(?i)\s+[a-z]{1,2}$`)
	yearToken     = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	nonAlnum      = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
)

const minQueryLength = 3

// ToSearchQuery strips release noise from a scraped title. It returns "" for
// titles with nothing meaningful left to search for.
func ToSearchQuery(raw string) string {
	clean := raw
	for _, re := range queryNoise {
		clean = re.ReplaceAllString(clean, " ")
	}
	clean = trailingYear.ReplaceAllString(clean, "$1")
	clean = strayBrackets.ReplaceAllString(clean, " ")
	clean = separators.ReplaceAllString(clean, " ")
	clean = strings.TrimSpace(spaces.ReplaceAllString(clean, " "))
	clean = strings.TrimSpace(danglingShort.ReplaceAllString(clean, ""))

	if len([]rune(clean)) < minQueryLength {
		return ""
	}
	return clean
}

// foldTable covers letters that do not decompose into base + combining mark.
var foldTable = strings.NewReplacer(
	"ß", "ss",
	"æ", "ae",
	"œ", "oe",
	"ø", "o",
	"ł", "l",
	"đ", "d",
	"ð", "d",
	"þ", "th",
	"ı", "i",
)

// ToDedupKey lower-cases, folds diacritics, deletes everything that is not a
// letter, digit or space and collapses whitespace. "Schindler's List" and
// "Schindlers List" share a key. It is idempotent.
func ToDedupKey(raw string) string {
	s := strings.ToLower(raw)
	s = foldTable.Replace(s)

	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(stripMarks, s); err == nil {
		s = folded
	}

	s = nonAlnum.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// ReleaseYear returns the first plausible release year in raw, or "".
func ReleaseYear(raw string) string {
	return yearToken.FindString(raw)
}

// Key is the dedup key for a raw scraped title: the folded search query,
// optionally widened with the release year. Empty when the title is degenerate.
func (n *Normalizer) Key(raw string) string {
	key := ToDedupKey(ToSearchQuery(raw))
	if key == "" {
		return ""
	}
	if n.includeYear {
		if year := ReleaseYear(raw); year != "" {
			key += " " + year
		}
	}
	return key
}

// NormalizeURL trims whitespace and drops the fragment.
func NormalizeURL(urlStr string) string {
	urlStr = strings.TrimSpace(urlStr)
	if idx := strings.Index(urlStr, "#"); idx > -1 {
		urlStr = urlStr[:idx]
	}
	return urlStr
}
