package services

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/noah-andersen/ebay-card-scraper/internal/metrics"
	"github.com/noah-andersen/ebay-card-scraper/internal/models"
)

// Maximum title length inspected by the pattern cascade, to bound regex work
const maxTitleLength = 10000

// Card names taken from the head of a title without a company marker are capped at this many runes
const cardNamePrefixLength = 50

// Extraction rule labels, reported in GradeInfo.Rule
const (
	RuleCompanyGrade = "company_grade"
	RuleQualifier    = "qualifier"
	RuleStandalone   = "standalone"
	RuleContext      = "context"
)

var (
	// Company token with an optional adjacent grade: "PSA 10", "BGS9.5", "CGC - 8", "Beckett"
	companyGradePattern = regexp.MustCompile(`(?i)\b(PSA|BGS|BECKETT|CGC|SGC|TAG)(?:[\s#:-]*(\d+(?:\.\d+)?))?\b`)

	// CGC and TAG award a distinct "10 Pristine" above a plain 10
	pristineTenPattern = regexp.MustCompile(`(?i)^[\s#:-]*(?:10\s*pristine|pristine\s*10)\b`)

	// Qualifier phrasing, tried in order
	qualifierGradePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bgrade\s*(\d+(?:\.\d+)?)\b`),
		regexp.MustCompile(`(?i)\bgraded\s*(\d+(?:\.\d+)?)\b`),
		regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(?:mint|nm|gem)\b`),
		regexp.MustCompile(`(?i)\bgem\s*mint\s*(\d+(?:\.\d+)?)\b`),
		regexp.MustCompile(`(?i)\bpristine\s*(\d+(?:\.\d+)?)\b`),
		regexp.MustCompile(`(?i)\bmint\+?\s*(\d+(?:\.\d+)?)\b`),
	}

	numberPattern = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)

	// Word, number, or single punctuation mark
	tokenPattern = regexp.MustCompile(`[A-Za-z]+|\d+(?:\.\d+)?|[^\sA-Za-z\d]`)

	cardNameTrim = " \t-|,:;/~*"
)

// Exact values accepted by the standalone-number rule
var canonicalGrades = map[string]bool{
	"10": true, "9.5": true, "9": true, "8.5": true, "8": true, "7.5": true,
	"7": true, "6.5": true, "6": true, "5.5": true, "5": true,
}

// Tokens that mark a nearby number as a grade in the context rule
var gradeContextKeywords = map[string]bool{
	"psa": true, "bgs": true, "beckett": true, "cgc": true, "sgc": true, "tag": true,
	"grade": true, "graded": true, "mint": true, "gem": true, "pristine": true,
}

// Multi-card listing signals
var (
	quantityPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b\d+\s*(?:pokemon\s+)?cards?\b`),
		regexp.MustCompile(`(?i)\b\d+\s*(?:graded\s+)?cards?\b`),
		regexp.MustCompile(`(?i)\b\d+\+\s*cards?\b`),
	}
	collectionKeywordPattern = regexp.MustCompile(`(?i)\b(?:lot|collection|bundle|mystery\s+box|mystery\s+pack|mixed\s+lot|bulk|multiple|set\s+of|box\s+of|pack\s+of)\b`)
	rangeOrListPatterns      = []*regexp.Regexp{
		regexp.MustCompile(`\b\d+\s*-\s*\d+\b`),
		regexp.MustCompile(`\b\d+\s*,\s*\d+\b`),
	}
	eachPattern       = regexp.MustCompile(`(?i)\beach\b`)
	bareNumberPattern = regexp.MustCompile(`\b\d+\b`)
)

// ContainsMultipleCards reports whether text reads like a lot, bundle or
// multi-card listing rather than a single graded card.
func ContainsMultipleCards(text string) bool {
	if text == "" {
		return false
	}
	text = truncateTitle(text)

	for _, p := range quantityPatterns {
		if p.MatchString(text) {
			return true
		}
	}

	hasNumber := bareNumberPattern.MatchString(text)
	if hasNumber && collectionKeywordPattern.MatchString(text) {
		return true
	}

	for _, p := range rangeOrListPatterns {
		if p.MatchString(text) {
			return true
		}
	}

	return hasNumber && eachPattern.MatchString(text)
}

// ExtractGrading derives card name, grading company and grade from a listing
// title at ingestion time. It never fails; misses leave fields empty.
func ExtractGrading(title string) models.GradeInfo {
	info := extractGrading(title, false)
	if info.GradingCompany == "" {
		info.CardName = prefixCardName(title)
	}
	return info
}

// ExtractGradeFromText is the backfill variant used while filtering. When
// useContext is set, the context-window rule runs after the pattern cascade.
// Without a company marker the card name is the first half of the words.
func ExtractGradeFromText(text string, useContext bool) models.GradeInfo {
	info := extractGrading(text, useContext)
	if info.GradingCompany == "" {
		info.CardName = CardNameFirstHalf(text)
	}
	return info
}

func extractGrading(text string, useContext bool) models.GradeInfo {
	var info models.GradeInfo
	text = strings.TrimSpace(truncateTitle(text))
	if text == "" {
		return info
	}

	extractCompanyGrade(text, &info)

	// Rule 2 also fills the grade when the company token had no adjacent number
	if info.Grade == "" {
		for _, p := range qualifierGradePatterns {
			if grade, ok := firstValidGrade(p, text); ok {
				info.Grade = grade
				info.Rule = RuleQualifier
				break
			}
		}
	}

	// A quantity like "10 cards" must never be read as a grade
	if info.Grade == "" && !ContainsMultipleCards(text) {
		for _, m := range numberPattern.FindAllString(text, -1) {
			if canonicalGrades[m] {
				info.Grade = m
				info.Rule = RuleStandalone
				break
			}
		}
	}

	if info.Grade == "" && useContext {
		if grade, ok := contextGrade(text); ok {
			info.Grade = grade
			info.Rule = RuleContext
		}
	}

	return info
}

// extractCompanyGrade applies the company+grade rule. It sets the company
// from the first token carrying a valid grade, or else from the first token
// seen, and splits the card name around that token.
func extractCompanyGrade(text string, info *models.GradeInfo) {
	matches := companyGradePattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return
	}

	chosen := matches[0]
	for _, m := range matches {
		company := models.NormalizeGradingCompany(text[m[2]:m[3]])
		rest := text[m[3]:]

		if company == models.CompanyCGC || company == models.CompanyTAG {
			if loc := pristineTenPattern.FindStringIndex(rest); loc != nil {
				info.Grade = models.GradePristine10
				chosen = []int{m[0], m[3] + loc[1], m[2], m[3]}
				break
			}
		}

		if m[4] >= 0 {
			if grade, ok := validCompanyGrade(text[m[4]:m[5]]); ok {
				info.Grade = grade
				chosen = m
				break
			}
		}
	}

	info.GradingCompany = models.NormalizeGradingCompany(text[chosen[2]:chosen[3]])
	if info.Grade != "" {
		info.Rule = RuleCompanyGrade
	}
	info.CardName = splitCardName(text, chosen[0], chosen[1])
}

// splitCardName prefers the text before the company token and falls back to
// the text after it.
func splitCardName(text string, start, end int) string {
	before := strings.Trim(text[:start], cardNameTrim)
	if before != "" {
		return collapseSpaces(before)
	}
	return collapseSpaces(strings.Trim(text[end:], cardNameTrim))
}

// CardNameFirstHalf returns the first half of the words in text, rounding up.
func CardNameFirstHalf(text string) string {
	words := strings.Fields(truncateTitle(text))
	if len(words) == 0 {
		return ""
	}
	return strings.Join(words[:(len(words)+1)/2], " ")
}

func prefixCardName(title string) string {
	name := collapseSpaces(strings.TrimSpace(truncateTitle(title)))
	if utf8.RuneCountInString(name) <= cardNamePrefixLength {
		return name
	}
	runes := []rune(name)
	return strings.TrimSpace(string(runes[:cardNamePrefixLength]))
}

// contextGrade accepts the first number in [0,10] whose window of two tokens
// either side contains a grading keyword.
func contextGrade(text string) (string, bool) {
	tokens := tokenPattern.FindAllString(text, -1)
	for i, tok := range tokens {
		if tok[0] < '0' || tok[0] > '9' {
			continue
		}
		start := max(0, i-2)
		end := min(len(tokens), i+3)
		for _, w := range tokens[start:end] {
			if gradeContextKeywords[strings.ToLower(w)] {
				if grade, ok := validGrade(tok); ok {
					return grade, true
				}
				break
			}
		}
	}
	return "", false
}

func firstValidGrade(p *regexp.Regexp, text string) (string, bool) {
	for _, m := range p.FindAllStringSubmatch(text, -1) {
		if grade, ok := validGrade(m[1]); ok {
			return grade, true
		}
	}
	return "", false
}

// validGrade accepts numbers in [0,10]; anything else is discarded, not clamped.
func validGrade(s string) (string, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || v > 10 {
		return "", false
	}
	return s, true
}

// validCompanyGrade additionally requires an integer or half-point value.
func validCompanyGrade(s string) (string, bool) {
	grade, ok := validGrade(s)
	if !ok {
		return "", false
	}
	v, _ := strconv.ParseFloat(s, 64)
	if v*2 != math.Trunc(v*2) {
		return "", false
	}
	return grade, true
}

// truncateTitle caps s at maxTitleLength bytes without splitting a rune.
func truncateTitle(s string) string {
	if len(s) <= maxTitleLength {
		return s
	}
	cut := maxTitleLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// GradeExtractor memoizes ExtractGrading per title. Titles repeat heavily
// across paginated fetches and reruns.
type GradeExtractor struct {
	cache  *lru.Cache[string, models.GradeInfo]
	logger *zap.Logger
}

// NewGradeExtractor creates an extractor with an LRU of the given size.
// A non-positive size disables caching.
func NewGradeExtractor(cacheSize int, logger *zap.Logger) *GradeExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &GradeExtractor{logger: logger}
	if cacheSize > 0 {
		cache, err := lru.New[string, models.GradeInfo](cacheSize)
		if err != nil {
			logger.Warn("extraction cache disabled", zap.Error(err))
		} else {
			e.cache = cache
		}
	}
	return e
}

// Extract returns the grading fields for title.
func (e *GradeExtractor) Extract(title string) models.GradeInfo {
	if e.cache == nil {
		return ExtractGrading(title)
	}
	if info, ok := e.cache.Get(title); ok {
		metrics.ExtractionCacheHits.Inc()
		return info
	}
	metrics.ExtractionCacheMisses.Inc()
	info := ExtractGrading(title)
	e.cache.Add(title, info)
	return info
}

// Backfill runs the filtering-path extraction over each text in turn and
// returns the first hit.
func (e *GradeExtractor) Backfill(useContext bool, texts ...string) (models.GradeInfo, bool) {
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			continue
		}
		if info := ExtractGradeFromText(t, useContext); info.Found() {
			return info, true
		}
	}
	return models.GradeInfo{}, false
}
