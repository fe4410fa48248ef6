package routeintent

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var (
	h1bPattern      = regexp.MustCompile(`\bh\s*-?\s*1\s*-?\s*b\b`)
	countPattern    = regexp.MustCompile(`\b(how many|how much|number of|count|counts|total)\b`)
	schoolPattern   = regexp.MustCompile(`\b(universit(y|ies)|college|school|institute)\b`)
	studentPattern  = regexp.MustCompile(`\b(students?|grads?|graduates?|alumni)\s+(from|of|at)\s+\S`)
	petitionPattern = regexp.MustCompile(`\b(petitions?|lcas?|filings?|sponsor(s|ed|ship)?|visas?)\b`)
	rankPattern     = regexp.MustCompile(`\b(top|most|leading|biggest|largest|rank(ing|ed)?|leaderboard)\b`)
	companyPattern  = regexp.MustCompile(`\b(compan(y|ies)|employers?|sponsors?|petitioners?|firms?)\b`)
	casePattern     = regexp.MustCompile(`\bcase\s*(numbers?\b|no\b|#|status\b|ids?\b)|\b(status of|look ?up|lookup|check|find|track)\s+(my |the |a |this )?case\b`)
	listingPattern  = regexp.MustCompile(`\b(jobs?|filings?|lcas?|positions?|openings?|roles?|petitions?)\b`)
	samplePattern   = regexp.MustCompile(`\b(sample|examples?|some|recent|latest|random)\s+(of\s+)?(the\s+)?(lca\s+|h-?1-?b\s+)?(filings?|records?|lcas?|data|applications?|cases?)\b|\bshow me (the |some )?(lca |h-?1-?b )?(filings|data|records)\b`)
	wageCuePattern  = regexp.MustCompile(`\b(salar(y|ies)|wages?|pay(s|ing)?|high[- ]paying|earn(s|ing)?)\b|\$\s*\d|\b\d[\d,]*\s*k\b`)

	caseNumberPattern = regexp.MustCompile(`(?i)\b[A-Z]-\d{3}-\d{5}-\d{6}\b`)

	schoolLeadPattern   = regexp.MustCompile(`(?i)\b(?:from|at|attending|attended)\s+`)
	employerLeadPattern = regexp.MustCompile(`(?i)\b(?:company|employer|from|by|did|does|do|at|for)\s+`)
	cityLeadPattern     = regexp.MustCompile(`(?i)\b(?:located in|based in|in|near)\s+`)
	titleLeadPattern    = regexp.MustCompile(`(?i)\b(?:(?:jobs?|positions?|roles?|openings?)\s+(?:for|as)|titled|job titles?(?: of)?)\s+(?:an?\s+)?`)
	titleNounPattern    = regexp.MustCompile(`(?i)\b(?:jobs|positions|roles|openings)\b`)

	fiscalYearPattern   = regexp.MustCompile(`(?i)\bfy\s?'?(\d{4}|\d{2})\b`)
	lastYearPattern     = regexp.MustCompile(`(?i)\b(last|previous|past) (fiscal )?year\b`)
	thisYearPattern     = regexp.MustCompile(`(?i)\b(this|current) (fiscal )?year\b`)
	calendarYearPattern = regexp.MustCompile(`\b20\d{2}\b`)

	wageUpperPattern   = regexp.MustCompile(`(?i)(?:\b(?:less than|under|below|up to|at most|no more than|maximum(?: of)?|max)|<=?)\s*\$?\s*(\d[\d,]*(?:\.\d+)?)\s*(k)?\b`)
	wageLowerPattern   = regexp.MustCompile(`(?i)(?:\b(?:more than|above|over|at least|minimum(?: of)?|min)|>=?)\s*\$?\s*(\d[\d,]*(?:\.\d+)?)\s*(k)?\b`)
	wageGenericPattern = regexp.MustCompile(`(?i)\b(?:paying|pays|pay|salary|salaries|wages?)\s*(?:of\s*)?\$?\s*(\d[\d,]*(?:\.\d+)?)\s*(k)?\b`)
	wageAmountPattern  = regexp.MustCompile(`(?i)\$\s*(\d[\d,]*(?:\.\d+)?)\s*(k)?\b|\b(\d[\d,]*)\s*(k)\b`)
)

var schoolKeywords = map[string]struct{}{
	"university": {},
	"college":    {},
	"institute":  {},
	"school":     {},
}

// entityTerminators end an entity span pulled out of free text.
var entityTerminators = map[string]struct{}{
	"got": {}, "get": {}, "gets": {}, "getting": {}, "received": {}, "receive": {}, "receives": {},
	"filed": {}, "file": {}, "files": {}, "sponsored": {}, "sponsor": {}, "sponsors": {},
	"have": {}, "has": {}, "had": {}, "did": {}, "do": {}, "does": {},
	"in": {}, "during": {}, "for": {}, "last": {}, "this": {}, "since": {}, "between": {},
	"were": {}, "was": {}, "are": {}, "is": {}, "with": {}, "who": {}, "that": {}, "which": {},
	"petitions": {}, "petition": {}, "lca": {}, "lcas": {}, "visa": {}, "visas": {},
	"fy": {}, "year": {}, "years": {}, "from": {}, "at": {},
	"jobs": {}, "job": {}, "positions": {}, "roles": {}, "openings": {}, "filings": {}, "filing": {},
	"paying": {}, "near": {},
	"they": {}, "it": {}, "you": {}, "we": {}, "i": {}, "them": {}, "these": {}, "those": {},
}

// titleStopWords are skipped when reading a job title that precedes "jobs".
var titleStopWords = map[string]struct{}{
	"show": {}, "me": {}, "any": {}, "all": {}, "find": {}, "list": {}, "the": {}, "some": {},
	"what": {}, "which": {}, "there": {}, "give": {}, "see": {}, "search": {}, "looking": {},
	"want": {}, "need": {}, "open": {}, "available": {}, "new": {}, "recent": {}, "latest": {},
	"a": {}, "an": {}, "my": {}, "of": {}, "to": {}, "h1b": {}, "h-1b": {}, "high": {}, "paying": {},
}

type recognizer struct {
	intent  Intent
	matches func(text string) bool
}

// recognizers are tried in order against lower-cased text; the first match
// wins.
var recognizers = []recognizer{
	{IntentSchoolCount, func(t string) bool {
		return (schoolPattern.MatchString(t) || studentPattern.MatchString(t)) &&
			(countPattern.MatchString(t) || h1bPattern.MatchString(t) || petitionPattern.MatchString(t))
	}},
	{IntentEmployerCount, func(t string) bool {
		return countPattern.MatchString(t) &&
			(h1bPattern.MatchString(t) || petitionPattern.MatchString(t)) &&
			!rankPattern.MatchString(t)
	}},
	{IntentTopEmployers, func(t string) bool {
		return rankPattern.MatchString(t) &&
			(companyPattern.MatchString(t) || h1bPattern.MatchString(t) || petitionPattern.MatchString(t))
	}},
	{IntentCaseLookup, func(t string) bool {
		return caseNumberPattern.MatchString(t) || casePattern.MatchString(t)
	}},
	{IntentWageSearch, func(t string) bool {
		return wageCuePattern.MatchString(t)
	}},
	{IntentCitySearch, func(t string) bool {
		return listingPattern.MatchString(t) && extractCity(t) != ""
	}},
	{IntentTitleSearch, func(t string) bool {
		return extractJobTitle(t) != ""
	}},
	{IntentSampleFilings, func(t string) bool {
		return samplePattern.MatchString(t)
	}},
}

// Classify maps message to exactly one intent.
func Classify(message string) Intent {
	text := strings.ToLower(normalizeText(message))
	for _, r := range recognizers {
		if r.matches(text) {
			return r.intent
		}
	}
	return IntentFallback
}

// ExtractSlots pulls the values intent needs out of message. Relative years
// resolve against the US federal fiscal year containing now.
func ExtractSlots(intent Intent, message string, now time.Time) Slots {
	text := normalizeText(message)
	var slots Slots

	switch intent {
	case IntentSchoolCount:
		slots.School = extractSchool(text)
		slots.FiscalYear = extractFiscalYear(text, now)
	case IntentEmployerCount:
		slots.Employer = extractAfterLead(text, employerLeadPattern)
		slots.FiscalYear = extractFiscalYear(text, now)
	case IntentTopEmployers:
		slots.FiscalYear = extractFiscalYear(text, now)
	case IntentCaseLookup:
		slots.CaseNumber = strings.ToUpper(caseNumberPattern.FindString(text))
	case IntentWageSearch:
		slots.Wage, slots.WageBound = extractWage(text)
	case IntentCitySearch:
		slots.City = extractCity(text)
	case IntentTitleSearch:
		slots.JobTitle = extractJobTitle(text)
	}
	return slots
}

// CurrentFiscalYear returns the federal fiscal year, which starts October 1.
func CurrentFiscalYear(now time.Time) int {
	if now.Month() >= time.October {
		return now.Year() + 1
	}
	return now.Year()
}

// normalizeText folds unicode dashes and quotes and collapses whitespace.
// Case is kept so entity spans come back as the user typed them.
func normalizeText(s string) string {
	s = strings.NewReplacer(
		"\u2010", "-", "\u2011", "-", "\u2012", "-", "\u2013", "-", "\u2014", "-", "\u2015", "-",
		"\u2018", "'", "\u2019", "'", "\u201c", `"`, "\u201d", `"`,
	).Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func extractSchool(text string) string {
	if school := extractAfterLead(text, schoolLeadPattern); school != "" {
		return school
	}
	return expandSchoolName(text)
}

func extractCity(text string) string {
	city := extractAfterLead(text, cityLeadPattern)
	if len(city) > 4 && strings.EqualFold(city[:4], "the ") {
		city = city[4:]
	}
	return city
}

// extractJobTitle reads "jobs for data scientists", "roles titled QA Lead"
// or "software engineer jobs".
func extractJobTitle(text string) string {
	if title := extractAfterLead(text, titleLeadPattern); title != "" {
		return title
	}

	loc := titleNounPattern.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	words := strings.Fields(text[:loc[0]])
	start := len(words)
	for start > 0 && len(words)-start < 4 {
		word := words[start-1]
		key := strings.ToLower(strings.Trim(word, ".,;:?!'\"()"))
		if key == "" || strings.ContainsAny(word, ",;:?!") || isTerminator(key) {
			break
		}
		if _, stop := titleStopWords[key]; stop {
			break
		}
		start--
	}
	return strings.Join(words[start:], " ")
}

// extractAfterLead returns the first non-empty entity span following a match
// of lead.
func extractAfterLead(text string, lead *regexp.Regexp) string {
	for _, loc := range lead.FindAllStringIndex(text, -1) {
		if entity := entitySpan(text[loc[1]:]); entity != "" {
			return entity
		}
	}
	return ""
}

// entitySpan takes words from the start of rest until a terminator word,
// a year, an H-1B mention or sentence punctuation.
func entitySpan(rest string) string {
	var words []string
	for _, field := range strings.Fields(rest) {
		word := strings.TrimRight(field, ",;:")
		stop := strings.ContainsAny(word, "?!")
		word = strings.TrimRight(word, "?!")

		key := strings.ToLower(strings.Trim(word, ".,'\"()"))
		if isTerminator(key) {
			break
		}
		if word != "" {
			words = append(words, word)
		}
		if stop || strings.HasSuffix(field, ",") {
			break
		}
	}
	return strings.Trim(strings.Join(words, " "), " .,-'\"")
}

func isTerminator(key string) bool {
	if _, ok := entityTerminators[key]; ok {
		return true
	}
	if h1bPattern.MatchString(key) || fiscalYearPattern.MatchString(key) || calendarYearPattern.MatchString(key) {
		return true
	}
	return false
}

// expandSchoolName grows a capitalized span around a school keyword, e.g.
// "Georgia Institute of Technology" or "Ohio State University".
func expandSchoolName(text string) string {
	words := strings.Fields(text)
	clean := make([]string, len(words))
	for i, w := range words {
		clean[i] = strings.Trim(w, ".,;:?!'\"()")
	}

	for i, w := range clean {
		if _, ok := schoolKeywords[strings.ToLower(w)]; !ok {
			continue
		}

		start := i
		for start > 0 && isCapitalized(clean[start-1]) && !isTerminator(strings.ToLower(clean[start-1])) {
			start--
		}

		end := i + 1
		for end < len(clean) {
			next := strings.ToLower(clean[end])
			if (next == "of" || next == "at") && end+1 < len(clean) && isCapitalized(clean[end+1]) {
				end += 2
				continue
			}
			if isCapitalized(clean[end]) && !isTerminator(next) {
				end++
				continue
			}
			break
		}

		if start == i && end == i+1 && !isCapitalized(clean[i]) {
			continue
		}
		return strings.Join(clean[start:end], " ")
	}
	return ""
}

func isCapitalized(word string) bool {
	for _, r := range word {
		return unicode.IsUpper(r)
	}
	return false
}

func extractFiscalYear(text string, now time.Time) int {
	if m := fiscalYearPattern.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[1])
		if year < 100 {
			year += 2000
		}
		return year
	}
	if lastYearPattern.MatchString(text) {
		return CurrentFiscalYear(now) - 1
	}
	if thisYearPattern.MatchString(text) {
		return CurrentFiscalYear(now)
	}
	for _, loc := range calendarYearPattern.FindAllStringIndex(text, -1) {
		if loc[0] > 0 && text[loc[0]-1] == '$' {
			continue
		}
		year, _ := strconv.Atoi(text[loc[0]:loc[1]])
		return year
	}
	return 0
}

// extractWage reads a bound such as "over $120k" or "under 90,000". A bare
// amount ("$120,000", "150k") is a lower bound. Values under 1000 are read
// as thousands.
func extractWage(text string) (float64, WageBound) {
	if v := firstWage(wageUpperPattern, text); v > 0 {
		return v, WageAtMost
	}
	if v := firstWage(wageLowerPattern, text); v > 0 {
		return v, WageAtLeast
	}
	if v := firstWage(wageGenericPattern, text); v > 0 {
		return v, WageAtLeast
	}
	for _, m := range wageAmountPattern.FindAllStringSubmatch(text, -1) {
		num, k := m[1], m[2]
		if num == "" {
			num, k = m[3], m[4]
		}
		if v := wageValue(num, k); v > 0 {
			return v, WageAtLeast
		}
	}
	return 0, ""
}

func firstWage(pattern *regexp.Regexp, text string) float64 {
	for _, m := range pattern.FindAllStringSubmatch(text, -1) {
		if v := wageValue(m[1], m[2]); v > 0 {
			return v
		}
	}
	return 0
}

func wageValue(num, k string) float64 {
	v, err := strconv.ParseFloat(strings.ReplaceAll(num, ",", ""), 64)
	if err != nil || v <= 0 {
		return 0
	}
	if k != "" || v < 1000 {
		v *= 1000
	}
	return v
}
