package additive

import (
	"regexp"
	"sort"
	"strings"
)

// Fixed dictionaries for deriving organ and health-topic tags from free-text
// evidence. Applied at import time so records carry resolved tags; never
// re-scanned on the read path.
var organPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"liver", regexp.MustCompile(`\bliver\b|hepatic`)},
	{"kidney", regexp.MustCompile(`\bkidney\b|renal`)},
	{"brain", regexp.MustCompile(`\bbrain\b|neuro`)},
	{"heart", regexp.MustCompile(`\bheart\b|cardio`)},
	{"gut", regexp.MustCompile(`\bgut\b|intestinal|gastro`)},
	{"blood", regexp.MustCompile(`\bblood\b|hemat|haemat`)},
	{"thyroid", regexp.MustCompile(`\bthyroid\b`)},
	{"reproductive", regexp.MustCompile(`\brepro|fertil|testis|ovary|uter`)},
}

var topicPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"genotoxicity", regexp.MustCompile(`\bgenotox|dna damage|mutagen`)},
	{"cancer", regexp.MustCompile(`\bcancer|carcinogen|tumou?r`)},
	{"allergy", regexp.MustCompile(`\ballerg|hypersens`)},
	{"hyperactivity", regexp.MustCompile(`\bhyperactiv|adhd`)},
	{"development", regexp.MustCompile(`\bdevelopment|prenatal|postnatal`)},
}

// ExtractTags scans the given evidence texts against the fixed organ and
// topic dictionaries and returns sorted, deduplicated tag lists.
func ExtractTags(texts []string) (organs []string, topics []string) {
	blob := strings.ToLower(strings.Join(texts, " \n "))

	for _, p := range organPatterns {
		if p.re.MatchString(blob) {
			organs = append(organs, p.name)
		}
	}
	for _, p := range topicPatterns {
		if p.re.MatchString(blob) {
			topics = append(topics, p.name)
		}
	}

	sort.Strings(organs)
	sort.Strings(topics)
	return organs, topics
}
