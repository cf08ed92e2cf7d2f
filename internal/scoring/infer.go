package scoring

import (
	"regexp"
	"strings"
)

// Inference is a best-effort annotation; it never gates acceptance.
type Inference struct {
	Genre string
	Era   string
	Label string
}

type genreRule struct {
	name string
	re   *regexp.Regexp
}

// Order matters: the first matching genre wins.
var genres = []genreRule{
	{"library", regexp.MustCompile(`\blibrary music\b|\bkpm\b|\bde wolfe\b|\bbruton\b`)},
	{"spiritual jazz", regexp.MustCompile(`\bspiritual jazz\b`)},
	{"jazz funk", regexp.MustCompile(`\bjazz[- ]funk\b`)},
	{"rare groove", regexp.MustCompile(`\brare groove\b`)},
	{"funk", regexp.MustCompile(`\bfunk(y)?\b`)},
	{"soul", regexp.MustCompile(`\b(northern |deep |psych )?soul\b`)},
	{"jazz", regexp.MustCompile(`\bjazz\b|\bbebop\b|\bhard bop\b`)},
	{"psych", regexp.MustCompile(`\bpsych(edelic)?\b`)},
	{"disco", regexp.MustCompile(`\bdisco\b|\bboogie\b`)},
	{"bossa nova", regexp.MustCompile(`\bbossa( nova)?\b|\bmpb\b|\bsamba\b`)},
	{"afrobeat", regexp.MustCompile(`\bafro[- ]?beat\b|\bhighlife\b`)},
	{"reggae", regexp.MustCompile(`\breggae\b|\bdub\b|\brocksteady\b`)},
	{"gospel", regexp.MustCompile(`\bgospel\b`)},
	{"soundtrack", regexp.MustCompile(`\bsoundtrack\b|\bost\b|\bscore\b`)},
	{"rock", regexp.MustCompile(`\brock\b|\bprog\b`)},
	{"electronic", regexp.MustCompile(`\belectronic\b|\bsynth\b|\bmoog\b`)},
}

var labels = []string{
	"de wolfe", "kpm", "bruton", "chappell", "sonoton", "boosey & hawkes", "conroy", "themes international",
	"peer international", "blue note", "impulse", "cti", "prestige", "stax", "motown", "strut", "cadet",
	"black jazz", "strata-east", "tribe", "flying dutchman",
}

var (
	yearRE  = regexp.MustCompile(`\b(19[0-9]{2}|20[0-2][0-9])\b`)
	labelRE = buildLabelRE(labels)
)

func buildLabelRE(names []string) *regexp.Regexp {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = regexp.QuoteMeta(n)
	}
	return regexp.MustCompile(`\b(` + strings.Join(quoted, "|") + `)\b`)
}

// Infer extracts genre, era and record label from free text. Genre and label are lower-case.
func Infer(title, description string, tags []string, query string) Inference {
	text := fold(join(title, description, strings.Join(tags, " | "), query))

	var inf Inference
	for _, g := range genres {
		if g.re.MatchString(text) {
			inf.Genre = g.name
			break
		}
	}
	if year := yearRE.FindString(text); year != "" {
		inf.Era = year[:3] + "0s"
	}
	inf.Label = labelRE.FindString(text)
	return inf
}
