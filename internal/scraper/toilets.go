package scraper

import (
	"regexp"
	"strconv"
	"strings"
)

var toiletCountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d+)\s*(?:x|kpl)?\s*wc`),
	regexp.MustCompile(`(kaksi|kolme|neljä)\s*wc:tä`),
	regexp.MustCompile(`wc:itä\s*(\d+)`),
}

var finnishNumbers = map[string]string{"kaksi": "2", "kolme": "3", "neljä": "4"}

// ExtractToilets summarizes the toilet arrangement mentioned in a Finnish
// room composition or description. It returns "" when nothing is mentioned.
//
//	"4h+k+kph+erillinen wc" -> "Erillinen WC"
//	"5h, k, 2 wc"           -> "2 WC"
func ExtractToilets(text string) string {
	if text == "" {
		return ""
	}
	lower := strings.ToLower(text)

	separate := strings.Contains(lower, "erillinen wc") || strings.Contains(lower, "erill. wc")

	count := ""
	for _, re := range toiletCountPatterns {
		if m := re.FindStringSubmatch(lower); m != nil {
			count = m[1]
			if n, ok := finnishNumbers[count]; ok {
				count = n
			}
			break
		}
	}
	if count == "" {
		if n := strings.Count(lower, "wc"); n >= 2 {
			count = strconv.Itoa(n)
		}
	}

	n, _ := strconv.Atoi(count)
	switch {
	case separate && n > 1:
		return count + " WC (sis. erillinen WC)"
	case separate:
		return "Erillinen WC"
	case count != "":
		return count + " WC"
	}
	return ""
}
