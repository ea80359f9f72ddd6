package engine

import (
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/purell"
	"github.com/rivo/uniseg"
	"golang.org/x/text/unicode/norm"
)

var (
	realLinkRegex   = regexp.MustCompile("(?i)\\bhttps?://[^\\s<>\"'`]+")
	bareDomainRegex = regexp.MustCompile(`(?i)\b(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,24}\b(?:/[^\s<>]*)?`)
	inviteRegex     = regexp.MustCompile(`(?i)(?:discord(?:app)?\.com/invite|discord\.gg)/([a-z0-9-]+)`)
	customEmojiRe   = regexp.MustCompile(`<a?:\w{2,32}:\d{15,21}>`)
)

// Folds compatibility characters and strips combining marks, so that eg "ｆｏｏ" and "fóó" both read as "foo".
func normalizeText(s string) string {
	decomposed := norm.NFKD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return norm.NFC.String(b.String())
}

type foundLink struct {
	Raw    string
	URL    string
	Domain string
}

// Extracts links from message text. With onlyReal, only explicit http(s) URLs count; otherwise bare domains like "example.com/path" do too.
func extractLinks(text string, onlyReal bool) []foundLink {
	var out []foundLink
	seen := make(map[string]bool)
	add := func(raw string) {
		full := raw
		if !strings.Contains(strings.ToLower(raw), "://") {
			full = "http://" + raw
		}
		clean, err := purell.NormalizeURLString(full, purell.FlagsUsuallySafeGreedy|purell.FlagRemoveFragment|purell.FlagRemoveDuplicateSlashes|purell.FlagRemoveWWW)
		if err != nil {
			return
		}
		u, err := url.Parse(clean)
		if err != nil || u.Hostname() == "" {
			return
		}
		if seen[clean] {
			return
		}
		seen[clean] = true
		out = append(out, foundLink{Raw: raw, URL: clean, Domain: strings.ToLower(u.Hostname())})
	}
	for _, raw := range realLinkRegex.FindAllString(text, -1) {
		add(raw)
	}
	if !onlyReal {
		// strip explicit links first, so their hosts aren't matched twice
		rest := realLinkRegex.ReplaceAllString(text, " ")
		for _, raw := range bareDomainRegex.FindAllString(rest, -1) {
			add(raw)
		}
	}
	return out
}

func extractInviteCodes(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range inviteRegex.FindAllStringSubmatch(text, -1) {
		code := m[1]
		if seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	return out
}

// Matches the domain against a list of domains. With subdomains, "cdn.example.com" matches "example.com".
func domainInList(domain string, list []string, subdomains bool) bool {
	domain = strings.TrimPrefix(strings.ToLower(domain), "www.")
	for _, d := range list {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "www.")
		if d == "" {
			continue
		}
		if domain == d {
			return true
		}
		if subdomains && strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}

// Number of user-perceived characters (grapheme clusters).
func countCharacters(s string) int {
	n := 0
	gr := uniseg.NewGraphemes(s)
	for gr.Next() {
		n++
	}
	return n
}

// Number of emoji: custom Discord emoji plus unicode emoji grapheme clusters.
func countEmoji(s string) int {
	n := len(customEmojiRe.FindAllStringIndex(s, -1))
	s = customEmojiRe.ReplaceAllString(s, "")
	gr := uniseg.NewGraphemes(s)
	for gr.Next() {
		runes := gr.Runes()
		if len(runes) > 0 && isEmojiRune(runes[0]) {
			n++
		}
	}
	return n
}

func isEmojiRune(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF:
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF:
		return true
	case r >= 0x2600 && r <= 0x27BF:
		return true
	case r >= 0x1F000 && r <= 0x1F2FF:
		return true
	case r == 0x2B50 || r == 0x2B55 || r == 0x2B1B || r == 0x2B1C:
		return true
	}
	return false
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}

// Lower-cased file extension without the leading dot.
func fileExtension(filename string) string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
}
