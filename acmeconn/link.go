package acmeconn

import (
	"net/http"
	"strings"
)

// parseLinkHeader implements the RFC 5988 subset spec.md §4.4 needs: one or
// more comma-separated `<url>; rel="name"` entries. Only the rel parameter
// is extracted; other link-params (title, type, ...) are ignored.
func parseLinkHeader(values []string) map[string][]string {
	links := map[string][]string{}
	for _, header := range values {
		for _, entry := range splitLinkEntries(header) {
			url, rel, ok := parseLinkEntry(entry)
			if !ok {
				continue
			}
			links[rel] = append(links[rel], url)
		}
	}
	return links
}

// splitLinkEntries splits a Link header value on commas that separate link
// entries, rather than commas that might appear inside a quoted parameter.
func splitLinkEntries(header string) []string {
	var entries []string
	inQuotes := false
	start := 0
	for i, c := range header {
		switch c {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				entries = append(entries, header[start:i])
				start = i + 1
			}
		}
	}
	entries = append(entries, header[start:])
	return entries
}

func parseLinkEntry(entry string) (url, rel string, ok bool) {
	entry = strings.TrimSpace(entry)
	lt := strings.IndexByte(entry, '<')
	gt := strings.IndexByte(entry, '>')
	if lt != 0 || gt < 0 {
		return "", "", false
	}
	url = entry[lt+1 : gt]

	for _, param := range strings.Split(entry[gt+1:], ";") {
		param = strings.TrimSpace(param)
		rest, found := strings.CutPrefix(param, "rel=")
		if !found {
			continue
		}
		rel = strings.Trim(rest, `"`)
		return url, rel, rel != ""
	}
	return "", "", false
}

// LinksOf returns every Link-header rel value advertised on resp, keyed by
// relation name (spec.md §4.4: next, alternate, terms-of-service, up,
// index).
func LinksOf(h http.Header) map[string][]string {
	return parseLinkHeader(h.Values("Link"))
}
