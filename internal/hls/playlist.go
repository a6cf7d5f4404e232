package hls

import (
	"net/url"
	"regexp"
	"strings"
)

var uriAttribute = regexp.MustCompile(`URI="([^"]*)"`)

// RewritePlaylist points every relative URI in a playlist at the relay route
// for agentID. URIs that are already rooted or carry a scheme are kept.
func RewritePlaylist(content, agentID string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		body := strings.TrimRight(line, "\r")
		suffix := line[len(body):]

		trimmed := strings.TrimSpace(body)
		switch {
		case trimmed == "":
			continue
		case strings.HasPrefix(trimmed, "#"):
			lines[i] = uriAttribute.ReplaceAllStringFunc(body, func(attr string) string {
				uri := uriAttribute.FindStringSubmatch(attr)[1]
				return `URI="` + relayURI(uri, agentID) + `"`
			}) + suffix
		default:
			lines[i] = relayURI(trimmed, agentID) + suffix
		}
	}
	return strings.Join(lines, "\n")
}

func relayURI(uri, agentID string) string {
	if uri == "" || isAbsoluteURI(uri) {
		return uri
	}
	return "/hls/" + agentID + "/" + uri
}

func isAbsoluteURI(uri string) bool {
	if strings.HasPrefix(uri, "/") {
		return true
	}
	u, err := url.Parse(uri)
	return err == nil && u.Scheme != ""
}
