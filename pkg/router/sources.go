package router

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/abdhe/chat-router/pkg/provider"
)

// Markers of the sources block appended to grounded answers. Renderers parse
// these literally.
const (
	SourcesOpen  = "<!--SOURCES-->"
	SourcesClose = "<!--/SOURCES-->"
)

// FormatSources renders the sources block, or "" when there are none.
// Sources without a title are labelled with the URL's host name.
func FormatSources(sources []provider.GroundingSource) string {
	if len(sources) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n" + SourcesOpen + "\n")
	for _, s := range sources {
		fmt.Fprintf(&b, "- [%s](%s)\n", sourceTitle(s), s.URL)
	}
	b.WriteString(SourcesClose)
	return b.String()
}

func sourceTitle(s provider.GroundingSource) string {
	if title := strings.TrimSpace(s.Title); title != "" {
		return title
	}
	if u, err := url.Parse(s.URL); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return s.URL
}
