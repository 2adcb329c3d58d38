package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractMetaTags returns the page title, the description meta tag, and every
// og:* property (keyed og_<name>). Tags that are missing or empty are left
// out of the map.
func ExtractMetaTags(htmlSrc string) map[string]string {
	meta := make(map[string]string)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlSrc))
	if err != nil {
		return meta
	}

	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		meta["title"] = title
	}

	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content := strings.TrimSpace(s.AttrOr("content", ""))
		if content == "" {
			return
		}

		name := strings.ToLower(strings.TrimSpace(s.AttrOr("name", "")))
		if name == "description" {
			if _, seen := meta["description"]; !seen {
				meta["description"] = content
			}
			return
		}

		prop := strings.TrimSpace(s.AttrOr("property", ""))
		if len(prop) > 3 && strings.EqualFold(prop[:3], "og:") {
			meta["og_"+prop[3:]] = content
		}
	})

	return meta
}
