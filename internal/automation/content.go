package automation

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/zulandar/airminal/internal/poster"
)

// Image references, most explicit first.
var imagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\[IMAGE:\s*(https?://[^\]\s]+)\]`),
	regexp.MustCompile(`(?i)\{?\s*"?image_?url"?\s*:\s*"?(https?://[^"}\s]+)"?\s*\}?`),
	regexp.MustCompile(`!\[.*?\]\((https?://[^)]+)\)`),
	regexp.MustCompile(`(?i)(https?://[^\s<>"]+\.(?:jpg|jpeg|png|gif|webp)(?:\?[^\s<>"]*)?)`),
}

// Caption cleanup, applied in order.
var captionCleanup = []*regexp.Regexp{
	regexp.MustCompile(`(?s)^\s*\{.*"caption"\s*:\s*"`),
	regexp.MustCompile(`(?s)"\s*,?\s*"image.*$`),
	regexp.MustCompile(`^\s*\{?\s*"?text"?\s*:\s*"?`),
	regexp.MustCompile(`"?\s*\}?\s*$`),
}

// ParseContent splits an agent response into a caption and an optional
// image URL.
func ParseContent(response string) poster.Content {
	caption := response
	var image string
	for _, re := range imagePatterns {
		m := re.FindStringSubmatchIndex(response)
		if m == nil {
			continue
		}
		image = response[m[2]:m[3]]
		caption = strings.TrimSpace(response[:m[0]] + response[m[1]:])
		break
	}

	for _, re := range captionCleanup {
		caption = re.ReplaceAllString(caption, "")
	}
	caption = strings.TrimSpace(strings.ReplaceAll(caption, `\n`, "\n"))

	if strings.HasPrefix(strings.TrimSpace(response), "{") {
		var doc map[string]interface{}
		if json.Unmarshal([]byte(response), &doc) == nil {
			if s := firstString(doc, "caption", "text", "content", "post"); s != "" {
				caption = s
			}
			if s := firstString(doc, "image_url", "imageUrl", "image"); s != "" {
				image = s
			}
		}
	}
	return poster.Content{Caption: caption, ImageURL: image}
}

func firstString(doc map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := doc[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
