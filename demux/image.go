package demux

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/captain/core"
)

// ImageMarker tags a tool result carrying image content that must be fed
// back into the conversation as a user message.
const ImageMarker = "__vlm_image__"

// imagePayload extracts the tagged content list from a tool result. The
// result may be the JSON string produced by the tool or an already decoded
// map.
func imagePayload(content any) ([]any, bool) {
	var m map[string]any
	switch c := content.(type) {
	case string:
		if err := json.Unmarshal([]byte(c), &m); err != nil {
			return nil, false
		}
	case map[string]any:
		m = c
	default:
		return nil, false
	}
	if !truthy(m[ImageMarker]) {
		return nil, false
	}
	items, ok := m["content"].([]any)
	if !ok || len(items) == 0 {
		return nil, false
	}
	return items, true
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b != "" && b != "false"
	case float64:
		return b != 0
	default:
		return v != nil
	}
}

// imageMessage converts the tagged content list into a user message. Items
// are {"type":"text","text":...} or {"type":"image","mime_type":...,"data":...}.
// An "image_url" item holding a data URL is accepted as well.
func imageMessage(items []any) (core.Content, error) {
	msg := core.Content{Role: "user"}
	for i, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			return core.Content{}, fmt.Errorf("content item %d: unexpected shape %T", i, raw)
		}
		switch stringArg(item, "type") {
		case "text":
			msg.Parts = append(msg.Parts, core.TextPart{Text: stringArg(item, "text")})
		case "image":
			data := stringArg(item, "data")
			if data == "" {
				return core.Content{}, fmt.Errorf("content item %d: image without data", i)
			}
			mime := stringArg(item, "mime_type")
			if mime == "" {
				mime = "image/png"
			}
			msg.Parts = append(msg.Parts, core.ImagePart{MimeType: mime, Data: data})
		case "image_url":
			part, err := dataURLPart(item["image_url"])
			if err != nil {
				return core.Content{}, fmt.Errorf("content item %d: %w", i, err)
			}
			msg.Parts = append(msg.Parts, part)
		}
	}
	if len(msg.Parts) == 0 {
		return core.Content{}, errors.New("no usable content items")
	}
	return msg, nil
}

func dataURLPart(v any) (core.ImagePart, error) {
	var url string
	switch u := v.(type) {
	case string:
		url = u
	case map[string]any:
		url = stringArg(u, "url")
	}
	// data:<mime>;base64,<data>
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return core.ImagePart{}, errors.New("unsupported image url")
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok {
		return core.ImagePart{}, errors.New("malformed data url")
	}
	mime, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return core.ImagePart{}, errors.New("image url is not base64 encoded")
	}
	return core.ImagePart{MimeType: mime, Data: data}, nil
}
