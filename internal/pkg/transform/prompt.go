package transform

import (
	"fmt"
	"strings"
)

// Room types and design styles accepted by the transformation API.
var roomTypes = map[string]string{
	"living_room": "living room",
	"bedroom":     "bedroom",
	"kitchen":     "kitchen",
	"bathroom":    "bathroom",
	"dining_room": "dining room",
	"home_office": "home office",
}

var designStyles = map[string]string{
	"modern":       "modern",
	"minimalist":   "minimalist",
	"scandinavian": "scandinavian",
	"industrial":   "industrial",
	"bohemian":     "bohemian",
	"rustic":       "rustic",
	"coastal":      "coastal",
	"luxury":       "luxurious",
}

// IsValidRoomType reports whether the given room type is supported.
func IsValidRoomType(roomType string) bool {
	_, ok := roomTypes[strings.ToLower(strings.TrimSpace(roomType))]
	return ok
}

// IsValidStyle reports whether the given design style is supported.
func IsValidStyle(style string) bool {
	_, ok := designStyles[strings.ToLower(strings.TrimSpace(style))]
	return ok
}

// ComposePrompt builds the generation prompt from a room type and a design
// style. Inputs must be validated first; unknown values fall back to their
// raw form.
func ComposePrompt(roomType, style string) string {
	room := strings.ToLower(strings.TrimSpace(roomType))
	if label, ok := roomTypes[room]; ok {
		room = label
	}
	s := strings.ToLower(strings.TrimSpace(style))
	if label, ok := designStyles[s]; ok {
		s = label
	}
	return fmt.Sprintf(
		"a %s %s, interior design, professionally staged, photorealistic, natural lighting, high resolution",
		s, room,
	)
}
