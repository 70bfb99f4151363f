package notes

import (
	"encoding/json"
	"regexp"
	"strings"
)

const (
	// Sentinel separates the technical channel from the user channel.
	Sentinel = "===MARKETING_NOTES==="

	// Separator is what the multiplexer actually writes between phases.
	Separator = "\n\n" + Sentinel + "\n\n"

	// ErrorTrailer carries a mid-stream generation failure. It is declared
	// before the body is written so it can be set after streaming started.
	ErrorTrailer = "X-Notes-Error"

	ContentType = "text/plain; charset=utf-8"
)

// ErrorPayload is the JSON object written when a request fails.
type ErrorPayload struct {
	Error string `json:"error"`
}

// EncodeError renders msg as the JSON error payload.
func EncodeError(msg string) []byte {
	data, err := json.Marshal(ErrorPayload{Error: msg})
	if err != nil {
		return []byte(`{"error":"An unknown error occurred"}`)
	}
	return data
}

// DecodeError reports whether body is exactly an error payload.
func DecodeError(body string) (string, bool) {
	trimmed := strings.TrimSpace(body)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return "", false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		return "", false
	}
	raw, ok := fields["error"]
	if !ok {
		return "", false
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err != nil {
		msg = string(raw)
	}
	if msg == "" {
		msg = "An error occurred while generating notes"
	}
	return msg, true
}

var headerPatterns = map[Channel]*regexp.Regexp{
	ChannelTechnical: regexp.MustCompile(`(?i)DEVELOPER NOTES:?`),
	ChannelUser:      regexp.MustCompile(`(?i)MARKETING NOTES:?`),
}

// DisplayText strips the first channel header from text and trims it.
func DisplayText(channel Channel, text string) string {
	re, ok := headerPatterns[channel]
	if !ok {
		return strings.TrimSpace(text)
	}
	if loc := re.FindStringIndex(text); loc != nil {
		text = text[:loc[0]] + text[loc[1]:]
	}
	return strings.TrimSpace(text)
}
