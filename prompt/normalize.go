// Package prompt turns raw conversation history into the strictly
// alternating turn sequence the chat template requires, and renders that
// sequence into the model's prompt string.
package prompt

import (
	"log/slog"

	"github.com/aidelabs/aide/api"
)

// NewUserTurn builds the newest user turn from the request content. Media
// parts precede the text in fixed order: image, audio, text.
func NewUserTurn(text string, image api.ImageData, audio []byte) api.Turn {
	turn := api.Turn{Role: "user", Content: text}
	if len(image) > 0 {
		turn.Images = []api.ImageData{image}
	}
	if len(audio) > 0 {
		turn.Audio = audio
	}
	return turn
}

// Normalize repairs an arbitrary, possibly malformed history and appends the
// new user turn, producing a sequence that starts with at most one system
// turn followed by strictly alternating user/assistant turns and ends with
// the new user turn.
//
// Malformed histories are never rejected: a missing turn is patched with a
// synthetic empty turn of the expected role. Each repair is logged so client
// bugs stay visible even though the request succeeds.
func Normalize(history []api.Turn, next api.Turn) []api.Turn {
	out := make([]api.Turn, 0, len(history)+2)

	// An optional system turn is only honored in first position.
	if len(history) > 0 && history[0].Role == "system" {
		out = append(out, history[0])
		history = history[1:]
	}

	expected := "user"
	for i, turn := range history {
		role := chatRole(turn.Role)
		if role != expected {
			slog.Warn("conversation repair: inserting placeholder turn",
				"index", i, "got", turn.Role, "inserted", expected)
			out = append(out, api.Turn{Role: expected})
		}
		out = append(out, turn)
		expected = flip(role)
	}

	// History ending on a user turn needs an empty assistant reply before
	// the new user turn can follow.
	if expected == "assistant" {
		slog.Warn("conversation repair: history ended on user turn, inserting empty assistant turn")
		out = append(out, api.Turn{Role: "assistant"})
	}

	return append(out, next)
}

// chatRole collapses any role onto the user/assistant alternation axis.
// Stray system turns past the first position count as user turns.
func chatRole(role string) string {
	if role == "assistant" {
		return "assistant"
	}
	return "user"
}

func flip(role string) string {
	if role == "user" {
		return "assistant"
	}
	return "user"
}
