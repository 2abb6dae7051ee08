package prompt

import (
	"strings"
	"text/template"

	"github.com/aidelabs/aide/api"
)

// The chat template renders turns in ChatML framing. Image and audio
// attachments become [img] and [audio] tags ahead of the turn text; the
// model's processor replaces the tags with the media embeddings.
var chatTemplate = template.Must(template.New("chat").Parse(
	`{{- range . }}<|im_start|>{{ .Role }}
{{ range .Images }}[img]{{ end }}{{ if .Audio }}[audio]{{ end }}{{ .Content }}<|im_end|>
{{ end }}<|im_start|>assistant
`))

// Render produces the model prompt for a normalized turn sequence.
func Render(turns []api.Turn) (string, error) {
	var sb strings.Builder
	if err := chatTemplate.Execute(&sb, turns); err != nil {
		return "", err
	}
	return sb.String(), nil
}
