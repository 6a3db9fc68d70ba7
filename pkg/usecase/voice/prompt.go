package voice

import (
	_ "embed"
	"strings"

	"github.com/quest-labs/relo/pkg/model"
)

//go:embed voice_prompt.md
var voicePrompt string

// buildVoicePrompt renders the per-turn system prompt from the gathered
// context. Sections are labeled and appear in a fixed order; an absent
// source is omitted entirely, never emitted empty.
func buildVoicePrompt(vc *model.VoiceContext) string {
	sections := []string{strings.TrimSpace(voicePrompt)}

	if vc.Profile != nil && vc.Profile.DisplayName != "" {
		sections = append(sections, "The user's name is "+vc.Profile.DisplayName+". Address them by name occasionally to keep the conversation personal.")
	}

	if profile := renderProfile(vc.Profile); profile != "" {
		sections = append(sections, "User profile:\n"+profile)
	}

	if len(vc.Facts) > 0 {
		var lines []string
		for _, f := range vc.Facts {
			lines = append(lines, "- "+string(f.Type)+": "+f.Value)
		}
		sections = append(sections, "Known facts about the user:\n"+strings.Join(lines, "\n"))
	}

	if vc.KnowledgeGraph != "" {
		sections = append(sections, "Related knowledge:\n"+vc.KnowledgeGraph)
	}

	if vc.Memory != "" {
		sections = append(sections, "Personal memory from past conversations:\n"+vc.Memory)
	}

	if len(vc.Articles) > 0 {
		var lines []string
		for _, a := range vc.Articles {
			line := "- " + a.Title
			if a.Excerpt != "" {
				line += ": " + a.Excerpt
			}
			if a.CountryCode != "" {
				line += " (" + a.CountryCode + ")"
			}
			lines = append(lines, line)
		}
		sections = append(sections, "Relevant articles:\n"+strings.Join(lines, "\n"))
	}

	return strings.Join(sections, "\n\n")
}

func renderProfile(user *model.User) string {
	if user == nil {
		return ""
	}

	var lines []string
	if user.Nationality != "" {
		lines = append(lines, "- Nationality: "+user.Nationality)
	}
	if len(user.DestinationCountries) > 0 {
		lines = append(lines, "- Destination countries: "+strings.Join(user.DestinationCountries, ", "))
	}
	if user.Budget != "" {
		lines = append(lines, "- Budget: "+user.Budget)
	}
	if user.Timeline != "" {
		lines = append(lines, "- Timeline: "+user.Timeline)
	}
	return strings.Join(lines, "\n")
}
