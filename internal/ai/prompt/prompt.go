// Package prompt builds game-master prompts for the AI dispatch layer.
// The framing keeps the model in the game-master role: descriptive but
// concise, never deciding for the players.
package prompt

import (
	"fmt"
	"strings"
)

const systemPreamble = `You are an experienced Dungeons & Dragons 5th Edition
Game Master. You are creative, impartial, and focused on a fun experience
for the players.

Guidelines:
- Be descriptive but concise
- Keep the tone appropriate to the situation
- Suggest dice rolls when the rules call for them
- Never make decisions for the players
- Stay consistent with the established narrative
- Use at most 200 words per response`

// Context carries the session and character details a prompt is enriched
// with. Empty fields are omitted.
type Context struct {
	Scene          string
	Location       string
	SessionState   string
	CharacterName  string
	CharacterClass string
}

// Narration frames a free-text player action for the game master.
func Narration(action string, pc Context) string {
	return build("The players act:\n"+strings.TrimSpace(action)+"\n\nNarrate what happens next.", pc)
}

// SceneIntroduction frames the opening of a new session.
func SceneIntroduction(scene string, pc Context) string {
	body := fmt.Sprintf("Open the adventure. Starting scene: %s.\nIntroduce the setting and invite the players to act.", strings.TrimSpace(scene))
	return build(body, pc)
}

// CharacterDescription asks for a physical description of a new character.
func CharacterDescription(name string, level int, pc Context) string {
	body := fmt.Sprintf(`Create an evocative physical description for this character:

Name: %s
Level: %d

The description should run 50-100 words and cover appearance, notable
traits, attire, and one unique detail.`, strings.TrimSpace(name), level)
	return build(body, pc)
}

// NPC asks for a non-player character fitting the location and purpose.
func NPC(location, purpose string, pc Context) string {
	body := fmt.Sprintf(`Create an interesting NPC for this situation:

Location: %s
Purpose: %s

Include a name and appearance, basic personality, main motivation, and how
they might interact with the players.`, strings.TrimSpace(location), strings.TrimSpace(purpose))
	return build(body, pc)
}

// Encounter asks for an encounter matched to the party.
func Encounter(partyLevel int, environment string, pc Context) string {
	body := fmt.Sprintf(`Create a D&D 5e encounter for:

Party level: %d
Environment: %s

Include the encounter type (combat, social, exploration), specific enemies
or challenges, possible rewards, and a scene description.`, partyLevel, strings.TrimSpace(environment))
	return build(body, pc)
}

func build(body string, pc Context) string {
	var sb strings.Builder
	sb.WriteString(systemPreamble)

	context := enrich(pc)
	if context != "" {
		sb.WriteString("\n\nContext:")
		sb.WriteString(context)
	}

	sb.WriteString("\n\n")
	sb.WriteString(body)
	return sb.String()
}

func enrich(pc Context) string {
	var sb strings.Builder
	if pc.Scene != "" {
		sb.WriteString("\nCurrent scene: " + pc.Scene)
	}
	if pc.Location != "" {
		sb.WriteString("\nLocation: " + pc.Location)
	}
	if pc.SessionState != "" {
		sb.WriteString("\nSession state: " + pc.SessionState)
	}
	if pc.CharacterName != "" {
		sb.WriteString("\nActive character: " + pc.CharacterName)
		if pc.CharacterClass != "" {
			sb.WriteString(" (" + pc.CharacterClass + ")")
		}
	}
	return sb.String()
}
