package assistant

import (
	"fmt"
	"strings"

	"ludolens/internal/models"
)

const (
	DefaultImageQuestion = "Which rule applies to this game situation?"
	imageAttachedNote    = "[Game table image attached]"
	imageOnlyPrompt      = "Which rule applies to the situation shown in the image?"
)

func excerptBlock(results []models.SearchResult) string {
	parts := make([]string, 0, len(results))
	for i, r := range results {
		parts = append(parts, fmt.Sprintf("[Excerpt %d]\n%s", i+1, strings.TrimSpace(r.Content)))
	}
	return strings.Join(parts, "\n\n")
}

func imageSystemPrompt(results []models.SearchResult, language string) string {
	return fmt.Sprintf(`You are an assistant specialised in tabletop games.

Your job is to look at the photo of the game table and explain which rule from the manual applies to the situation shown.

MANUAL CONTEXT:

%s

INSTRUCTIONS:
1. Study the image carefully to understand the state of the game.
2. Identify which rule of the manual is relevant to the situation.
3. Explain the rule clearly and objectively in %s.
4. If the situation is not clear from the image, ask for more information.
5. If no specific rule is found in the context above, say so plainly.

Answer directly so the players can get back to their game quickly.`, excerptBlock(results), language)
}

func textSystemPrompt(results []models.SearchResult, language string) string {
	return fmt.Sprintf(`You are an assistant specialised in tabletop games.
Answer the user's question based on the manual rules given below.
Be clear and objective and answer in %s.

MANUAL CONTEXT:

%s`, language, excerptBlock(results))
}

// imageUserPrompt is the text sent next to the picture.
func imageUserPrompt(question string, asked bool) string {
	if !asked {
		return imageOnlyPrompt
	}
	return question + "\n\n" + imageAttachedNote
}
