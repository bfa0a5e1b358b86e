package roleplay

import (
	"fmt"
	"strings"

	"github.com/XitingXie/partner/pkg/orchestrator"
)

var languageNames = map[orchestrator.Language]string{
	orchestrator.LanguageEn: "English",
	orchestrator.LanguageEs: "Spanish",
	orchestrator.LanguageFr: "French",
	orchestrator.LanguageDe: "German",
	orchestrator.LanguageIt: "Italian",
	orchestrator.LanguagePt: "Portuguese",
	orchestrator.LanguageJa: "Japanese",
	orchestrator.LanguageZh: "Chinese",
	orchestrator.LanguageAr: "Arabic",
	orchestrator.LanguageKo: "Korean",
}

func languageName(lang orchestrator.Language) string {
	if name, ok := languageNames[lang]; ok {
		return name
	}
	return "English"
}

func sceneBlock(scene Scene) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The current scene is: %s.\n", scene.Title)
	fmt.Fprintf(&b, "- Setting: %s\n", scene.Setting)
	if len(scene.Vocabulary) > 0 {
		fmt.Fprintf(&b, "- Key Vocabulary: %s\n", strings.Join(scene.Vocabulary, ", "))
	}
	if len(scene.Phrases) > 0 {
		fmt.Fprintf(&b, "- Common Phrases: %s\n", strings.Join(scene.Phrases, ", "))
	}
	if len(scene.Questions) > 0 {
		fmt.Fprintf(&b, "- Questions to Ask: %s\n", strings.Join(scene.Questions, ", "))
	}
	return b.String()
}

func tutorPrompt(scene Scene, target, firstLanguage orchestrator.Language, level string) string {
	return fmt.Sprintf(`You are a language tutor checking one sentence a learner said while practicing %s.
The learner's level is %s. Their first language is %s.
%s
Decide whether the sentence has a grammar error, a wrong word, or an expression a native speaker
would not use in this scene. Small stylistic choices and missing punctuation are NOT errors.

Respond with ONLY a JSON object with EXACTLY these keys:
- "needs_correction": true or false
- "tutor_message": if needs_correction is true, a short, friendly correction written in %s that
  quotes the better %s sentence; otherwise an empty string
- "feedback": an object with "unfamiliar_words" (array), "not_so_good_expressions" (object),
  "grammar_errors" (object mapping the incorrect sentence to ONE corrected sentence) and
  "best_fit_words" (object). Use empty arrays or objects when nothing applies.`,
		languageName(target), level, languageName(firstLanguage), sceneBlock(scene),
		languageName(firstLanguage), languageName(target))
}

func partnerPrompt(scene Scene, target orchestrator.Language) string {
	return fmt.Sprintf(`You are a conversation partner in a roleplay. Act as if you are a real person in
the scene and never mention that this is a practice session. Keep the conversation natural and immersive.
%s
Reply in %s with one or two short sentences, then hand the turn back to the learner, often with a
question. Do not correct the learner's language.`,
		sceneBlock(scene), languageName(target))
}
