package roleplay

import (
	"context"
	"strings"

	"github.com/XitingXie/partner/pkg/orchestrator"
)

// Scene describes the situation the partner plays in.
type Scene struct {
	ID         string
	Title      string
	Setting    string
	Vocabulary []string
	Phrases    []string
	Questions  []string
}

// Scenes resolves scene ids to scene descriptions. Unknown ids get a
// generic small-talk scene so a conversation never fails on lookup.
type Scenes map[string]Scene

func DefaultScenes() Scenes {
	return Scenes{
		"cafe": {
			ID:         "cafe",
			Title:      "Ordering at a cafe",
			Setting:    "A busy coffee shop in the morning. You are the barista taking the learner's order.",
			Vocabulary: []string{"latte", "to go", "receipt", "oat milk", "pastry"},
			Phrases:    []string{"What can I get you?", "For here or to go?", "Anything else?"},
			Questions:  []string{"What size would you like?", "Would you like something to eat?"},
		},
		"hotel": {
			ID:         "hotel",
			Title:      "Checking in at a hotel",
			Setting:    "The front desk of a mid-size city hotel. You are the receptionist.",
			Vocabulary: []string{"reservation", "check-out", "key card", "breakfast included"},
			Phrases:    []string{"Do you have a reservation?", "May I see your ID?"},
			Questions:  []string{"How many nights are you staying?", "Would you like a wake-up call?"},
		},
		"interview": {
			ID:         "interview",
			Title:      "Job interview",
			Setting:    "A first-round interview for an office job. You are the hiring manager.",
			Vocabulary: []string{"experience", "strength", "teamwork", "deadline"},
			Phrases:    []string{"Tell me about yourself.", "Why do you want this job?"},
			Questions:  []string{"What is your biggest strength?", "Where do you see yourself in five years?"},
		},
	}
}

func (s Scenes) Lookup(id string) Scene {
	if scene, ok := s[strings.ToLower(strings.TrimSpace(id))]; ok {
		return scene
	}
	return Scene{
		ID:      id,
		Title:   "Small talk",
		Setting: "A relaxed everyday conversation between two acquaintances.",
	}
}

func (s Scenes) Name() string {
	return "local_scenes"
}

// SceneLevel serves the built-in scene material. The scenes carry a single
// set of phrases, so every level gets the same answer.
func (s Scenes) SceneLevel(ctx context.Context, sceneID, level string) (*orchestrator.SceneLevel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scene := s.Lookup(sceneID)
	return &orchestrator.SceneLevel{
		SceneID:        sceneID,
		Level:          level,
		KeyPhrases:     strings.Join(scene.Phrases, "\n"),
		Vocabulary:     strings.Join(scene.Vocabulary, ", "),
		ExampleDialogs: strings.Join(scene.Questions, "\n"),
	}, nil
}
