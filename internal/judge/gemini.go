package judge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"veriHabitAPI/internal/types/habit"
)

// ErrUnavailable signals that no verdict could be obtained from the backend.
// Callers map it to a 503; it must never be confused with a rejection.
var ErrUnavailable = errors.New("verification judge unavailable")

type Verdict struct {
	Verified bool   `json:"verified"`
	Reason   string `json:"reason"`
}

// Judge rules whether a proof image shows the habit being completed.
type Judge interface {
	Judge(ctx context.Context, image []byte, mimeType string, h habit.Context) (Verdict, error)
}

type GeminiJudge struct {
	client *genai.Client
	model  string
}

func NewGeminiJudge(ctx context.Context, apiKey string) (*GeminiJudge, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiJudge{client: client, model: "gemini-1.5-flash"}, nil
}

func (j *GeminiJudge) Judge(ctx context.Context, image []byte, mimeType string, h habit.Context) (Verdict, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(buildPrompt(h)),
		genai.NewPartFromBytes(image, mimeType),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := j.client.Models.GenerateContent(ctx, j.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var verdict Verdict
	if err := json.Unmarshal([]byte(resp.Text()), &verdict); err != nil {
		// JSON mode should prevent this; fail closed rather than crediting a streak.
		return Verdict{Verified: false, Reason: "AI response format error. Verification failed."}, nil
	}

	return verdict, nil
}

func buildPrompt(h habit.Context) string {
	combined := strings.ToLower(h.Title) + " " + strings.ToLower(h.Description)

	contextPrompt := "Look for visual evidence directly related to the task description."
	switch {
	case containsAny(combined, "gym", "workout", "fitness", "run"):
		contextPrompt = "Look specifically for gym equipment, sweat, timestamped fitness app screenshots (Strava/Apple Watch), or treadmills."
	case containsAny(combined, "read", "book", "study"):
		contextPrompt = "Look for open book pages with legible text, a Kindle screen with percentage read, or handwritten study notes."
	case containsAny(combined, "code", "coding", "program"):
		contextPrompt = "Look for an IDE (VS Code, IntelliJ) on a screen with visible code syntax. Ensure it is not just a generic wallpaper."
	case containsAny(combined, "water", "drink"):
		contextPrompt = "Look for a water bottle, glass, or hydration tracking app."
	}

	strictness := h.Strictness
	if strictness == "" {
		strictness = habit.StrictnessMedium
	}

	var strictnessPrompt string
	switch strictness {
	case habit.StrictnessHigh:
		strictnessPrompt = "Be EXTREMELY SKEPTICAL. If the image is blurry, generic, dark, or could be a stock photo, REJECT IT. The proof must be undeniable."
	case habit.StrictnessLow:
		strictnessPrompt = "Be LENIENT. As long as the image is vaguely related to the topic, accept it. Trust the user."
	default:
		strictnessPrompt = "Be FAIR but critical. Reject obvious fakes or completely irrelevant images, but accept reasonable proof."
	}

	return fmt.Sprintf(`You are an AI verification judge for a habit tracking app.

TASK: '%s'
DESCRIPTION: '%s'

%s

STRICTNESS LEVEL: %s
INSTRUCTION: %s

Analyze the image provided. Does it prove the user completed the task?
Return a JSON response ONLY: { "verified": boolean, "reason": "Short, witty feedback string (max 15 words)" }.`,
		h.Title, h.Description, contextPrompt, strings.ToUpper(string(strictness)), strictnessPrompt)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
