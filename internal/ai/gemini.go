package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiProvider implements IntentProvider using Google's Gemini models.
type GeminiProvider struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiProvider initializes a new Gemini client.
// apiKey should be provided from environment variables.
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	// Use Gemini 2.0 Flash for low latency and cost efficiency.
	model := client.GenerativeModel("gemini-2.0-flash")

	// Force JSON response for structured parsing.
	model.ResponseMIMEType = "application/json"

	model.SetTemperature(0.2)

	return &GeminiProvider{
		client: client,
		model:  model,
	}, nil
}

// Close cleans up the Gemini client resources.
func (p *GeminiProvider) Close() {
	p.client.Close()
}

// ParseTripIntent analyzes a carpool message to extract the offer or request.
func (p *GeminiProvider) ParseTripIntent(ctx context.Context, userMessage string, currentContext map[string]string) (*TripIntent, error) {
	systemPrompt := buildSystemPrompt(currentContext)

	fullPrompt := fmt.Sprintf("%s\n\nUser Message: %s", systemPrompt, userMessage)

	resp, err := p.model.GenerateContent(ctx, genai.Text(fullPrompt))
	if err != nil {
		return nil, fmt.Errorf("gemini generation error: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no response candidates from Gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		}
	}

	// Clean up potential markdown formatting (though json mode should handle this, safety first).
	cleanJSON := cleanJSONString(responseText.String())

	var result TripIntent
	if err := json.Unmarshal([]byte(cleanJSON), &result); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w. Raw: %s", err, cleanJSON)
	}

	return &result, nil
}

// buildSystemPrompt constructs the instructions for the AI.
func buildSystemPrompt(ctxMap map[string]string) string {
	currentDate := ctxMap["current_date"]
	if currentDate == "" {
		currentDate = "UNKNOWN_DATE"
	}

	return fmt.Sprintf(`Role: You are the intake parser for "Hitch", a commuter carpool board in Taiwan.
Context:
- Current Date: %s

TASK:
Read one free-form carpool message and extract a structured post.

RULES:

1. ROLE DETECTION:
   - Driver offering seats ("順路載", "可載", "offering a ride", "I drive") -> "role": "offer".
   - Rider looking for a seat ("找車", "求搭", "looking for a ride", "need a lift") -> "role": "request".
   - Anything else (questions, chatter, lost-and-found) -> "role": "other" with a polite reply.

2. PLACES:
   - KEYWORDS "從", "From", "出發" -> origin. KEYWORDS "去", "到", "To" -> destination.
   - Extract place NAMES as written; do not invent addresses.
   - If either endpoint is missing, leave it null and ask for it in "reply".

3. SCHEDULE:
   - Recurring phrasing ("每週一三", "every Monday", "weekdays") -> fill "weekdays", leave "travel_date" null.
   - One-time phrasing ("明天", "9/15", "next Friday") -> resolve against Current Date into "travel_date" (YYYY-MM-DD), leave "weekdays" empty.
   - A post is EITHER recurring OR one-time, never both.

4. TIME:
   - Convert to 24-hour HH:MM. "早上8點" -> "08:00", "下午5點半" -> "17:30".
   - AM/PM ambiguous ("8點") -> leave "depart_time" null and ask.

5. FLEXIBILITY (requests only):
   - "準時", "exactly", "on the dot" -> "strict".
   - "前後半小時", "around", "flexible" -> "flexible".
   - "都可以", "anytime", "whenever" -> "very_flexible".
   - Not stated -> "very_flexible".

6. REPLY:
   - Natural, conversational Traditional Chinese (台灣繁體中文口語).
   - Confirm what was understood, or ask for the single most important missing field.
   - NEVER include internal state tokens or markdown in "reply".

7. Output JSON Schema:
{
  "role": "offer" | "request" | "other",
  "origin": "string or null",
  "destination": "string or null",
  "travel_date": "YYYY-MM-DD or null",
  "weekdays": ["monday".."sunday"],
  "depart_time": "HH:MM or null",
  "flexibility": "strict" | "flexible" | "very_flexible",
  "reply": "string (user facing response)"
}
`, currentDate)
}

// cleanJSONString removes markdown code blocks if present (e.g. ```json ... ```)
func cleanJSONString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "```json")
	input = strings.TrimPrefix(input, "```")
	input = strings.TrimSuffix(input, "```")
	return strings.TrimSpace(input)
}
