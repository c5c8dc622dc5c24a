package ai

import (
	"context"
)

// IntentProvider defines the contract for interacting with AI models.
// This interface allows for swapping different AI providers (Gemini, OpenAI, etc.) in the future.
type IntentProvider interface {
	// ParseTripIntent analyzes a free-form carpool message and extracts the
	// structured ride offer or request it describes. contextMap carries
	// dynamic information like "current_date".
	ParseTripIntent(ctx context.Context, userMessage string, currentContext map[string]string) (*TripIntent, error)
}
