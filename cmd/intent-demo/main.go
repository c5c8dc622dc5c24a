package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"hitch/internal/ai"
)

func main() {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		log.Fatal("GEMINI_API_KEY environment variable not set")
	}

	ctx := context.Background()
	provider, err := ai.NewGeminiProvider(ctx, apiKey)
	if err != nil {
		log.Fatalf("Failed to initialize AI provider: %v", err)
	}
	defer provider.Close()

	currentContext := map[string]string{
		"current_date": time.Now().Format("2006-01-02"),
	}

	userMessage := "每週一三早上八點從新竹出發去台北，可以載兩個人"
	fmt.Printf("User: %s\n", userMessage)

	result, err := provider.ParseTripIntent(ctx, userMessage, currentContext)
	if err != nil {
		log.Fatalf("Error parsing intent: %v", err)
	}

	fmt.Printf("AI Reply: %s\n", result.Reply)
	fmt.Printf("Role: %s\n", result.Role)
	if result.Origin != nil {
		fmt.Printf("Origin: %s\n", *result.Origin)
	}
	if result.Destination != nil {
		fmt.Printf("Destination: %s\n", *result.Destination)
	}
	if len(result.Weekdays) > 0 {
		fmt.Printf("Weekdays: %v\n", result.Weekdays)
	}
	if result.DepartTime != nil {
		fmt.Printf("Depart: %s\n", *result.DepartTime)
	}
}
