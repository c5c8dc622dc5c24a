package ai

// TripIntent captures the structured output from the AI model.
type TripIntent struct {
	// Role describes what the message is posting.
	// Valid values: "offer" (driver with seats), "request" (rider looking),
	// "other" (not a carpool post).
	Role string `json:"role"`

	// Origin is the departure place name extracted from the message.
	Origin *string `json:"origin,omitempty"`

	// Destination is the target place name extracted from the message.
	Destination *string `json:"destination,omitempty"`

	// TravelDate is the one-time trip date (YYYY-MM-DD), resolved against
	// the current date in the context. Null when the post is recurring.
	TravelDate *string `json:"travel_date,omitempty"`

	// Weekdays lists recurring travel days ("monday".."sunday").
	// Empty for one-time trips.
	Weekdays []string `json:"weekdays,omitempty"`

	// DepartTime is the departure time in 24-hour HH:MM.
	DepartTime *string `json:"depart_time,omitempty"`

	// Flexibility is the rider's stated timing tolerance.
	// Valid values: "strict", "flexible", "very_flexible".
	Flexibility string `json:"flexibility,omitempty"`

	// Reply is a short response to the user confirming what was understood
	// or asking for the missing piece.
	Reply string `json:"reply"`
}
