package topics

// Topic is a static survey topic the user can hold a conversation about.
// The catalog is loaded at startup and never mutated.
type Topic struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Icon             string  `json:"icon"`
	Description      string  `json:"description"`
	EstimatedMinutes float64 `json:"estimatedMinutes"`
	RatePerMinute    float64 `json:"ratePerMinute"`
	InitialQuestion  string  `json:"initialQuestion"`
}

// ProjectedValue is the full payout when the session runs to the estimate.
func (t Topic) ProjectedValue() float64 {
	return t.EstimatedMinutes * t.RatePerMinute
}

// Instructions builds the interviewer prompt for this topic.
func (t Topic) Instructions() string {
	return "You are a friendly market researcher conducting a conversation about " +
		t.Name + ". " + t.Description +
		". Keep your questions short and conversational, ask one question at a time, " +
		"and follow up on interesting answers. Open with: " + t.InitialQuestion
}

var catalog = []Topic{
	{
		ID:               "food-dining",
		Name:             "Food & Dining",
		Icon:             "🍔",
		Description:      "Share your dining preferences and food experiences",
		EstimatedMinutes: 8,
		RatePerMinute:    0.42,
		InitialQuestion:  "What are your favorite types of cuisine and how often do you dine out?",
	},
	{
		ID:               "technology",
		Name:             "Technology",
		Icon:             "💻",
		Description:      "Discuss your tech habits and device preferences",
		EstimatedMinutes: 10,
		RatePerMinute:    0.45,
		InitialQuestion:  "How do you use technology in your daily life and what devices do you rely on most?",
	},
	{
		ID:               "health-wellness",
		Name:             "Health & Wellness",
		Icon:             "🏥",
		Description:      "Talk about your health routines and wellness goals",
		EstimatedMinutes: 10,
		RatePerMinute:    0.50,
		InitialQuestion:  "What does a healthy lifestyle mean to you and what wellness practices do you follow?",
	},
	{
		ID:               "travel",
		Name:             "Travel",
		Icon:             "✈️",
		Description:      "Share your travel experiences and dream destinations",
		EstimatedMinutes: 12,
		RatePerMinute:    0.48,
		InitialQuestion:  "What are your favorite travel destinations and what type of traveler are you?",
	},
	{
		ID:               "shopping",
		Name:             "Shopping Habits",
		Icon:             "🛍️",
		Description:      "Discuss your shopping preferences and buying decisions",
		EstimatedMinutes: 8,
		RatePerMinute:    0.40,
		InitialQuestion:  "How do you approach shopping and what influences your purchasing decisions?",
	},
	{
		ID:               "entertainment",
		Name:             "Entertainment",
		Icon:             "🎬",
		Description:      "Talk about your entertainment preferences and leisure time",
		EstimatedMinutes: 10,
		RatePerMinute:    0.44,
		InitialQuestion:  "What types of entertainment do you enjoy and how do you spend your leisure time?",
	},
}

// All returns the full catalog. The returned slice is a copy; the catalog
// itself is immutable.
func All() []Topic {
	out := make([]Topic, len(catalog))
	copy(out, catalog)
	return out
}

// ByID looks up a topic by identifier.
func ByID(id string) (Topic, bool) {
	for _, t := range catalog {
		if t.ID == id {
			return t, true
		}
	}
	return Topic{}, false
}
