// Package scoring turns sampled chats into weighted rubric evaluations.
package scoring

type Criterion struct {
	Key    string
	Label  string
	Weight float64
}

// Criteria is the fixed rubric; weights sum to 100.
var Criteria = []Criterion{
	{"opening_response_time", "Opening Response Time", 4},
	{"ongoing_response_time", "Ongoing Response Time", 4},
	{"holding_management", "Holding Management", 4},
	{"closing_management", "Closing Management", 4},
	{"verification_efficiency", "Verification Efficiency", 20},
	{"thoroughness", "Thoroughness", 20},
	{"proactiveness", "Proactiveness", 4},
	{"relevance_and_clarity", "Relevance and Clarity", 4},
	{"language_natural_flow", "Language & Natural Flow", 10},
	{"correction", "Correction", 7},
	{"proper_empathy_acknowledgement", "Proper Empathy & Acknowledgement", 14},
	{"overall_chat_handling_customer_experience", "Overall Chat Handling Customer Experience", 5},
}

func TotalWeight() float64 {
	var sum float64
	for _, c := range Criteria {
		sum += c.Weight
	}
	return sum
}
