package ai

const ProviderOpenAI = "OpenAI"

// DefaultModelLabel is the model preselected for a fresh configuration.
const DefaultModelLabel = "GPT-5 mini"

var modelIDs = map[string]string{
	"GPT-5":      "gpt-4.1",
	"GPT-5 mini": "gpt-4o-mini",
	"GPT-5 nano": "gpt-4o-mini",
	"GPT-4.1":    "gpt-4.1",
}

// ModelLabels lists the selectable model labels in display order.
var ModelLabels = []string{"GPT-5", "GPT-5 mini", "GPT-5 nano", "GPT-4.1"}

func ValidModel(label string) bool {
	_, ok := modelIDs[label]
	return ok
}

// ModelID maps a display label to the API model id. Unknown labels pass through.
func ModelID(label string) string {
	if id, ok := modelIDs[label]; ok {
		return id
	}
	return label
}
