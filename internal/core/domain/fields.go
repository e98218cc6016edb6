package domain

// Field is one slot of the onboarding questionnaire.
type Field struct {
	Name     string
	Question string
	Get      func(*ClientData) *string
	Set      func(*ClientData, *string)
}

// NumFields is the number of questionnaire slots.
const NumFields = 7

// Fields lists the questionnaire slots in the order they are filled.
var Fields = [NumFields]Field{
	{
		Name:     "company",
		Question: "In a brief summary, tell me where you work.",
		Get:      func(c *ClientData) *string { return c.Company },
		Set:      func(c *ClientData, v *string) { c.Company = v },
	},
	{
		Name:     "role",
		Question: "Describe your role and responsibilities.",
		Get:      func(c *ClientData) *string { return c.Role },
		Set:      func(c *ClientData, v *string) { c.Role = v },
	},
	{
		Name:     "audience",
		Question: "Describe your target audience for the survey.",
		Get:      func(c *ClientData) *string { return c.Audience },
		Set:      func(c *ClientData, v *string) { c.Audience = v },
	},
	{
		Name:     "uncertainties",
		Question: "What are the key uncertainties that you'd like to ask your audience?",
		Get:      func(c *ClientData) *string { return c.Uncertainties },
		Set:      func(c *ClientData, v *string) { c.Uncertainties = v },
	},
	{
		Name:     "themes",
		Question: "What themes, products, or services are most important now?",
		Get:      func(c *ClientData) *string { return c.Themes },
		Set:      func(c *ClientData, v *string) { c.Themes = v },
	},
	{
		Name:     "certainty",
		Question: "What would certainty feel like to you?",
		Get:      func(c *ClientData) *string { return c.Certainty },
		Set:      func(c *ClientData, v *string) { c.Certainty = v },
	},
	{
		Name:     "documents",
		Question: "Do you have any documents to help us understand your goals?",
		Get:      func(c *ClientData) *string { return c.Documents },
		Set:      func(c *ClientData, v *string) { c.Documents = v },
	},
}

// FieldValue returns the value of field i, or "N/A" when unset.
func FieldValue(c *ClientData, i int) string {
	if v := Fields[i].Get(c); v != nil {
		return *v
	}
	return "N/A"
}
