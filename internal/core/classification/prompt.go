package classification

import (
	"fmt"

	"github.com/kirillkom/insurance-doc-classifier/internal/core/domain"
)

const responsePlaceholder = "ONE_OF_THE_FOUR_TYPES"

// BuildPrompt returns the classification instruction sent with every payload.
// Only the filename varies.
func BuildPrompt(filename string) string {
	return fmt.Sprintf(`You are a document classification expert for insurance and risk management documents.

Analyze the uploaded file and classify it into exactly one of these four categories:

1. **%s** - Documents containing loss history, claims data, or loss statistics
2. **%s** - Standard insurance forms (ACORD 25, ACORD 28, etc.)
3. **%s** - Additional forms, endorsements, or riders
4. **%s** - Experience modification worksheets or rating documents

Filename: %s

Instructions:
- Analyze the document content and filename
- Classify it into exactly one of the four categories above

Respond with only a JSON object in this exact format:
%s

Do not include any other text, only the JSON object.
`,
		domain.LabelLossRun,
		domain.LabelAcordForm,
		domain.LabelSupplementalForms,
		domain.LabelModSheet,
		filename,
		exampleResponse(responsePlaceholder),
	)
}

// ExampleResponse is the exact reply format the prompt asks for, filled in
// with label.
func ExampleResponse(label domain.Label) string {
	return exampleResponse(string(label))
}

func exampleResponse(value string) string {
	return `{"classification": "` + value + `"}`
}
