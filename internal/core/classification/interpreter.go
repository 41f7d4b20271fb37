package classification

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/insurance-doc-classifier/internal/core/domain"
)

type keywordGroup struct {
	label    domain.Label
	keywords []string
}

// Checked in order; the first group with a hit wins. "form" is broad, so
// loss keywords must stay ahead of it.
var fallbackKeywords = []keywordGroup{
	{label: domain.LabelLossRun, keywords: []string{"loss run", "loss", "claims", "history"}},
	{label: domain.LabelAcordForm, keywords: []string{"acord", "form"}},
	{label: domain.LabelSupplementalForms, keywords: []string{"supplemental", "endorsement", "rider"}},
	{label: domain.LabelModSheet, keywords: []string{"mod", "modification", "rating"}},
}

// Interpreter recovers a label from free-form model output.
type Interpreter struct {
	logger *slog.Logger
}

func NewInterpreter(logger *slog.Logger) *Interpreter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpreter{logger: logger}
}

// Interpret never fails: anything it cannot make sense of is Unknown.
func (in *Interpreter) Interpret(raw, filename string) (label domain.Label) {
	defer func() {
		if r := recover(); r != nil {
			in.logger.Error("interpret_response_panic", "filename", filename, "panic", fmt.Sprint(r))
			label = domain.LabelUnknown
		}
	}()

	text := strings.TrimSpace(raw)
	candidate, ok := structuredCandidate(text)
	if !ok {
		candidate = string(keywordFallback(text))
	}

	label = domain.NormalizeLabel(candidate)
	if label == domain.LabelUnknown && candidate != string(domain.LabelUnknown) {
		in.logger.Warn("invalid_classification", "filename", filename, "classification", candidate)
	}
	return label
}

// structuredCandidate reads the classification field of the outermost
// {...} span. Once that span decodes as an object the keyword scan is off:
// a missing or non-string field yields an empty candidate.
func structuredCandidate(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", false
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil {
		return "", false
	}
	value, _ := obj["classification"].(string)
	return strings.TrimSpace(value), true
}

func keywordFallback(text string) domain.Label {
	lower := strings.ToLower(text)
	for _, group := range fallbackKeywords {
		for _, keyword := range group.keywords {
			if strings.Contains(lower, keyword) {
				return group.label
			}
		}
	}
	return domain.LabelUnknown
}
