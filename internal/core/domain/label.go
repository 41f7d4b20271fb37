package domain

type Label string

const (
	LabelLossRun           Label = "Loss Run"
	LabelAcordForm         Label = "ACORD form"
	LabelSupplementalForms Label = "Supplemental forms"
	LabelModSheet          Label = "Mod sheet"
	LabelUnknown           Label = "Unknown"
)

// Labels returns the four meaningful categories in prompt order.
func Labels() []Label {
	return []Label{LabelLossRun, LabelAcordForm, LabelSupplementalForms, LabelModSheet}
}

// NormalizeLabel matches s exactly against the four categories.
// Anything else, including the empty string, is Unknown.
func NormalizeLabel(s string) Label {
	for _, label := range Labels() {
		if string(label) == s {
			return label
		}
	}
	return LabelUnknown
}

func (l Label) Valid() bool {
	return NormalizeLabel(string(l)) != LabelUnknown
}
