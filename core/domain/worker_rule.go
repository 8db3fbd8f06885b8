package domain

// SenderRule ignores a known automated sender when every set condition holds.
// The sender must contain one of SenderContains; an empty SubjectContains matches any subject.
type SenderRule struct {
	Name            string   `json:"name" mapstructure:"name"`
	SenderContains  []string `json:"sender_contains" mapstructure:"sender_contains"`
	SubjectPrefix   string   `json:"subject_prefix" mapstructure:"subject_prefix"`
	SubjectSuffix   string   `json:"subject_suffix" mapstructure:"subject_suffix"`
	SubjectContains []string `json:"subject_contains" mapstructure:"subject_contains"`
}

// LabelSet names the mailbox labels the pipeline writes.
type LabelSet struct {
	Checked string   `json:"checked" mapstructure:"checked"`
	Keyword string   `json:"keyword" mapstructure:"keyword"`
	AI      string   `json:"ai" mapstructure:"ai"`
	Legacy  []string `json:"legacy" mapstructure:"legacy"`
}

// All returns every label a reprocessing run must clear.
func (l LabelSet) All() []string {
	all := []string{l.Checked, l.Keyword, l.AI}
	return append(all, l.Legacy...)
}
