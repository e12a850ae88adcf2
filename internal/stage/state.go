package stage

import (
	"maps"
	"slices"
	"strings"

	"minutes/internal/services"
)

// ActionItem is a task assigned to a meeting participant.
type ActionItem struct {
	Owner string `json:"person"`
	Task  string `json:"task"`
}

// String renders the item the way reports list it.
func (a ActionItem) String() string {
	owner := strings.TrimSpace(a.Owner)
	task := strings.TrimSpace(a.Task)
	if owner == "" {
		return task
	}
	return owner + ": " + task
}

// Report is the structured analysis produced at the end of a run.
type Report struct {
	Summary       string            `json:"summary"`
	ActionItems   []string          `json:"action_items"`
	ContextFields map[string]string `json:"context_fields"`
	FinalDecision string            `json:"final_decision"`
	KeyPoints     []string          `json:"key_points,omitempty"`
}

func (r *Report) clone() *Report {
	if r == nil {
		return nil
	}
	out := *r
	out.ActionItems = slices.Clone(r.ActionItems)
	out.KeyPoints = slices.Clone(r.KeyPoints)
	out.ContextFields = maps.Clone(r.ContextFields)
	return &out
}

// State is the record carried through one pipeline run. The input fields are
// fixed before execution; every generated field is owned by a single stage
// and only changes through Merge.
type State struct {
	RunID string `json:"run_id,omitempty"`

	Transcript   string `json:"transcript,omitempty"`
	DeckPath     string `json:"deck_path,omitempty"`
	VideoPath    string `json:"video_path,omitempty"`
	WorkspaceDir string `json:"workspace_dir,omitempty"`

	LocalTranscript string            `json:"local_transcript,omitempty"`
	FusedTranscript string            `json:"fused_transcript,omitempty"`
	SlideText       string            `json:"slide_text,omitempty"`
	CombinedContext string            `json:"combined_context,omitempty"`
	KeyPoints       []string          `json:"key_points,omitempty"`
	ActionItems     []ActionItem      `json:"action_items,omitempty"`
	Report          *Report           `json:"report,omitempty"`
	Error           *services.Failure `json:"error,omitempty"`
}

// Update is the partial result of one stage. Nil fields leave the state
// untouched; a non-nil empty slice clears the field.
type Update struct {
	LocalTranscript *string
	FusedTranscript *string
	SlideText       *string
	CombinedContext *string
	KeyPoints       []string
	ActionItems     []ActionItem
	Report          *Report
	Error           *services.Failure
}

// Text returns a pointer to v for populating Update fields.
func Text(v string) *string { return &v }

// IsZero reports whether the update touches nothing.
func (u Update) IsZero() bool {
	return u.LocalTranscript == nil && u.FusedTranscript == nil && u.SlideText == nil &&
		u.CombinedContext == nil && u.KeyPoints == nil && u.ActionItems == nil &&
		u.Report == nil && u.Error == nil
}

// Merge returns a copy of s with every field named by u overwritten. Fields
// u does not mention keep their previous values. Collections are replaced
// whole and copied so the result never aliases the update.
func (s State) Merge(u Update) State {
	out := s
	out.KeyPoints = slices.Clone(s.KeyPoints)
	out.ActionItems = slices.Clone(s.ActionItems)
	out.Report = s.Report.clone()

	if u.LocalTranscript != nil {
		out.LocalTranscript = *u.LocalTranscript
	}
	if u.FusedTranscript != nil {
		out.FusedTranscript = *u.FusedTranscript
	}
	if u.SlideText != nil {
		out.SlideText = *u.SlideText
	}
	if u.CombinedContext != nil {
		out.CombinedContext = *u.CombinedContext
	}
	if u.KeyPoints != nil {
		out.KeyPoints = slices.Clone(u.KeyPoints)
	}
	if u.ActionItems != nil {
		out.ActionItems = slices.Clone(u.ActionItems)
	}
	if u.Report != nil {
		out.Report = u.Report.clone()
	}
	if u.Error != nil {
		out.Error = u.Error
	}
	return out
}

// Failed reports whether a stage has recorded an error.
func (s State) Failed() bool { return s.Error != nil }

// BestTranscript prefers the fused transcript, then the supplied one, then
// the local transcription.
func (s State) BestTranscript() string {
	for _, candidate := range []string{s.FusedTranscript, s.Transcript, s.LocalTranscript} {
		if strings.TrimSpace(candidate) != "" {
			return candidate
		}
	}
	return ""
}

// Outcome is the caller-facing view of a finished run: either a report or an
// error, never both.
type Outcome struct {
	RunID  string           `json:"run_id,omitempty"`
	Report *Report          `json:"report,omitempty"`
	Error  *services.Detail `json:"error,omitempty"`
}

// Outcome projects the terminal state for serialization.
func (s State) Outcome() Outcome {
	out := Outcome{RunID: s.RunID}
	if s.Error != nil {
		detail := s.Error.Detail()
		out.Error = &detail
		return out
	}
	out.Report = s.Report.clone()
	return out
}
