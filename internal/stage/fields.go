package stage

import (
	"strings"

	"minutes/internal/services"
)

// Field names a State field a stage may depend on.
type Field string

const (
	FieldTranscript      Field = "transcript"
	FieldDeckPath        Field = "deck_path"
	FieldVideoPath       Field = "video_path"
	FieldWorkspaceDir    Field = "workspace_dir"
	FieldLocalTranscript Field = "local_transcript"
	FieldFusedTranscript Field = "fused_transcript"
	FieldSlideText       Field = "slide_text"
	FieldCombinedContext Field = "combined_context"
	FieldKeyPoints       Field = "key_points"
	FieldActionItems     Field = "action_items"
	FieldReport          Field = "report"
)

// Has reports whether the named field carries a value.
func (s State) Has(field Field) bool {
	switch field {
	case FieldTranscript:
		return strings.TrimSpace(s.Transcript) != ""
	case FieldDeckPath:
		return strings.TrimSpace(s.DeckPath) != ""
	case FieldVideoPath:
		return strings.TrimSpace(s.VideoPath) != ""
	case FieldWorkspaceDir:
		return strings.TrimSpace(s.WorkspaceDir) != ""
	case FieldLocalTranscript:
		return strings.TrimSpace(s.LocalTranscript) != ""
	case FieldFusedTranscript:
		return strings.TrimSpace(s.FusedTranscript) != ""
	case FieldSlideText:
		return strings.TrimSpace(s.SlideText) != ""
	case FieldCombinedContext:
		return strings.TrimSpace(s.CombinedContext) != ""
	case FieldKeyPoints:
		return len(s.KeyPoints) > 0
	case FieldActionItems:
		return len(s.ActionItems) > 0
	case FieldReport:
		return s.Report != nil
	default:
		return false
	}
}

// Require returns a MissingPrerequisite failure when an earlier stage already
// failed or any of fields is empty. Stages call it before doing any work.
func (s State) Require(stageName string, fields ...Field) error {
	if s.Error != nil {
		upstream := s.Error.Stage
		if upstream == "" {
			upstream = "an earlier stage"
		}
		return services.Fail(services.KindMissingPrerequisite, stageName,
			"skipped because "+upstream+" failed ("+string(s.Error.Kind)+")", nil)
	}
	var missing []string
	for _, field := range fields {
		if !s.Has(field) {
			missing = append(missing, string(field))
		}
	}
	if len(missing) > 0 {
		return services.Missing(stageName, missing...)
	}
	return nil
}
