package analysis

const fuseSystemPrompt = `You are a meticulous transcript fusion expert. Output only the final transcript.`

const fusePromptTemplate = `You are an expert transcript editor. Use the two transcripts to produce a single, detailed, accurate, and precise diarized transcript with corrected sentences and timestamps. Output strictly the complete final transcript text.

--- Supplied Transcript ---
%s

--- Whisper Transcript ---
%s`

const analyzeSystemPrompt = `You are an expert meeting analyst. You must analyze the attached VIDEO and the presentation material. Respond ONLY with a single JSON object that conforms to the provided schema.`

const analyzePromptTemplate = `Analyze the attached video, the presentation material, and the provided fused transcript.
The presentation contains the visual data. Use it to extract the required context_fields.

INSTRUCTIONS:
1. summary: summary of the key topics discussed.
2. action_items: action items, tasks assigned or decisions made.
3. context_fields: property data (Site Name, Store Size, Signage, etc.) as name/value pairs. EXTRACT THIS DATA FROM THE PRESENTATION.
4. final_decision: final decision (approved, rejected, deferred, etc.).
%s
--- Final Accurate Transcript ---
%s`

const keyPointsPromptTemplate = `You are an expert at analyzing meeting data from multiple sources.
Analyze the following combined meeting data and extract the most important key points.
Return a JSON object of the form {"key_points": ["A concise key point from the meeting."]}.

Combined Meeting Data:
%s`

const actionItemsPromptTemplate = `You are an expert at identifying action items from meeting data.
Analyze the following combined meeting data and extract all action items.
For each action item, identify the person responsible for the task.
Return a JSON object of the form {"action_items": [{"person": "The person responsible", "task": "A clear description of the task"}]}.

Combined Meeting Data:
%s`

const summarizePromptTemplate = `You are an expert summarizer. Synthesize a final, coherent summary of a meeting based on all its data (transcript and slides), key points, and action items.
The summary should be a single, well-written paragraph that captures the essence of the meeting.
Return a JSON object of the form {"summary": "The final summary of the meeting."}.

Combined Meeting Data:
%s

Key Points: %s
Action Items: %s`

var reportSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"summary":      map[string]any{"type": "STRING"},
		"action_items": map[string]any{"type": "ARRAY", "items": map[string]any{"type": "STRING"}},
		"context_fields": map[string]any{
			"type": "ARRAY",
			"items": map[string]any{
				"type": "OBJECT",
				"properties": map[string]any{
					"name":  map[string]any{"type": "STRING"},
					"value": map[string]any{"type": "STRING"},
				},
				"required": []string{"name", "value"},
			},
		},
		"final_decision": map[string]any{"type": "STRING"},
	},
	"required": []string{"summary", "action_items", "context_fields", "final_decision"},
}

var keyPointsSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"key_points": map[string]any{"type": "ARRAY", "items": map[string]any{"type": "STRING"}},
	},
	"required": []string{"key_points"},
}

var actionItemsSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"action_items": map[string]any{
			"type": "ARRAY",
			"items": map[string]any{
				"type": "OBJECT",
				"properties": map[string]any{
					"person": map[string]any{"type": "STRING"},
					"task":   map[string]any{"type": "STRING"},
				},
				"required": []string{"person", "task"},
			},
		},
	},
	"required": []string{"action_items"},
}

var summarySchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"summary": map[string]any{"type": "STRING"},
	},
	"required": []string{"summary"},
}
