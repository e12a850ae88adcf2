package analysis

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"minutes/internal/retry"
	"minutes/internal/services"
	"minutes/internal/services/gemini"
	"minutes/internal/services/whisper"
	"minutes/internal/workflow"
)

const whisperJSON = `{"text":"hello","segments":[{"id":0,"start":0,"end":1.5,"text":" Hello everyone."}]}`

type fakeGenerator struct {
	mu        sync.Mutex
	textCalls int
	jsonCalls map[string]int
	uploads   []string
	requests  []gemini.Request

	text      func(call int) (string, error)
	json      map[string]func(call int) (string, error)
	uploadErr error
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{jsonCalls: map[string]int{}, json: map[string]func(int) (string, error){}}
}

// schemaKey identifies which structured call a request belongs to.
func schemaKey(req gemini.Request) string {
	props, _ := req.Schema["properties"].(map[string]any)
	switch {
	case props["final_decision"] != nil:
		return StageAnalyze
	case props["key_points"] != nil:
		return StageKeyPoints
	case props["action_items"] != nil:
		return StageActionItems
	default:
		return StageSummarize
	}
}

func (f *fakeGenerator) GenerateText(_ context.Context, req gemini.Request) (string, error) {
	f.mu.Lock()
	f.textCalls++
	call := f.textCalls
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.text == nil {
		return "fused transcript", nil
	}
	return f.text(call)
}

func (f *fakeGenerator) GenerateJSON(_ context.Context, req gemini.Request, target any) error {
	key := schemaKey(req)
	f.mu.Lock()
	f.jsonCalls[key]++
	call := f.jsonCalls[key]
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	fn, ok := f.json[key]
	if !ok {
		return services.Fail(services.KindExternalCallRejected, "", "unexpected structured call "+key, nil)
	}
	raw, err := fn(call)
	if err != nil {
		return err
	}
	if err := gemini.DecodeJSON(raw, target); err != nil {
		return services.Fail(services.KindResponseSchemaInvalid, "", "decode", err)
	}
	return nil
}

func (f *fakeGenerator) UploadFile(_ context.Context, path string) (gemini.File, error) {
	f.mu.Lock()
	f.uploads = append(f.uploads, filepath.Base(path))
	f.mu.Unlock()
	if f.uploadErr != nil {
		return gemini.File{}, f.uploadErr
	}
	if _, err := os.Stat(path); err != nil {
		return gemini.File{}, services.Fail(services.KindResourceNotFound, "", "missing "+path, err)
	}
	return gemini.File{Name: "files/" + filepath.Base(path), URI: "https://files/" + filepath.Base(path), MimeType: gemini.MimeTypeFor(path)}, nil
}

func (f *fakeGenerator) TextModel() string   { return "text-model" }
func (f *fakeGenerator) VisionModel() string { return "vision-model" }

func (f *fakeGenerator) structuredCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.jsonCalls {
		total += n
	}
	return total
}

type fakeDecks struct {
	calls int
	text  string
	err   error
}

func (f *fakeDecks) ExtractText(context.Context, string) (string, error) {
	f.calls++
	return f.text, f.err
}

// whisperStub returns a real whisper service whose command writes a fixed
// JSON artifact, counting invocations.
func whisperStub(calls *int) *whisper.Service {
	svc := whisper.NewService(whisper.Config{})
	svc.WithCommandRunner(func(_ context.Context, _ string, args ...string) ([]byte, error) {
		*calls++
		source := args[0]
		var outDir string
		for i, arg := range args {
			if arg == "--output_dir" && i+1 < len(args) {
				outDir = args[i+1]
			}
		}
		stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
		return nil, os.WriteFile(filepath.Join(outDir, stem+".json"), []byte(whisperJSON), 0o644)
	})
	return svc
}

type recordingSleeper struct {
	delays []time.Duration
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

type fixture struct {
	dir         string
	video       string
	deck        string
	generator   *fakeGenerator
	decks       *fakeDecks
	whisperRuns int
	sleeper     *recordingSleeper
	runner      *Runner
}

func newFixture(t *testing.T, deckName string) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		dir:       dir,
		video:     filepath.Join(dir, "meeting.mp4"),
		deck:      filepath.Join(dir, deckName),
		generator: newFakeGenerator(),
		decks:     &fakeDecks{text: "Slide 1: Oak Street\n- Store size 12,000 sqft"},
		sleeper:   &recordingSleeper{},
	}
	for _, path := range []string{f.video, f.deck} {
		if err := os.WriteFile(path, []byte("bytes"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	deps := Deps{
		Transcriber: whisperStub(&f.whisperRuns),
		Generator:   f.generator,
		Decks:       f.decks,
		Retrier: retry.New(retry.Policy{MaxAttempts: 3, InitialDelay: 10 * time.Millisecond},
			retry.WithSleeper(f.sleeper.sleep)),
	}
	runner, err := NewRunner(workflow.DefaultDefinitions(), Registry(deps), workflow.NewExecutor(), "meeting_analysis")
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	f.runner = runner
	return f
}

func (f *fixture) workspace(t *testing.T) string {
	t.Helper()
	ws := filepath.Join(f.dir, "ws")
	if err := os.MkdirAll(ws, 0o755); err != nil {
		t.Fatalf("mkdir workspace: %v", err)
	}
	return ws
}
