package store

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/JackEngelmann/nlpanno/internal/sample"
)

const testDataset = `
tasks:
  - id: intents
    name: Intents
    classes: [weather, music, alarm]
    samples:
      - id: s1
        text: will it rain tomorrow
        predictions: {weather: 0.9, music: 0.05}
      - id: s2
        text: play some jazz
      - id: s3
        text: wake me at seven
        label: alarm
  - name: Sentiment
    classes: [pos, neg]
    samples:
      - text: great movie
`

func openSeeded(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ds, err := ReadDataset(strings.NewReader(testDataset))
	if err != nil {
		t.Fatalf("ReadDataset failed: %v", err)
	}
	n, err := st.Seed(ds)
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if n != 4 {
		t.Fatalf("Seed inserted %d samples, want 4", n)
	}
	return st
}

func TestOpen(t *testing.T) {
	st, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer st.Close()

	for _, table := range []string{"tasks", "text_classes", "samples", "predictions"} {
		var name string
		err = st.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("%s table not created: %v", table, err)
		}
	}
}

func TestTasks(t *testing.T) {
	st := openSeeded(t)

	tasks, err := st.Tasks()
	if err != nil {
		t.Fatalf("Tasks failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}
	if tasks[0].ID != "intents" || tasks[1].Name != "Sentiment" {
		t.Errorf("tasks out of order: %+v", tasks)
	}
	if tasks[1].ID == "" {
		t.Error("missing task id should be generated")
	}
	if got := tasks[0].ClassNames(); strings.Join(got, ",") != "weather,music,alarm" {
		t.Errorf("classes = %v, want declared order", got)
	}
}

func TestTaskNotFound(t *testing.T) {
	st := openSeeded(t)
	if _, err := st.Task("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := st.TaskOf("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("TaskOf err = %v, want ErrNotFound", err)
	}
}

func TestTaskOf(t *testing.T) {
	st := openSeeded(t)
	task, err := st.TaskOf("s2")
	if err != nil {
		t.Fatalf("TaskOf failed: %v", err)
	}
	if task.ID != "intents" || len(task.TextClasses) != 3 {
		t.Errorf("TaskOf = %+v", task)
	}
}

func TestNextSampleSkipsLabeledAndRotates(t *testing.T) {
	st := openSeeded(t)
	clock := time.Unix(1000, 0)
	st.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	var order []string
	for i := 0; i < 3; i++ {
		smp, ok, err := st.NextSample("intents")
		if err != nil || !ok {
			t.Fatalf("NextSample: ok=%v err=%v", ok, err)
		}
		order = append(order, smp.ID)
	}
	// s3 is labeled; unserved samples first, then the least recently served.
	if strings.Join(order, ",") != "s1,s2,s1" {
		t.Errorf("order = %v, want [s1 s2 s1]", order)
	}
}

func TestNextSampleExhausted(t *testing.T) {
	st := openSeeded(t)
	task, err := st.Task("intents")
	if err != nil {
		t.Fatal(err)
	}
	classID := task.TextClasses[0].ID
	for _, id := range []string{"s1", "s2"} {
		if _, err := st.SetLabel(id, &classID); err != nil {
			t.Fatalf("SetLabel(%s): %v", id, err)
		}
	}

	_, ok, err := st.NextSample("intents")
	if err != nil || ok {
		t.Errorf("NextSample: ok=%v err=%v, want exhausted", ok, err)
	}
	labeled, total, err := st.Progress("intents")
	if err != nil || labeled != 3 || total != 3 {
		t.Errorf("Progress = %d/%d, %v", labeled, total, err)
	}
}

func TestSamplePredictions(t *testing.T) {
	st := openSeeded(t)

	smp, err := st.Sample("s1")
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if smp.Predictions.Kind() != sample.PredictionsCandidates {
		t.Fatalf("Kind = %v, want candidates", smp.Predictions.Kind())
	}
	cands := smp.Predictions.Candidates()
	if len(cands) != 2 || cands[0].Name != "weather" || cands[0].Confidence != 0.9 {
		t.Errorf("candidates = %+v", cands)
	}

	if smp, _ := st.Sample("s2"); smp.Predictions.Kind() != sample.PredictionsNone {
		t.Errorf("s2 should have no predictions, got %v", smp.Predictions.Kind())
	}
	if smp, _ := st.Sample("s3"); smp.TextClass == nil || smp.TextClass.Name != "alarm" {
		t.Errorf("s3 label = %+v, want alarm", smp.TextClass)
	}
}

func TestSetLabel(t *testing.T) {
	st := openSeeded(t)
	task, _ := st.Task("intents")
	music := task.TextClasses[1]

	smp, err := st.SetLabel("s1", &music.ID)
	if err != nil {
		t.Fatalf("SetLabel failed: %v", err)
	}
	if smp.TextClass == nil || *smp.TextClass != music {
		t.Errorf("label = %+v, want %+v", smp.TextClass, music)
	}

	smp, err = st.SetLabel("s1", nil)
	if err != nil || smp.Labeled() {
		t.Errorf("clear: %+v, %v", smp.TextClass, err)
	}

	other, _ := st.Tasks()
	foreign := other[1].TextClasses[0].ID
	if _, err := st.SetLabel("s1", &foreign); !errors.Is(err, ErrUnknownClass) {
		t.Errorf("foreign class err = %v, want ErrUnknownClass", err)
	}
	if _, err := st.SetLabel("missing", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing sample err = %v, want ErrNotFound", err)
	}
}

func TestSeedIsIdempotentForKnownIDs(t *testing.T) {
	st := openSeeded(t)
	ds, _ := ReadDataset(strings.NewReader(testDataset))

	n, err := st.Seed(Dataset{Tasks: ds.Tasks[:1]})
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if n != 0 {
		t.Errorf("re-seeding a known task inserted %d samples", n)
	}
}

func TestReadDatasetValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown key", "tasks:\n  - name: a\n    clases: [x]\n", "decode dataset"},
		{"no classes", "tasks:\n  - name: a\n", "declares no classes"},
		{"duplicate class", "tasks:\n  - name: a\n    classes: [x, x]\n", "twice"},
		{"unknown label", "tasks:\n  - name: a\n    classes: [x]\n    samples:\n      - text: t\n        label: y\n", "unknown label"},
		{"bad confidence", "tasks:\n  - name: a\n    classes: [x]\n    samples:\n      - text: t\n        predictions: {x: 2}\n", "out of [0,1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadDataset(strings.NewReader(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestConcurrentNextSample(t *testing.T) {
	st := openSeeded(t)
	done := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func() {
			_, _, err := st.NextSample("intents")
			done <- err
		}()
	}
	for i := 0; i < 10; i++ {
		if err := <-done; err != nil {
			t.Errorf("NextSample: %v", err)
		}
	}
}
