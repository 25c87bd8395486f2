package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/kpi-schedule-etl/internal/runner"
	"github.com/Sternrassler/kpi-schedule-etl/internal/testutil"
	"github.com/Sternrassler/kpi-schedule-etl/pkg/etl"
	"github.com/Sternrassler/kpi-schedule-etl/pkg/store"
)

// testEnv is a mock timetable site plus a config file pointing at it.
type testEnv struct {
	mock       *testutil.MockTimetable
	configPath string
	dbPath     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mock := testutil.NewMockTimetable()
	t.Cleanup(mock.Close)

	dir := t.TempDir()
	env := &testEnv{
		mock:       mock,
		configPath: filepath.Join(dir, "config.yaml"),
		dbPath:     filepath.Join(dir, "schedules.db"),
	}
	content := fmt.Sprintf(`
directory:
  base_url: %s
  rate_per_sec: 1000
  burst: 100
etl:
  max_concurrency: 2
  chunk_size: 2
  group_prefixes: ["ІП", "ІС", "КМ"]
  teacher_prefixes: ["К"]
storage:
  file: %s
logging:
  level: error
`, mock.URL(), env.dbPath)
	require.NoError(t, os.WriteFile(env.configPath, []byte(content), 0o600))
	return env
}

func (e *testEnv) execute(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append(args, "--config", e.configPath))
	require.NoError(t, cmd.ExecuteContext(context.Background()), out.String())
	return out.String()
}

func (e *testEnv) count(t *testing.T, kind etl.EntityKind) int {
	t.Helper()
	db, err := store.Open(store.Config{File: e.dbPath})
	require.NoError(t, err)
	defer db.Close()
	s, err := store.New(context.Background(), db, zerolog.Nop())
	require.NoError(t, err)
	n, err := s.Count(context.Background(), kind)
	require.NoError(t, err)
	return n
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		input   string
		want    etl.EntityKind
		wantErr bool
	}{
		{input: "group", want: etl.KindGroup},
		{input: "Teacher", want: etl.KindTeacher},
		{input: "room", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseKind(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseKind(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseKind(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestChunkCommand(t *testing.T) {
	env := newTestEnv(t)

	out := env.execute(t, "", "chunk", "--kind", "group")
	state, err := runner.ReadState(strings.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, [][]string{{"ІП", "ІС"}, {"КМ"}}, state.PrefixChunks)
	require.Equal(t, 0, state.Index)

	out = env.execute(t, "", "chunk", "--kind", "teacher", "--prefixes", "А,Б,В")
	state, err = runner.ReadState(strings.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, 2, state.Count)
}

func TestStepCommand_ChainsThroughAllChunks(t *testing.T) {
	env := newTestEnv(t)
	good := uuid.New()
	env.mock.AddGroup("ІП-11", good)
	env.mock.AddGroup("ІП-12", uuid.New())
	env.mock.AddGroup("КМ-01", uuid.New())
	env.mock.SetSchedule(good, testutil.SchedulePage("ІП-11"))

	out := env.execute(t, "", "chunk", "--kind", "group")
	steps := 0
	for {
		out = env.execute(t, out, "step", "--kind", "group")
		steps++

		var step runner.StepOutput
		require.NoError(t, json.Unmarshal([]byte(out), &step))
		if step.State.Done() {
			require.Equal(t, etl.StageSummary{Count: 1, ClientErrors: 2}, step.State.Accumulated)
			break
		}
		require.Less(t, steps, 5, "iteration did not terminate")
	}

	require.Equal(t, 2, steps)
	require.Equal(t, 1, env.count(t, etl.KindGroup))
}

func TestRunCommand(t *testing.T) {
	env := newTestEnv(t)
	group, teacher := uuid.New(), uuid.New()
	env.mock.AddGroup("ІС-21", group)
	env.mock.AddTeacher("Коваль Олена Олегівна", teacher)
	env.mock.SetSchedule(group, testutil.SchedulePage("ІС-21"))
	env.mock.SetSchedule(teacher, testutil.SchedulePage("Коваль Олена Олегівна",
		testutil.PagePair{Week: 2, Day: 4, Number: 2, Subject: "Бази даних", Group: "ІС-21", Room: "205-18 Лаб"},
	))

	out := env.execute(t, "", "run")

	var summaries map[etl.EntityKind]etl.StageSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summaries))
	require.Equal(t, 1, summaries[etl.KindGroup].Count)
	require.Equal(t, 1, summaries[etl.KindTeacher].Count)

	require.Equal(t, 1, env.count(t, etl.KindGroup))
	require.Equal(t, 1, env.count(t, etl.KindTeacher))
}

func TestRunCommand_RejectsUnknownKind(t *testing.T) {
	env := newTestEnv(t)

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", "--kind", "room", "--config", env.configPath})
	require.Error(t, cmd.ExecuteContext(context.Background()))
}
