package template

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catflap/catflap/internal/errors"
	"github.com/catflap/catflap/internal/sink"
	"github.com/catflap/catflap/internal/snapshot"
)

// recordingSink keeps every output it is given.
type recordingSink struct {
	kind    sink.Kind
	outputs []sink.Output
	err     error
}

func (s *recordingSink) Kind() sink.Kind { return s.kind }

func (s *recordingSink) Emit(out sink.Output) error {
	if s.err != nil {
		return s.err
	}
	s.outputs = append(s.outputs, out)
	return nil
}

func generateSnapshot() *snapshot.Snapshot {
	return &snapshot.Snapshot{
		State: "Waiting",
		Group: snapshot.MatchGroup{
			Success: true,
			Matches: []snapshot.Match{{Path: snapshot.Path{Dir: "tut/", Filename: "blafile.png"}}},
		},
		Settings: snapshot.Settings{LockoutTime: 30},
		Paths: snapshot.Paths{
			Output:   "out/%lockout_time%",
			Template: "%output_path%/templates",
		},
	}
}

func TestGenerateWritesFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	e := New()
	e.AddSink(sink.NewFileSink(fs))

	_, err := e.Add("%!event all\n%match_success%", "firstoutputpath")
	require.NoError(t, err)
	_, err = e.Add("%!event *   \nhej %match_success% %state%", "outputpath is here %match_success%")
	require.NoError(t, err)

	report, err := e.Generate(generateSnapshot(), "match_group_done")
	require.NoError(t, err)
	require.NoError(t, report.Err())
	require.Len(t, report.Outputs, 2)
	assert.NotEmpty(t, report.Generation)

	data, err := afero.ReadFile(fs, "out/30/templates/firstoutputpath")
	require.NoError(t, err)
	assert.Equal(t, "1", string(data))

	data, err = afero.ReadFile(fs, "out/30/templates/outputpath_is_here_1")
	require.NoError(t, err)
	assert.Equal(t, "hej 1 Waiting", string(data))

	for _, out := range report.Outputs {
		assert.Equal(t, report.Generation, out.Generation)
		assert.Equal(t, "match_group_done", out.Event)
	}
}

func TestGenerateEventFilter(t *testing.T) {
	rec := &recordingSink{kind: sink.KindFile}
	e := New()
	e.AddSink(rec)

	for _, tt := range []struct{ content, pattern string }{
		{"%!event match\nmatch", "a"},
		{"%!event obstruct, match\nboth", "b"},
		{"%!event obstruct\nobstruct", "c"},
		{"%!event match\n%!nop\nnop", "d"},
		{"always", "e"},
	} {
		_, err := e.Add(tt.content, tt.pattern)
		require.NoError(t, err)
	}

	report, err := e.Generate(nil, "match")
	require.NoError(t, err)
	require.Len(t, rec.outputs, 3)
	assert.Equal(t, "match", rec.outputs[0].Body)
	assert.Equal(t, "both", rec.outputs[1].Body)
	assert.Equal(t, "always", rec.outputs[2].Body)
	assert.Len(t, report.Skipped, 2)

	rec.outputs = nil
	_, err = e.Generate(nil, "obstruct")
	require.NoError(t, err)
	require.Len(t, rec.outputs, 3)
	assert.Equal(t, "both", rec.outputs[0].Body)
	assert.Equal(t, "obstruct", rec.outputs[1].Body)
}

func TestGenerateSuppressedSinks(t *testing.T) {
	file := &recordingSink{kind: sink.KindFile}
	bus := &recordingSink{kind: sink.KindBus}
	archive := &recordingSink{kind: sink.KindArchive}

	e := New()
	e.AddSink(file)
	e.AddSink(bus)
	e.AddSink(archive)
	e.SetTopic("catflap/%event%")

	_, err := e.Add("%!nofile\nbus and archive", "a")
	require.NoError(t, err)
	_, err = e.Add("%!nobus\n%!noarchive\n%!topic custom/%state%\nfile only", "b")
	require.NoError(t, err)

	report, err := e.Generate(generateSnapshot(), "match")
	require.NoError(t, err)
	require.NoError(t, report.Err())

	require.Len(t, file.outputs, 1)
	assert.Equal(t, "file only", file.outputs[0].Body)
	assert.Equal(t, "custom/Waiting", file.outputs[0].Topic)

	require.Len(t, bus.outputs, 1)
	assert.Equal(t, "bus and archive", bus.outputs[0].Body)
	assert.Equal(t, "catflap/match", bus.outputs[0].Topic)

	require.Len(t, archive.outputs, 1)
	assert.Equal(t, "bus and archive", archive.outputs[0].Body)
}

func TestGenerateContinuesAfterTemplateFailure(t *testing.T) {
	rec := &recordingSink{kind: sink.KindFile}
	e := New()
	e.AddSink(rec)

	_, err := e.Add("before", "a")
	require.NoError(t, err)
	_, err = e.Add("partial %match9_path% output", "b")
	require.NoError(t, err)
	_, err = e.Add("%for i in 1..2%\n%i%\n", "c")
	require.NoError(t, err)
	_, err = e.Add("after", "d")
	require.NoError(t, err)

	report, err := e.Generate(generateSnapshot(), "match")
	require.NoError(t, err)

	require.Len(t, rec.outputs, 2)
	assert.Equal(t, "before", rec.outputs[0].Body)
	assert.Equal(t, "after", rec.outputs[1].Body)

	require.Len(t, report.Failures, 2)
	assert.True(t, errors.IsErrorCode(report.Failures[0].Err, errors.ErrIndexOutOfRange))
	assert.True(t, errors.IsErrorCode(report.Failures[1].Err, errors.ErrUnterminatedBlock))

	joined := report.Err()
	require.Error(t, joined)
	assert.True(t, errors.IsErrorCode(joined, errors.ErrIndexOutOfRange))
}

func TestGenerateSinkFailure(t *testing.T) {
	broken := &recordingSink{kind: sink.KindBus, err: errors.New(errors.ErrSink, "broker down")}
	file := &recordingSink{kind: sink.KindFile}

	e := New()
	e.AddSink(broken)
	e.AddSink(file)
	_, err := e.Add("body", "a")
	require.NoError(t, err)

	report, err := e.Generate(nil, "match")
	require.NoError(t, err)
	require.Len(t, file.outputs, 1)
	require.Len(t, report.Failures, 1)
	assert.True(t, errors.IsErrorCode(report.Err(), errors.ErrSink))
	require.Len(t, report.Outputs, 1)
}

func TestGenerateOmitsUndeliveredOutputs(t *testing.T) {
	broken := &recordingSink{kind: sink.KindFile, err: errors.New(errors.ErrSink, "disk full")}
	bus := &recordingSink{kind: sink.KindBus}

	e := New()
	e.AddSink(broken)
	e.AddSink(bus)
	_, err := e.Add("%!nobus\nfile only", "a")
	require.NoError(t, err)
	_, err = e.Add("everywhere", "b")
	require.NoError(t, err)

	report, err := e.Generate(nil, "match")
	require.NoError(t, err)
	require.Len(t, report.Failures, 2)

	require.Len(t, report.Outputs, 1)
	assert.Equal(t, "everywhere", report.Outputs[0].Body)
	require.Len(t, bus.outputs, 1)
}

func TestGenerateWithoutSinksListsOutputs(t *testing.T) {
	e := New()
	_, err := e.Add("preview", "a")
	require.NoError(t, err)

	report, err := e.Generate(nil, "match")
	require.NoError(t, err)
	require.Len(t, report.Outputs, 1)
	assert.Equal(t, "a", report.Outputs[0].Path)
}

func TestGenerateRecursiveOutputPaths(t *testing.T) {
	tests := []struct {
		name  string
		paths snapshot.Paths
	}{
		{
			name:  "self reference",
			paths: snapshot.Paths{Output: "%output_path%/x"},
		},
		{
			name:  "mutual reference",
			paths: snapshot.Paths{Output: "%template_output_path%", Template: "%output_path%/t"},
		},
		{
			name: "through an intermediate",
			paths: snapshot.Paths{
				Output:   "arne",
				Template: "%steps_output_path%",
				Steps:    "%obstruct_output_path%/weise",
				Obstruct: "%template_output_path%/Mera jul!",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingSink{kind: sink.KindFile}
			e := New()
			e.AddSink(rec)
			_, err := e.Add("Some other template %time%\n", "normalpath")
			require.NoError(t, err)

			snap := &snapshot.Snapshot{Paths: tt.paths}
			report, err := e.Generate(snap, "all")
			requireCode(t, err, errors.ErrRecursiveDefinition)
			require.NotNil(t, report)
			assert.Empty(t, rec.outputs)
		})
	}
}

func TestGenerateRecursiveTemplatePath(t *testing.T) {
	e := New()
	_, err := e.Add("%!name loop\nbody", "%template_path:loop%.txt")
	require.NoError(t, err)

	_, err = e.Generate(nil, "all")
	requireCode(t, err, errors.ErrRecursiveDefinition)
}

func TestGenerateRecursionInBody(t *testing.T) {
	rec := &recordingSink{kind: sink.KindFile}
	e := New()
	e.AddSink(rec)
	_, err := e.Add("%output_path%\n%match_output_path%\n%steps_output_path%\n", "recursiveoutputpath")
	require.NoError(t, err)
	_, err = e.Add("Some other template\n", "normalpath")
	require.NoError(t, err)

	snap := &snapshot.Snapshot{Paths: snapshot.Paths{
		Output:   "arne",
		Match:    "%output_path%/hej",
		Steps:    "%match_output_path%/weise/%obstruct_output_path%",
		Obstruct: "%steps_output_path%/Mera jul!",
		Template: "templates",
	}}

	report, err := e.Generate(snap, "all")
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	assert.True(t, errors.IsErrorCode(report.Failures[0].Err, errors.ErrRecursiveDefinition))
	require.Len(t, rec.outputs, 1)
	assert.Equal(t, "templates/normalpath", rec.outputs[0].Path)
}

func TestGenerateIsIdempotent(t *testing.T) {
	e := New()
	rec := &recordingSink{kind: sink.KindFile}
	e.AddSink(rec)

	_, err := e.Add("%time% %match1_path|abs% %cwd% %template_path%\n%for i in 1..match_count%\n%match$i$_path%\n%endfor%", "out_%time:@H@M@S%")
	require.NoError(t, err)

	snap := testSnapshot(t)
	first, err := e.Generate(snap, "all")
	require.NoError(t, err)
	second, err := e.Generate(snap, "all")
	require.NoError(t, err)

	require.Len(t, first.Outputs, 1)
	require.Len(t, second.Outputs, 1)
	assert.Equal(t, first.Outputs[0].Body, second.Outputs[0].Body)
	assert.Equal(t, first.Outputs[0].Path, second.Outputs[0].Path)
	assert.NotEqual(t, first.Generation, second.Generation)
}
