package sink

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catflap/catflap/internal/errors"
)

func TestFileSinkCreatesParents(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := NewFileSink(fs)
	assert.Equal(t, KindFile, s.Kind())

	err := s.Emit(Output{Template: "a", Path: "out/deep/dir/a.json", Body: "{}\n"})
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, "out/deep/dir/a.json")
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(data))
}

func TestFileSinkOverwrites(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := NewFileSink(fs)

	require.NoError(t, s.Emit(Output{Path: "a.txt", Body: "first"}))
	require.NoError(t, s.Emit(Output{Path: "a.txt", Body: "second"}))

	data, err := afero.ReadFile(fs, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestFileSinkRequiresPath(t *testing.T) {
	s := NewFileSink(afero.NewMemMapFs())
	err := s.Emit(Output{Template: "a"})
	assert.True(t, errors.IsErrorCode(err, errors.ErrSink))
}

func TestFileSinkReadOnly(t *testing.T) {
	s := NewFileSink(afero.NewReadOnlyFs(afero.NewMemMapFs()))
	err := s.Emit(Output{Path: "x/a.txt", Body: "x"})
	assert.True(t, errors.IsErrorCode(err, errors.ErrSink))
}
