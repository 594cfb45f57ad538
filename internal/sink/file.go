package sink

import (
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/catflap/catflap/internal/errors"
	"github.com/catflap/catflap/internal/logging"
)

// FileSink writes each output to its resolved path.
type FileSink struct {
	fs  afero.Fs
	log zerolog.Logger
}

// NewFileSink creates a file sink on fs. Use afero.NewOsFs() for the real filesystem.
func NewFileSink(fs afero.Fs) *FileSink {
	return &FileSink{fs: fs, log: logging.GetLogger("sink.file")}
}

func (s *FileSink) Kind() Kind { return KindFile }

// Emit writes the body, creating missing parent directories.
func (s *FileSink) Emit(out Output) error {
	if out.Path == "" {
		return errors.Newf(errors.ErrSink, "template %s has no output path", out.Template)
	}

	if dir := filepath.Dir(out.Path); dir != "." {
		if err := s.fs.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, errors.ErrSink, "creating directory %s", dir)
		}
	}

	if err := afero.WriteFile(s.fs, out.Path, []byte(out.Body), 0644); err != nil {
		return errors.Wrapf(err, errors.ErrSink, "writing %s", out.Path)
	}

	s.log.Debug().Str("path", out.Path).Int("bytes", len(out.Body)).Msg("Wrote template output")
	return nil
}
