package template

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/catflap/catflap/internal/logging"
	"github.com/catflap/catflap/internal/sink"
	"github.com/catflap/catflap/internal/snapshot"
)

// Failure records why a template produced no output.
type Failure struct {
	Template string
	Err      error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Template, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Report summarizes one Generate call.
type Report struct {
	Generation string
	Event      string
	Outputs    []sink.Output
	Skipped    []string
	Failures   []Failure
}

// Err joins the template failures, or returns nil if there were none.
func (r *Report) Err() error {
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return stderrors.Join(errs...)
}

// Generate renders every template whose event filter matches event and
// emits the results to the registered sinks. A failing template is
// reported and skipped. A failure to resolve any output path aborts the
// call, since there is nowhere to write the body.
func (e *Engine) Generate(snap *snapshot.Snapshot, event string) (*Report, error) {
	done := logging.LogOperationStart(e.log, "generate")
	defer done()

	c := newCall(e, snap, event)
	report := &Report{
		Generation: uuid.Must(uuid.NewV7()).String(),
		Event:      event,
	}
	log := e.log.With().Str("event", event).Str("generation", report.Generation).Logger()

	for _, t := range e.registry.All() {
		if t.Settings.Nop || !t.Settings.MatchesEvent(event) {
			log.Trace().Str("template", t.String()).Msg("Skipping template")
			report.Skipped = append(report.Skipped, t.String())
			continue
		}

		path, err := c.templatePath(t)
		if err != nil {
			log.Error().Err(err).Str("template", t.String()).Msg("Failed to resolve output path")
			return report, fmt.Errorf("resolving output path of %s: %w", t, err)
		}

		out, err := c.output(t, path)
		if err != nil {
			log.Error().Err(err).Str("template", t.String()).Str("path", path).Msg("Failed to generate template")
			report.Failures = append(report.Failures, Failure{Template: t.String(), Err: err})
			continue
		}
		out.Generation = report.Generation

		emitted, failed := 0, 0
		for _, s := range e.sinks {
			if t.Settings.Suppressed(s.Kind()) {
				continue
			}
			if err := s.Emit(out); err != nil {
				log.Error().Err(err).Str("template", t.String()).Str("sink", string(s.Kind())).Msg("Failed to emit template output")
				report.Failures = append(report.Failures, Failure{Template: t.String(), Err: err})
				failed++
				continue
			}
			emitted++
		}
		// Outputs lists what reached at least one sink.
		if failed > 0 && emitted == 0 {
			continue
		}
		report.Outputs = append(report.Outputs, out)
	}

	log.Info().
		Int("outputs", len(report.Outputs)).
		Int("failures", len(report.Failures)).
		Msg("Generated templates")
	return report, nil
}

// output renders the body and topic of t.
func (c *call) output(t *Template, path string) (sink.Output, error) {
	body, err := c.render(t)
	if err != nil {
		return sink.Output{}, err
	}

	topic, err := c.topic(t)
	if err != nil {
		return sink.Output{}, err
	}

	return sink.Output{
		Event:    c.event,
		Template: t.String(),
		Path:     path,
		Topic:    topic,
		Body:     body,
		Time:     time.Now(),
	}, nil
}

func (c *call) topic(t *Template) (string, error) {
	pattern := t.Settings.Topic
	if pattern == "" {
		pattern = c.eng.topic
	}
	if pattern == "" {
		return "", nil
	}

	done, err := c.enter("topic:" + t.ID())
	if err != nil {
		return "", err
	}
	defer done()
	return c.expandPattern(t, pattern)
}
