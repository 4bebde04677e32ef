package session

import (
	"context"

	"github.com/conneroisu/livecode/internal/lesson"
	"github.com/conneroisu/livecode/internal/sandbox"
)

// Report is the outcome of one headless run of an editor.
type Report struct {
	Editor   string `json:"editor" yaml:"editor"`
	Language string `json:"language" yaml:"language"`
	Outcome  string `json:"outcome" yaml:"outcome"`
	Message  string `json:"message,omitempty" yaml:"message,omitempty"`
	Warning  string `json:"warning,omitempty" yaml:"warning,omitempty"`
}

// Failed reports whether the run did not succeed.
func (r Report) Failed() bool { return r.Outcome == sandbox.KindFailure.String() }

// Check opens a private session on mod, initializes its editors and runs
// each one once with its initial text. No browser is involved.
func Check(ctx context.Context, mod *lesson.Module, opts Options) ([]Report, error) {
	s, err := New("check-"+mod.Name, mod, opts)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	var reports []Report
	err = s.Do(ctx, func() error {
		s.ready(ctx)
		for _, id := range s.registry.IDs() {
			inst, _ := s.registry.Get(id)
			res := s.dispatcher.Run(ctx, id)
			reports = append(reports, Report{
				Editor:   id,
				Language: string(inst.Language()),
				Outcome:  res.Kind.String(),
				Message:  res.Message,
				Warning:  res.Warning,
			})
		}
		return nil
	})
	return reports, err
}
