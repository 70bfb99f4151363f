package session

import "github.com/ashtonliu88/diff-digest/internal/notes"

type Status string

const (
	StatusIdle       Status = "idle"
	StatusGenerating Status = "generating"
	StatusComplete   Status = "complete"
	StatusErrored    Status = "errored"
)

// State is a read-only view of the controller. Generating and Complete
// mirror Status for callers that only need the flags.
type State struct {
	SelectedSubjectID string
	Result            notes.Result
	Status            Status
	Generating        bool
	Complete          bool
	Error             string
	FromCache         bool
}

func (s *State) setStatus(status Status) {
	s.Status = status
	s.Generating = status == StatusGenerating
	s.Complete = status == StatusComplete
}
