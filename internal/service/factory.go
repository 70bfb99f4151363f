package service

import (
	"github.com/ashtonliu88/diff-digest/common/llm"
	"github.com/ashtonliu88/diff-digest/internal/notes"
	"github.com/ashtonliu88/diff-digest/internal/service/diffsource"
)

type ServicesConfig struct {
	LLM        llm.StreamClient
	Composer   *notes.Composer
	DiffSource diffsource.DiffSource
}

type Services struct {
	notes NotesService
	diffs diffsource.DiffSource
}

func NewServices(cfg ServicesConfig) *Services {
	return &Services{
		notes: NewNotesService(cfg.LLM, cfg.Composer),
		diffs: cfg.DiffSource,
	}
}

func (s *Services) Notes() NotesService {
	return s.notes
}

func (s *Services) Diffs() diffsource.DiffSource {
	return s.diffs
}
