// Package diffsource lists merged pull request diffs from the repository host.
package diffsource

import (
	"context"
	"errors"
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrDiffNotFound    = errors.New("merged pull request not found")
)

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

// Diff is one merged pull request with its full unified diff.
type Diff struct {
	ID          string
	Description string
	Diff        string
	URL         string
}

// Page is one page of merged diffs. NextPage is nil on the last page.
type Page struct {
	Diffs       []Diff
	NextPage    *int
	CurrentPage int
	PerPage     int
}

type ListParams struct {
	Owner   string
	Repo    string
	Page    int
	PerPage int
}

// Normalize clamps paging to sane bounds.
func (p ListParams) Normalize() ListParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	return p
}

type DiffSource interface {
	ListMergedDiffs(ctx context.Context, params ListParams) (*Page, error)
	// GetMergedDiff fetches one merged pull request of owner/repo by its
	// project-scoped id.
	GetMergedDiff(ctx context.Context, owner, repo, id string) (*Diff, error)
}
