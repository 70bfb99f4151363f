package dto

import "github.com/ashtonliu88/diff-digest/internal/service/diffsource"

type ListDiffsRequest struct {
	Owner   string `form:"owner" binding:"required"`
	Repo    string `form:"repo" binding:"required"`
	Page    int    `form:"page" binding:"omitempty,min=1"`
	PerPage int    `form:"per_page" binding:"omitempty,min=1,max=100"`
}

type GetDiffRequest struct {
	Owner string `form:"owner" binding:"required"`
	Repo  string `form:"repo" binding:"required"`
}

type DiffResponse struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Diff        string `json:"diff"`
	URL         string `json:"url"`
}

type ListDiffsResponse struct {
	Diffs       []DiffResponse `json:"diffs"`
	NextPage    *int           `json:"nextPage"`
	CurrentPage int            `json:"currentPage"`
	PerPage     int            `json:"perPage"`
}

func NewListDiffsResponse(page *diffsource.Page) ListDiffsResponse {
	diffs := make([]DiffResponse, 0, len(page.Diffs))
	for _, d := range page.Diffs {
		diffs = append(diffs, NewDiffResponse(&d))
	}
	return ListDiffsResponse{
		Diffs:       diffs,
		NextPage:    page.NextPage,
		CurrentPage: page.CurrentPage,
		PerPage:     page.PerPage,
	}
}

func NewDiffResponse(d *diffsource.Diff) DiffResponse {
	return DiffResponse{
		ID:          d.ID,
		Description: d.Description,
		Diff:        d.Diff,
		URL:         d.URL,
	}
}
