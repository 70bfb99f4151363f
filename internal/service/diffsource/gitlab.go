package diffsource

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"
)

type gitLabDiffSource struct {
	client *gitlab.Client
}

// NewGitLabDiffSource lists merged merge requests of the project
// "<owner>/<repo>". An empty token works for public projects; an empty
// baseURL targets gitlab.com.
func NewGitLabDiffSource(baseURL, token string) (DiffSource, error) {
	client, err := newClient(baseURL, token)
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}
	return &gitLabDiffSource{client: client}, nil
}

func (s *gitLabDiffSource) ListMergedDiffs(ctx context.Context, params ListParams) (*Page, error) {
	params = params.Normalize()
	if params.Owner == "" || params.Repo == "" {
		return nil, fmt.Errorf("owner and repo are required")
	}
	project := params.Owner + "/" + params.Repo

	opts := &gitlab.ListProjectMergeRequestsOptions{
		State:   gitlab.Ptr("merged"),
		OrderBy: gitlab.Ptr("updated_at"),
		Sort:    gitlab.Ptr("desc"),
	}
	setInt(&opts.Page, params.Page)
	setInt(&opts.PerPage, params.PerPage)

	mrs, resp, err := s.client.MergeRequests.ListProjectMergeRequests(project, opts, gitlab.WithContext(ctx))
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, project)
		}
		return nil, fmt.Errorf("listing merge requests: %w", err)
	}

	page := &Page{
		Diffs:       make([]Diff, 0, len(mrs)),
		CurrentPage: params.Page,
		PerPage:     params.PerPage,
	}
	if next := int(resp.NextPage); next > 0 {
		page.NextPage = &next
	}

	for _, mr := range mrs {
		if mr == nil {
			continue
		}

		body, err := s.mergeRequestDiff(ctx, project, mr.IID)
		if err != nil {
			slog.WarnContext(ctx, "skipping merge request without diff",
				"project", project,
				"iid", mr.IID,
				"error", err)
			continue
		}

		page.Diffs = append(page.Diffs, Diff{
			ID:          strconv.FormatInt(mr.IID, 10),
			Description: mr.Title,
			Diff:        body,
			URL:         mr.WebURL,
		})
	}

	slog.DebugContext(ctx, "merged diffs listed",
		"project", project,
		"page", params.Page,
		"count", len(page.Diffs))

	return page, nil
}

func (s *gitLabDiffSource) GetMergedDiff(ctx context.Context, owner, repo, id string) (*Diff, error) {
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("owner and repo are required")
	}
	project := owner + "/" + repo

	iid, err := strconv.ParseInt(id, 10, 64)
	if err != nil || iid < 1 {
		return nil, fmt.Errorf("%w: %q", ErrDiffNotFound, id)
	}

	mr, resp, err := s.client.MergeRequests.GetMergeRequest(project, iid, nil, gitlab.WithContext(ctx))
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s!%d", ErrDiffNotFound, project, iid)
		}
		return nil, fmt.Errorf("getting merge request: %w", err)
	}
	if mr.State != "merged" {
		return nil, fmt.Errorf("%w: %s!%d is %s", ErrDiffNotFound, project, iid, mr.State)
	}

	body, err := s.mergeRequestDiff(ctx, project, iid)
	if err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "merged diff fetched", "project", project, "iid", iid, "bytes", len(body))

	return &Diff{
		ID:          strconv.FormatInt(iid, 10),
		Description: mr.Title,
		Diff:        body,
		URL:         mr.WebURL,
	}, nil
}

func (s *gitLabDiffSource) mergeRequestDiff(ctx context.Context, project string, iid int64) (string, error) {
	opts := &gitlab.ListMergeRequestDiffsOptions{
		ListOptions: gitlab.ListOptions{Page: 1, PerPage: MaxPerPage},
	}

	var b strings.Builder
	for {
		files, resp, err := s.client.MergeRequests.ListMergeRequestDiffs(project, iid, opts, gitlab.WithContext(ctx))
		if err != nil {
			return "", fmt.Errorf("fetching diffs: %w", err)
		}
		for _, f := range files {
			if f != nil {
				writeFileDiff(&b, f)
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if b.Len() == 0 {
		return "", fmt.Errorf("empty diff")
	}
	return b.String(), nil
}

// writeFileDiff renders one file in `git diff` form.
func writeFileDiff(b *strings.Builder, f *gitlab.MergeRequestDiff) {
	fmt.Fprintf(b, "diff --git a/%s b/%s\n", f.OldPath, f.NewPath)
	switch {
	case f.NewFile:
		fmt.Fprintf(b, "new file mode %s\n--- /dev/null\n+++ b/%s\n", f.BMode, f.NewPath)
	case f.DeletedFile:
		fmt.Fprintf(b, "deleted file mode %s\n--- a/%s\n+++ /dev/null\n", f.AMode, f.OldPath)
	default:
		if f.RenamedFile {
			fmt.Fprintf(b, "rename from %s\nrename to %s\n", f.OldPath, f.NewPath)
		}
		fmt.Fprintf(b, "--- a/%s\n+++ b/%s\n", f.OldPath, f.NewPath)
	}
	b.WriteString(f.Diff)
	if !strings.HasSuffix(f.Diff, "\n") {
		b.WriteString("\n")
	}
}

func newClient(baseURL, token string) (*gitlab.Client, error) {
	if baseURL == "" {
		return gitlab.NewClient(token)
	}
	apiURL := strings.TrimSuffix(baseURL, "/")
	if !strings.HasSuffix(apiURL, "/api/v4") {
		apiURL += "/api/v4"
	}
	return gitlab.NewClient(token, gitlab.WithBaseURL(apiURL))
}

// setInt assigns v to a paging field whatever its integer width.
func setInt[T ~int | ~int64](dst *T, v int) {
	*dst = T(v)
}
