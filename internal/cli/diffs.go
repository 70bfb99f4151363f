package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/ashtonliu88/diff-digest/common/logger"
	"github.com/ashtonliu88/diff-digest/internal/service/diffsource"
	"github.com/spf13/cobra"
)

const previewLength = 300

func newDiffsCommand(a *app) *cobra.Command {
	var (
		owner   string
		repo    string
		page    int
		perPage int
	)

	cmd := &cobra.Command{
		Use:   "diffs",
		Short: "List merged pull requests with a diff preview",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			owner, repo := a.repository(ctx, owner, repo)

			result, err := a.client.ListDiffs(ctx, diffsource.ListParams{
				Owner:   owner,
				Repo:    repo,
				Page:    page,
				PerPage: perPage,
			})
			if err != nil {
				return fmt.Errorf("listing diffs for %s/%s: %w", owner, repo, err)
			}

			writeDiffList(a.out, owner, repo, result)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "repository owner (saved for next time)")
	cmd.Flags().StringVar(&repo, "repo", "", "repository name (saved for next time)")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&perPage, "per-page", diffsource.DefaultPerPage, "pull requests per page")
	return cmd
}

func writeDiffList(w io.Writer, owner, repo string, page *diffsource.Page) {
	fmt.Fprintf(w, "Merged pull requests in %s/%s (page %d)\n\n", owner, repo, page.CurrentPage)
	if len(page.Diffs) == 0 {
		fmt.Fprintln(w, "No merged pull requests found.")
		return
	}

	for _, d := range page.Diffs {
		fmt.Fprintf(w, "#%s  %s\n", d.ID, d.Description)
		if d.URL != "" {
			fmt.Fprintf(w, "    %s\n", d.URL)
		}
		for _, line := range strings.Split(preview(d.Diff, previewLength), "\n") {
			fmt.Fprintf(w, "    | %s\n", line)
		}
		fmt.Fprintln(w)
	}

	if page.NextPage != nil {
		fmt.Fprintf(w, "More results: --page %d\n", *page.NextPage)
	}
}

// preview cuts s to at most n characters, marking the cut with "...".
func preview(s string, n int) string {
	return logger.Truncate(strings.TrimRight(s, "\n"), n)
}
