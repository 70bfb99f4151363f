package diffsource_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/ashtonliu88/diff-digest/internal/service/diffsource"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("GitLab diff source", func() {
	var (
		server    *httptest.Server
		src       diffsource.DiffSource
		mrQueries []string
		paths     []string
		notFound  bool
	)

	BeforeEach(func() {
		mrQueries = nil
		paths = nil
		notFound = false

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			paths = append(paths, r.URL.Path)
			if notFound {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"message":"404 Project Not Found"}`))
				return
			}

			switch {
			case strings.HasSuffix(r.URL.Path, "/merge_requests"):
				mrQueries = append(mrQueries, r.URL.RawQuery)
				w.Header().Set("X-Page", "1")
				w.Header().Set("X-Per-Page", "2")
				w.Header().Set("X-Next-Page", "2")
				_ = json.NewEncoder(w).Encode([]map[string]any{
					{"id": 100, "iid": 7, "title": "Add x", "web_url": "https://gitlab.test/acme/app/-/merge_requests/7", "state": "merged"},
					{"id": 101, "iid": 8, "title": "Empty", "web_url": "https://gitlab.test/acme/app/-/merge_requests/8", "state": "merged"},
				})
			case strings.HasSuffix(r.URL.Path, "/merge_requests/7/diffs"):
				_ = json.NewEncoder(w).Encode([]map[string]any{
					{"old_path": "x.go", "new_path": "x.go", "a_mode": "0", "b_mode": "100644", "new_file": true, "diff": "@@ -0,0 +1 @@\n+package x\n"},
					{"old_path": "y.go", "new_path": "y.go", "a_mode": "100644", "b_mode": "100644", "diff": "@@ -1 +1 @@\n-a\n+b"},
				})
			case strings.HasSuffix(r.URL.Path, "/merge_requests/7"):
				_ = json.NewEncoder(w).Encode(map[string]any{
					"id": 100, "iid": 7, "title": "Add x", "web_url": "https://gitlab.test/acme/app/-/merge_requests/7", "state": "merged",
				})
			case strings.HasSuffix(r.URL.Path, "/merge_requests/9"):
				_ = json.NewEncoder(w).Encode(map[string]any{"id": 102, "iid": 9, "title": "WIP", "state": "opened"})
			case strings.HasSuffix(r.URL.Path, "/merge_requests/8/diffs"):
				_ = json.NewEncoder(w).Encode([]map[string]any{})
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))

		var err error
		src, err = diffsource.NewGitLabDiffSource(server.URL, "token")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	It("lists merged merge requests with their diffs", func() {
		page, err := src.ListMergedDiffs(context.Background(), diffsource.ListParams{
			Owner: "acme", Repo: "app", Page: 1, PerPage: 2,
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(mrQueries).To(HaveLen(1))
		Expect(mrQueries[0]).To(ContainSubstring("state=merged"))
		Expect(mrQueries[0]).To(ContainSubstring("per_page=2"))

		Expect(page.CurrentPage).To(Equal(1))
		Expect(page.PerPage).To(Equal(2))
		Expect(page.NextPage).NotTo(BeNil())
		Expect(*page.NextPage).To(Equal(2))

		Expect(page.Diffs).To(HaveLen(1))
		d := page.Diffs[0]
		Expect(d.ID).To(Equal("7"))
		Expect(d.Description).To(Equal("Add x"))
		Expect(d.URL).To(Equal("https://gitlab.test/acme/app/-/merge_requests/7"))
		Expect(d.Diff).To(ContainSubstring("diff --git a/x.go b/x.go\nnew file mode 100644\n--- /dev/null\n+++ b/x.go\n@@ -0,0 +1 @@\n+package x\n"))
		Expect(d.Diff).To(HaveSuffix("--- a/y.go\n+++ b/y.go\n@@ -1 +1 @@\n-a\n+b\n"))
	})

	It("reports a missing project", func() {
		notFound = true
		_, err := src.ListMergedDiffs(context.Background(), diffsource.ListParams{Owner: "acme", Repo: "gone"})
		Expect(err).To(MatchError(diffsource.ErrProjectNotFound))
	})

	Describe("GetMergedDiff", func() {
		It("fetches one merge request without listing", func() {
			d, err := src.GetMergedDiff(context.Background(), "acme", "app", "7")
			Expect(err).NotTo(HaveOccurred())

			Expect(d.ID).To(Equal("7"))
			Expect(d.Description).To(Equal("Add x"))
			Expect(d.Diff).To(HavePrefix("diff --git a/x.go b/x.go\n"))
			Expect(paths).To(HaveLen(2))
			Expect(mrQueries).To(BeEmpty())
		})

		DescribeTable("reports pull requests that cannot be used",
			func(id string) {
				_, err := src.GetMergedDiff(context.Background(), "acme", "app", id)
				Expect(err).To(MatchError(diffsource.ErrDiffNotFound))
			},
			Entry("not merged", "9"),
			Entry("unknown", "404"),
			Entry("not a number", "abc"),
		)
	})

	It("requires owner and repo", func() {
		_, err := src.ListMergedDiffs(context.Background(), diffsource.ListParams{Owner: "acme"})
		Expect(err).To(MatchError(ContainSubstring("owner and repo are required")))
	})
})

var _ = Describe("ListParams", func() {
	DescribeTable("Normalize",
		func(in, out diffsource.ListParams) {
			Expect(in.Normalize()).To(Equal(out))
		},
		Entry("defaults", diffsource.ListParams{}, diffsource.ListParams{Page: 1, PerPage: 10}),
		Entry("caps per page", diffsource.ListParams{Page: 3, PerPage: 500}, diffsource.ListParams{Page: 3, PerPage: 100}),
		Entry("keeps valid values", diffsource.ListParams{Page: 2, PerPage: 25}, diffsource.ListParams{Page: 2, PerPage: 25}),
	)
})
