package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ashtonliu88/diff-digest/internal/notes"
	"github.com/ashtonliu88/diff-digest/internal/service/diffsource"
	"github.com/ashtonliu88/diff-digest/internal/session"
	"github.com/spf13/cobra"
)

func newNotesCommand(a *app) *cobra.Command {
	var (
		diffFile   string
		owner      string
		repo       string
		regenerate bool
	)

	cmd := &cobra.Command{
		Use:   "notes <pr-id>",
		Short: "Stream developer and marketing notes for a pull request",
		Long: `Stream developer and marketing notes for a pull request.

The diff is read from --diff-file ("-" for stdin) or, when omitted, looked up
among the merged pull requests of the saved repository. Notes are cached; use
--regenerate to bypass the cache.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
				return &usageError{msg: "exactly one pull request id is required"}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			subjectID := strings.TrimPrefix(strings.TrimSpace(args[0]), "#")

			diff, err := a.loadDiff(ctx, subjectID, diffFile, owner, repo)
			if err != nil {
				return err
			}

			ctrl := session.NewController(session.NewClientGenerator(a.client), a.cache)
			defer ctrl.Close()

			return streamNotes(ctx, ctrl, a.out, a.errOut, subjectID, diff, regenerate)
		},
	}

	cmd.Flags().StringVar(&diffFile, "diff-file", "", `file holding the unified diff ("-" for stdin)`)
	cmd.Flags().StringVar(&owner, "owner", "", "repository owner for the diff lookup")
	cmd.Flags().StringVar(&repo, "repo", "", "repository name for the diff lookup")
	cmd.Flags().BoolVar(&regenerate, "regenerate", false, "ignore cached notes")
	return cmd
}

func (a *app) loadDiff(ctx context.Context, subjectID, diffFile, owner, repo string) (string, error) {
	switch diffFile {
	case "":
	case "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading diff from stdin: %w", err)
		}
		return string(data), nil
	default:
		data, err := os.ReadFile(diffFile)
		if err != nil {
			return "", fmt.Errorf("reading diff: %w", err)
		}
		return string(data), nil
	}

	owner, repo = a.repository(ctx, owner, repo)
	d, err := a.client.GetDiff(ctx, owner, repo, subjectID)
	if errors.Is(err, diffsource.ErrDiffNotFound) {
		return "", &usageError{msg: fmt.Sprintf("pull request #%s not found in %s/%s; pass --diff-file", subjectID, owner, repo)}
	}
	if err != nil {
		return "", fmt.Errorf("looking up #%s in %s/%s: %w", subjectID, owner, repo, err)
	}
	slog.DebugContext(ctx, "diff found", "subject_id", subjectID, "bytes", len(d.Diff))
	return d.Diff, nil
}

// streamNotes runs one generation and prints it as it arrives. Cancelling
// ctx cancels the generation.
func streamNotes(ctx context.Context, ctrl *session.Controller, out, errOut io.Writer, subjectID, diff string, regenerate bool) error {
	updates, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	if regenerate {
		ctrl.Select(subjectID, diff)
		ctrl.Regenerate(context.WithoutCancel(ctx))
	} else {
		ctrl.Generate(context.WithoutCancel(ctx), subjectID, diff)
	}

	r := &renderer{out: out}
	for {
		select {
		case <-ctx.Done():
			ctrl.Cancel()
			r.render(ctrl.State().Result, true)
			r.finish()
			fmt.Fprintln(errOut, "Generation cancelled.")
			return nil
		case state, ok := <-updates:
			if !ok {
				return nil
			}
			if state.SelectedSubjectID != subjectID {
				continue
			}
			switch state.Status {
			case session.StatusGenerating:
				r.render(state.Result, false)
			case session.StatusComplete:
				if state.FromCache {
					writeCached(out, errOut, state.Result)
					return nil
				}
				r.render(state.Result, true)
				r.finish()
				return nil
			case session.StatusErrored:
				r.render(state.Result, true)
				r.finish()
				return errors.New(state.Error)
			}
		}
	}
}

// renderer prints the growth of the two buffers. Technical text is complete
// before user text starts, so printing each delta in order reproduces the
// stream. While the stream is live, a tail that is or may become an error
// payload is held back; the final state has that payload stripped.
type renderer struct {
	out          io.Writer
	technicalLen int
	userLen      int
	started      bool
}

func (r *renderer) render(res notes.Result, final bool) {
	if len(res.TechnicalNotes) < r.technicalLen || len(res.UserNotes) < r.userLen {
		// The buffers were replaced, e.g. by a trimmed error payload.
		return
	}

	technical := res.TechnicalNotes
	if !final && res.UserNotes == "" {
		technical = technical[:printableLen(technical)]
	}
	if len(technical) > r.technicalLen {
		fmt.Fprint(r.out, technical[r.technicalLen:])
		r.technicalLen = len(technical)
		r.started = true
	}

	user := res.UserNotes
	if !final {
		user = user[:printableLen(user)]
	}
	if len(user) > r.userLen {
		if r.userLen == 0 && r.started && !strings.HasSuffix(technical, "\n") {
			fmt.Fprintln(r.out)
		}
		fmt.Fprint(r.out, user[r.userLen:])
		r.userLen = len(user)
		r.started = true
	}
}

// payloadStart opens every error payload the server appends.
const payloadStart = `{"error":`

// printableLen returns how much of s can be shown before the stream ends.
func printableLen(s string) int {
	if i := strings.LastIndex(s, payloadStart); i >= 0 {
		return i
	}
	for n := len(payloadStart) - 1; n > 0; n-- {
		if strings.HasSuffix(s, payloadStart[:n]) {
			return len(s) - n
		}
	}
	return len(s)
}

func (r *renderer) finish() {
	if r.started {
		fmt.Fprintln(r.out)
	}
}

func writeCached(out, errOut io.Writer, res notes.Result) {
	fmt.Fprintf(errOut, "Using cached notes from %s (use --regenerate to refresh).\n", res.CompletedAt.Format("2006-01-02 15:04"))
	for _, ch := range []notes.Channel{notes.ChannelTechnical, notes.ChannelUser} {
		text := res.TechnicalNotes
		if ch == notes.ChannelUser {
			text = res.UserNotes
		}
		fmt.Fprintf(out, "%s:\n%s\n\n", ch.Header(), notes.DisplayText(ch, text))
	}
}
