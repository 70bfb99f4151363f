package service_test

import (
	"context"
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ashtonliu88/diff-digest/internal/notes"
	"github.com/ashtonliu88/diff-digest/internal/service"
)

var _ = Describe("NotesService", func() {
	var (
		ctx    context.Context
		client *mockStreamClient
		sink   *recordingSink
		svc    service.NotesService
		req    notes.Request
	)

	BeforeEach(func() {
		ctx = context.Background()
		client = &mockStreamClient{}
		sink = &recordingSink{}
		svc = service.NewNotesService(client, notes.DefaultComposer())
		req = notes.Request{SubjectID: "42", Body: "diff --git a/x.go b/x.go\n+func X() {}\n"}
	})

	Describe("Stream", func() {
		It("writes technical output, one sentinel, then user output", func() {
			client.phases = []scriptedPhase{
				{fragments: []string{"DEVELOPER NOTES:\n", "Added X."}},
				{fragments: []string{"MARKETING NOTES:\n", "You get X."}},
			}

			Expect(svc.Stream(ctx, req, sink)).To(Succeed())

			body := sink.Body()
			Expect(body).To(Equal("DEVELOPER NOTES:\nAdded X." + notes.Separator + "MARKETING NOTES:\nYou get X."))
			Expect(strings.Count(body, notes.Sentinel)).To(Equal(1))
			Expect(sink.closes).To(Equal(1))
		})

		It("flushes after every write", func() {
			client.phases = []scriptedPhase{
				{fragments: []string{"a", "b"}},
				{fragments: []string{"c"}},
			}

			Expect(svc.Stream(ctx, req, sink)).To(Succeed())
			Expect(sink.flushes).To(Equal(len(sink.writes)))
		})

		It("skips empty fragments", func() {
			client.phases = []scriptedPhase{
				{fragments: []string{"", "tech", ""}},
				{fragments: []string{"user"}},
			}

			Expect(svc.Stream(ctx, req, sink)).To(Succeed())
			Expect(sink.writes).To(Equal([]string{"tech", notes.Separator, "user"}))
		})

		It("still writes the sentinel when the technical phase is empty", func() {
			client.phases = []scriptedPhase{
				{},
				{fragments: []string{"user"}},
			}

			Expect(svc.Stream(ctx, req, sink)).To(Succeed())
			Expect(sink.Body()).To(Equal(notes.Separator + "user"))
		})

		It("calls the client once per phase with the phase parameters", func() {
			client.phases = []scriptedPhase{{}, {}}

			Expect(svc.Stream(ctx, req, sink)).To(Succeed())

			reqs := client.Requests()
			Expect(reqs).To(HaveLen(2))
			Expect(reqs[0].SystemPrompt).To(Equal(reqs[1].SystemPrompt))
			Expect(reqs[0].MaxTokens).To(Equal(750))
			Expect(reqs[1].MaxTokens).To(Equal(750))
			Expect(*reqs[0].Temperature).To(BeNumerically("~", 0.3))
			Expect(*reqs[1].Temperature).To(BeNumerically("~", 0.7))
			Expect(reqs[0].UserPrompt).To(ContainSubstring("PR #42"))
			Expect(reqs[0].UserPrompt).To(ContainSubstring("DEVELOPER NOTES"))
			Expect(reqs[1].UserPrompt).To(ContainSubstring("MARKETING NOTES"))
		})

		Context("with an invalid request", func() {
			DescribeTable("writes the validation payload and calls nothing",
				func(r notes.Request) {
					err := svc.Stream(ctx, r, sink)

					Expect(err).To(MatchError(notes.ErrValidation))
					msg, ok := notes.DecodeError(sink.Body())
					Expect(ok).To(BeTrue())
					Expect(msg).To(Equal(notes.ValidationMessage))
					Expect(client.Requests()).To(BeEmpty())
					Expect(sink.closes).To(Equal(1))
				},
				Entry("missing subject", notes.Request{Body: "diff"}),
				Entry("blank subject", notes.Request{SubjectID: "   ", Body: "diff"}),
				Entry("missing body", notes.Request{SubjectID: "1"}),
				Entry("blank body", notes.Request{SubjectID: "1", Body: "  \n"}),
			)
		})

		Context("when the upstream fails", func() {
			It("appends the error payload and sets the trailer during the technical phase", func() {
				client.phases = []scriptedPhase{
					{fragments: []string{"partial"}, err: errors.New("rate limited")},
				}

				err := svc.Stream(ctx, req, sink)

				var upErr *notes.UpstreamError
				Expect(errors.As(err, &upErr)).To(BeTrue())
				Expect(upErr.Phase).To(Equal(notes.ChannelTechnical))
				Expect(sink.Body()).To(HavePrefix("partial"))
				Expect(sink.Body()).To(ContainSubstring(`"error"`))
				Expect(sink.Body()).NotTo(ContainSubstring(notes.Sentinel))
				Expect(sink.trailers).To(HaveKeyWithValue(notes.ErrorTrailer, ContainSubstring("rate limited")))
				Expect(client.Requests()).To(HaveLen(1))
				Expect(sink.closes).To(Equal(1))
			})

			It("keeps the technical output when the user phase fails", func() {
				client.phases = []scriptedPhase{
					{fragments: []string{"tech"}},
					{err: errors.New("boom")},
				}

				err := svc.Stream(ctx, req, sink)

				var upErr *notes.UpstreamError
				Expect(errors.As(err, &upErr)).To(BeTrue())
				Expect(upErr.Phase).To(Equal(notes.ChannelUser))
				Expect(sink.Body()).To(HavePrefix("tech" + notes.Separator))
				Expect(sink.closes).To(Equal(1))
			})

			It("produces a pure error payload when nothing was written", func() {
				client.phases = []scriptedPhase{{err: errors.New("unauthorized")}}

				Expect(svc.Stream(ctx, req, sink)).NotTo(Succeed())

				msg, ok := notes.DecodeError(sink.Body())
				Expect(ok).To(BeTrue())
				Expect(msg).To(ContainSubstring("unauthorized"))
			})
		})

		Context("when the client goes away", func() {
			It("stops writing once the context is cancelled", func() {
				cctx, cancel := context.WithCancel(ctx)
				client.phases = []scriptedPhase{
					{fragments: []string{"tech"}, block: true},
				}

				done := make(chan error, 1)
				go func() { done <- svc.Stream(cctx, req, sink) }()

				Eventually(sink.Body).Should(Equal("tech"))
				cancel()

				var err error
				Eventually(done, time.Second).Should(Receive(&err))
				Expect(err).To(MatchError(context.Canceled))
				Expect(sink.Body()).To(Equal("tech"))
				Expect(sink.trailers).To(BeEmpty())
				Expect(client.Requests()).To(HaveLen(1))
				Expect(sink.closes).To(Equal(1))
			})

			It("abandons generation after a failed write", func() {
				client.phases = []scriptedPhase{
					{fragments: []string{"one", "two", "three"}},
					{fragments: []string{"user"}},
				}
				sink.failAt = 2

				err := svc.Stream(ctx, req, sink)

				Expect(err).To(MatchError(service.ErrStreamClosed))
				Expect(sink.writes).To(Equal([]string{"one", "<failed>"}))
				Expect(client.Requests()).To(HaveLen(1))
				Expect(sink.closes).To(Equal(1))
			})
		})
	})
})

var _ = Describe("Services", func() {
	It("exposes the configured services", func() {
		svcs := service.NewServices(service.ServicesConfig{LLM: &mockStreamClient{}})

		Expect(svcs.Notes()).NotTo(BeNil())
		Expect(svcs.Diffs()).To(BeNil())
	})
})
