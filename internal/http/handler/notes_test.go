package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ashtonliu88/diff-digest/common/llm"
	"github.com/ashtonliu88/diff-digest/common/llm/llmtest"
	"github.com/ashtonliu88/diff-digest/internal/http/handler"
	"github.com/ashtonliu88/diff-digest/internal/notes"
	"github.com/ashtonliu88/diff-digest/internal/service"
)

var _ = Describe("NotesHandler", func() {
	var (
		router *gin.Engine
		client *mockStreamClient
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		client = &mockStreamClient{}
		h := handler.NewNotesHandler(service.NewNotesService(client, notes.DefaultComposer()))

		router.POST("/api/generate-notes", h.Generate)
	})

	post := func(body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			Expect(json.NewEncoder(&buf).Encode(b)).To(Succeed())
		}
		req := httptest.NewRequest(http.MethodPost, "/api/generate-notes", &buf)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	It("streams both sections separated by the sentinel", func() {
		client.scripts = []llm.Fragments{
			llmtest.Fragments([]string{"DEVELOPER NOTES:\n", "Added x."}, nil),
			llmtest.Fragments([]string{"MARKETING NOTES:\n", "You get x."}, nil),
		}

		w := post(map[string]string{"prId": "42", "diff": "+x"})

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Header().Get("Content-Type")).To(Equal(notes.ContentType))
		Expect(w.Body.String()).To(Equal("DEVELOPER NOTES:\nAdded x." + notes.Separator + "MARKETING NOTES:\nYou get x."))
		Expect(w.Result().Trailer.Get(notes.ErrorTrailer)).To(BeEmpty())
	})

	DescribeTable("answers invalid requests with the validation payload",
		func(body any) {
			w := post(body)

			Expect(w.Code).To(Equal(http.StatusOK))
			msg, ok := notes.DecodeError(w.Body.String())
			Expect(ok).To(BeTrue())
			Expect(msg).To(Equal("Missing required fields: prId and diff"))
			Expect(client.calls).To(BeZero())
		},
		Entry("missing diff", map[string]string{"prId": "42"}),
		Entry("missing prId", map[string]string{"diff": "+x"}),
		Entry("empty object", map[string]string{}),
		Entry("malformed json", "{not json"),
	)

	It("reports an upstream failure in the body and the trailer", func() {
		client.scripts = []llm.Fragments{
			llmtest.Fragments([]string{"DEVELOPER NOTES:\n"}, errors.New("upstream unavailable")),
		}

		w := post(map[string]string{"prId": "42", "diff": "+x"})

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(HavePrefix("DEVELOPER NOTES:\n"))
		Expect(w.Body.String()).To(HaveSuffix("}"))
		Expect(w.Result().Trailer.Get(notes.ErrorTrailer)).To(ContainSubstring("upstream unavailable"))
		Expect(strings.Contains(w.Body.String(), notes.Sentinel)).To(BeFalse())
	})
})
