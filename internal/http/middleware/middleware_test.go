package middleware_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ashtonliu88/diff-digest/common/logger"
	"github.com/ashtonliu88/diff-digest/internal/http/middleware"
)

var _ = Describe("middleware", func() {
	var (
		router *gin.Engine
		logs   *bytes.Buffer
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		logs = &bytes.Buffer{}
		previous := slog.Default()
		slog.SetDefault(slog.New(logger.NewTraceHandler(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))))
		DeferCleanup(func() { slog.SetDefault(previous) })

		router = gin.New()
		router.Use(middleware.Recovery(), middleware.RequestID(), middleware.Logger())
	})

	serve := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	It("tags the response and the log record with a request id", func() {
		var sessionID *int64
		router.GET("/ok", func(c *gin.Context) {
			sessionID = logger.GetLogFields(c.Request.Context()).SessionID
			c.String(http.StatusOK, "ok")
		})

		w := serve("/ok")

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Header().Get(middleware.RequestIDHeader)).NotTo(BeEmpty())
		Expect(sessionID).NotTo(BeNil())

		var record map[string]any
		Expect(json.Unmarshal(logs.Bytes(), &record)).To(Succeed())
		Expect(record["msg"]).To(Equal("request"))
		Expect(record["route"]).To(Equal("/ok"))
		Expect(record["session_id"]).To(BeNumerically("==", *sessionID))
	})

	It("recovers panics before the response started", func() {
		router.GET("/panic", func(c *gin.Context) {
			panic("boom")
		})

		w := serve("/panic")

		Expect(w.Code).To(Equal(http.StatusInternalServerError))
		Expect(w.Body.String()).To(ContainSubstring("internal server error"))
		Expect(logs.String()).To(ContainSubstring("panic recovered"))
	})

	It("leaves a started stream alone when recovering", func() {
		router.GET("/stream", func(c *gin.Context) {
			c.String(http.StatusOK, "partial")
			panic("boom")
		})

		w := serve("/stream")

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(Equal("partial"))
	})

	It("warns about errors attached to a successful response", func() {
		router.GET("/streamed-error", func(c *gin.Context) {
			c.String(http.StatusOK, "partial")
			_ = c.Error(errors.New("upstream failed"))
		})

		serve("/streamed-error")

		Expect(logs.String()).To(ContainSubstring(`"level":"WARN"`))
		Expect(logs.String()).To(ContainSubstring("request completed with errors"))
	})
})
