package service_test

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/ashtonliu88/diff-digest/common/llm"
)

// scriptedPhase is the output of one StreamCompletion call.
type scriptedPhase struct {
	fragments []string
	err       error
	// block waits for ctx to be cancelled after the fragments.
	block bool
}

type mockStreamClient struct {
	mu       sync.Mutex
	phases   []scriptedPhase
	requests []llm.StreamRequest
}

func (m *mockStreamClient) StreamCompletion(ctx context.Context, req llm.StreamRequest) llm.Fragments {
	m.mu.Lock()
	call := len(m.requests)
	m.requests = append(m.requests, req)
	var phase scriptedPhase
	if call < len(m.phases) {
		phase = m.phases[call]
	}
	m.mu.Unlock()

	return llm.Once(func(yield func(string, error) bool) {
		for _, f := range phase.fragments {
			if !yield(f, nil) {
				return
			}
		}
		if phase.block {
			<-ctx.Done()
			yield("", ctx.Err())
			return
		}
		if phase.err != nil {
			yield("", phase.err)
		}
	})
}

func (m *mockStreamClient) Model() string {
	return "mock-model"
}

func (m *mockStreamClient) Requests() []llm.StreamRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.StreamRequest(nil), m.requests...)
}

type recordingSink struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	writes   []string
	flushes  int
	closes   int
	trailers map[string]string
	failAt   int // fail the n-th write (1-based); 0 never fails
}

func (s *recordingSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAt > 0 && len(s.writes)+1 == s.failAt {
		s.writes = append(s.writes, "<failed>")
		return 0, errors.New("broken pipe")
	}
	s.writes = append(s.writes, string(p))
	return s.buf.Write(p)
}

func (s *recordingSink) Flush() {
	s.mu.Lock()
	s.flushes++
	s.mu.Unlock()
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) SetTrailer(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trailers == nil {
		s.trailers = map[string]string{}
	}
	s.trailers[key] = value
}

func (s *recordingSink) Body() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}
