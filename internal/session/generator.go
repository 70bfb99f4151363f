package session

import (
	"context"
	"io"

	"github.com/ashtonliu88/diff-digest/internal/client"
	"github.com/ashtonliu88/diff-digest/internal/notes"
)

// NotesStream is an in-flight generation response.
type NotesStream interface {
	io.ReadCloser
	// TrailerError is valid once the stream has been read to EOF.
	TrailerError() (string, bool)
}

type Generator interface {
	GenerateNotes(ctx context.Context, req notes.Request) (NotesStream, error)
}

type clientGenerator struct {
	client *client.Client
}

// NewClientGenerator issues generations against the server through c.
func NewClientGenerator(c *client.Client) Generator {
	return &clientGenerator{client: c}
}

func (g *clientGenerator) GenerateNotes(ctx context.Context, req notes.Request) (NotesStream, error) {
	stream, err := g.client.GenerateNotes(ctx, req)
	if err != nil {
		return nil, err
	}
	return stream, nil
}
