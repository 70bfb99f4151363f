package dto

// GenerateNotesRequest is validated by the notes service rather than by gin
// binding so that a missing field still produces the streamed error payload.
type GenerateNotesRequest struct {
	PRID string `json:"prId"`
	Diff string `json:"diff"`
}
