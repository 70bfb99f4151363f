package notes

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Demuxer splits a framed byte stream back into the two note channels.
//
// Chunk boundaries are arbitrary: the sentinel may arrive split across
// chunks, and so may a multi-byte rune. A tail of technical text that could
// still turn into the sentinel is held back until the next chunk decides it.
// Only the first sentinel switches channels; later occurrences are user
// content.
//
// A body that starts like an error payload ('{' then the "error" key) is held
// whole until Close, where it is either classified as an error payload or
// released as content. Any other brace-led body is released as soon as it
// diverges from that shape.
type Demuxer struct {
	mode      Channel
	technical strings.Builder
	user      strings.Builder

	pending     string // technical tail that is a prefix of Sentinel
	carry       []byte // incomplete UTF-8 sequence from the previous chunk
	trimLeading bool   // drop separator padding at the start of the user channel
	switched    bool

	sniffing bool
	sniffed  strings.Builder
	started  bool
	closed   bool
}

func NewDemuxer() *Demuxer {
	return &Demuxer{mode: ChannelTechnical}
}

// Write feeds one received chunk. It never fails; the signature lets the
// demuxer sit behind io.Copy.
func (d *Demuxer) Write(p []byte) (int, error) {
	n := len(p)
	if d.closed {
		return n, nil
	}

	buf := append(d.carry, p...)
	complete, rest := splitIncompleteRune(buf)
	d.carry = append([]byte(nil), rest...)
	d.feed(string(complete))
	return n, nil
}

func (d *Demuxer) feed(chunk string) {
	if chunk == "" {
		return
	}

	if !d.started {
		trimmed := strings.TrimLeftFunc(chunk, unicode.IsSpace)
		if trimmed == "" {
			d.sniffed.WriteString(chunk)
			return
		}
		d.started = true
		d.sniffing = trimmed[0] == '{'
		chunk = d.sniffed.String() + chunk
		d.sniffed.Reset()
	}

	if d.sniffing {
		d.sniffed.WriteString(chunk)
		if couldBeErrorPayload(d.sniffed.String()) {
			return
		}
		chunk = d.sniffed.String()
		d.sniffed.Reset()
		d.sniffing = false
	}

	d.route(chunk)
}

func (d *Demuxer) route(chunk string) {
	if d.mode == ChannelUser {
		d.appendUser(chunk)
		return
	}

	text := d.pending + chunk
	d.pending = ""

	if idx := strings.Index(text, Sentinel); idx >= 0 {
		d.technical.WriteString(text[:idx])
		d.mode = ChannelUser
		d.switched = true
		d.trimLeading = true
		d.appendUser(text[idx+len(Sentinel):])
		return
	}

	hold := sentinelPrefixLen(text)
	d.technical.WriteString(text[:len(text)-hold])
	d.pending = text[len(text)-hold:]
}

func (d *Demuxer) appendUser(s string) {
	if d.trimLeading {
		s = strings.TrimLeft(s, "\r\n")
		if s == "" {
			return
		}
		d.trimLeading = false
	}
	d.user.WriteString(s)
}

// Close flushes held-back text. If the whole body was an error payload it
// returns a *RemoteError and both channels stay empty.
func (d *Demuxer) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.feedCarry()

	if d.sniffing || !d.started {
		if msg, ok := DecodeError(d.sniffed.String()); ok {
			d.sniffed.Reset()
			return &RemoteError{Message: msg}
		}
	}
	d.release()
	return nil
}

// Flush ends a stream that broke off. All held-back text is released into
// the channels as content, without classifying it.
func (d *Demuxer) Flush() {
	if d.closed {
		return
	}
	d.closed = true
	d.feedCarry()
	d.release()
}

func (d *Demuxer) feedCarry() {
	if len(d.carry) > 0 {
		d.feed(string(d.carry))
		d.carry = nil
	}
}

func (d *Demuxer) release() {
	if d.sniffed.Len() > 0 {
		body := d.sniffed.String()
		d.sniffed.Reset()
		d.sniffing = false
		d.route(body)
	}
	if d.pending != "" {
		d.technical.WriteString(d.pending)
		d.pending = ""
	}
}

// StripErrorPayload removes a trailing error payload for msg from the active
// channel. The server appends that payload when a phase fails mid-stream.
func (d *Demuxer) StripErrorPayload(msg string) bool {
	suffix := string(EncodeError(msg))
	b := &d.technical
	if d.mode == ChannelUser {
		b = &d.user
	}
	s := b.String()
	if !strings.HasSuffix(s, suffix) {
		return false
	}
	b.Reset()
	b.WriteString(strings.TrimSuffix(s, suffix))
	return true
}

func (d *Demuxer) Mode() Channel {
	return d.mode
}

// Switched reports whether the sentinel has been seen.
func (d *Demuxer) Switched() bool {
	return d.switched
}

func (d *Demuxer) Technical() string {
	return d.technical.String()
}

func (d *Demuxer) User() string {
	return d.user.String()
}

// Snapshot returns the current buffers as an incomplete Result.
func (d *Demuxer) Snapshot() Result {
	return Result{
		TechnicalNotes: d.technical.String(),
		UserNotes:      d.user.String(),
	}
}

const errorKey = `"error"`

// couldBeErrorPayload reports whether s may still grow into the payload
// written by EncodeError: '{', optional whitespace, then the "error" key.
func couldBeErrorPayload(s string) bool {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	if !strings.HasPrefix(s, "{") || strings.Contains(s, Sentinel) {
		return false
	}
	s = strings.TrimLeftFunc(s[1:], unicode.IsSpace)
	if len(s) < len(errorKey) {
		return strings.HasPrefix(errorKey, s)
	}
	return strings.HasPrefix(s, errorKey)
}

// sentinelPrefixLen returns the length of the longest suffix of text that is
// a proper prefix of Sentinel.
func sentinelPrefixLen(text string) int {
	n := len(Sentinel) - 1
	if len(text) < n {
		n = len(text)
	}
	for ; n > 0; n-- {
		if strings.HasSuffix(text, Sentinel[:n]) {
			return n
		}
	}
	return 0
}

// splitIncompleteRune splits off a trailing partial UTF-8 sequence.
func splitIncompleteRune(p []byte) (complete, rest []byte) {
	start := len(p) - utf8.UTFMax + 1
	if start < 0 {
		start = 0
	}
	for i := len(p) - 1; i >= start; i-- {
		if utf8.RuneStart(p[i]) {
			if !utf8.FullRune(p[i:]) {
				return p[:i], p[i:]
			}
			break
		}
	}
	return p, nil
}
