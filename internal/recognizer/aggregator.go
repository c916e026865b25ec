package recognizer

import (
	"strings"

	"voxfill/internal/domain"
)

// utterance accumulates provider segments for the current utterance.
// Streaming providers finalize an utterance in pieces; the pieces are
// joined until the provider marks the end of speech.
type utterance struct {
	finals  []string
	partial string
}

func (u *utterance) Add(event domain.TranscriptEvent) {
	text := strings.TrimSpace(event.Text)
	if text == "" {
		return
	}
	if event.Kind == domain.TranscriptKindFinal {
		u.finals = append(u.finals, text)
		u.partial = ""
		return
	}
	u.partial = text
}

// Preview is the best current guess, including unfinalized speech.
func (u *utterance) Preview() string {
	joined := strings.Join(u.finals, " ")
	if u.partial == "" {
		return joined
	}
	if joined == "" {
		return u.partial
	}
	return joined + " " + u.partial
}

// Text is the finalized transcript. When nothing was finalized it falls
// back to the last partial, which is what the speaker last saw.
func (u *utterance) Text() string {
	joined := strings.Join(u.finals, " ")
	if joined == "" {
		return u.partial
	}
	return joined
}

func (u *utterance) Empty() bool {
	return len(u.finals) == 0 && u.partial == ""
}

func (u *utterance) Reset() {
	u.finals = u.finals[:0]
	u.partial = ""
}
