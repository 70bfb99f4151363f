package notes

import (
	"fmt"
	"strings"
)

const (
	DefaultMaxTokens            = 1500
	DefaultTechnicalTemperature = 0.3
	DefaultUserTemperature      = 0.7
)

const systemInstruction = `You write release notes from Git diffs. Every response has a DEVELOPER NOTES section and a MARKETING NOTES section; you will be asked for one section at a time.`

const technicalGuidelines = `DEVELOPER NOTES:
[technical notes only]

Guidelines for DEVELOPER NOTES:
- Explain what changed and why, concisely, for other developers
- Name files, functions, types and libraries touched by the diff
- State only what the diff supports; never invent changes
- One to three sentences per note
- Do not open with "This PR" or "This commit"
- For large diffs, cover the most significant changes first
- No marketing or end-user language in this section`

const userGuidelines = `MARKETING NOTES:
[user-facing notes only]

Guidelines for MARKETING NOTES:
- Describe the benefit or value an end user gets from the change
- Plain language, no implementation jargon
- State only what the diff supports; never invent features
- One to three sentences per note
- Do not open with "This PR" or "This commit"
- For large diffs, cover the most significant changes first`

// ComposerConfig sets the sampling parameters for both phases.
type ComposerConfig struct {
	MaxTokens            int // combined budget, split evenly between the phases
	TechnicalTemperature float64
	UserTemperature      float64
}

// Phase is one completion call of a generation.
type Phase struct {
	Channel     Channel
	UserPrompt  string
	Temperature float64
	MaxTokens   int
}

// Instructions are the payloads for both phases of one request.
type Instructions struct {
	System    string
	Technical Phase
	User      Phase
}

// Phases returns the phases in generation order. The technical phase always
// runs to completion before the user phase starts.
func (i Instructions) Phases() []Phase {
	return []Phase{i.Technical, i.User}
}

type Composer struct {
	cfg ComposerConfig
}

func NewComposer(cfg ComposerConfig) *Composer {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return &Composer{cfg: cfg}
}

// DefaultComposer uses 0.3/0.7 temperatures and a 1500 token budget.
func DefaultComposer() *Composer {
	return NewComposer(ComposerConfig{
		MaxTokens:            DefaultMaxTokens,
		TechnicalTemperature: DefaultTechnicalTemperature,
		UserTemperature:      DefaultUserTemperature,
	})
}

// PhaseBudget is the per-phase token cap.
func (c *Composer) PhaseBudget() int {
	budget := c.cfg.MaxTokens / 2
	if budget < 1 {
		budget = 1
	}
	return budget
}

// Compose builds both phase instructions around the full diff. The two user
// prompts differ only in which section they ask for.
func (c *Composer) Compose(subjectID, diff string) Instructions {
	base := basePrompt(subjectID, diff)
	budget := c.PhaseBudget()

	return Instructions{
		System: systemInstruction,
		Technical: Phase{
			Channel:     ChannelTechnical,
			UserPrompt:  base + focusLine(ChannelTechnical),
			Temperature: c.cfg.TechnicalTemperature,
			MaxTokens:   budget,
		},
		User: Phase{
			Channel:     ChannelUser,
			UserPrompt:  base + focusLine(ChannelUser),
			Temperature: c.cfg.UserTemperature,
			MaxTokens:   budget,
		},
	}
}

func basePrompt(subjectID, diff string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nWrite two kinds of release notes for PR #%s from the Git diff below.\n\n", subjectID)
	b.WriteString(technicalGuidelines)
	b.WriteString("\n\n")
	b.WriteString(userGuidelines)
	b.WriteString("\n\nGit diff:\n```\n")
	b.WriteString(diff)
	b.WriteString("\n```\n")
	return b.String()
}

func focusLine(channel Channel) string {
	return fmt.Sprintf("\nWrite ONLY the %s section now.", channel.Header())
}
