// Package rules classifies message bodies against the moderation settings.
package rules

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	goahocorasick "github.com/anknown/ahocorasick"

	"github.com/shawnbeckett/sms-led-display/internal/moderation_service/domain"
)

const (
	ReasonTooLong       = "too long"
	ReasonBannedContent = "banned content"
)

// Decision is the verdict for one body.
type Decision struct {
	Kind    domain.DecisionKind
	Reason  string
	Matched []string
}

func Allow() Decision { return Decision{Kind: domain.DecisionAllow} }

func (d Decision) IsReject() bool { return d.Kind == domain.DecisionReject }

// Advisory converts the decision into the metadata stored on a message.
func (d Decision) Advisory(body string) *domain.Advisory {
	a := &domain.Advisory{
		Decision:     d.Kind,
		Reason:       d.Reason,
		MatchedTerms: slices.Clone(d.Matched),
	}
	if len(d.Matched) > 0 {
		a.MaskedBody = Mask(body, d.Matched, '*')
	}
	return a
}

// matcher is an Aho-Corasick automaton over folded words. A nil machine matches nothing.
type matcher struct {
	machine *goahocorasick.Machine
}

func compile(words []string) (*matcher, error) {
	seen := make(map[string]struct{}, len(words))
	patterns := make([][]rune, 0, len(words))
	for _, w := range words {
		p := foldWord(strings.TrimSpace(w))
		if len(p) == 0 {
			continue
		}
		if _, dup := seen[string(p)]; dup {
			continue
		}
		seen[string(p)] = struct{}{}
		patterns = append(patterns, p)
	}
	if len(patterns) == 0 {
		return &matcher{}, nil
	}
	slices.SortFunc(patterns, func(a, b []rune) int { return strings.Compare(string(a), string(b)) })

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, fmt.Errorf("building word matcher: %w", err)
	}
	return &matcher{machine: m}, nil
}

type span struct {
	start, end int // original rune indices, end exclusive
	word       string
}

func (m *matcher) find(text textMapping) []span {
	if m == nil || m.machine == nil || len(text.folded) == 0 {
		return nil
	}
	terms := m.machine.MultiPatternSearch(text.folded, false)
	spans := make([]span, 0, len(terms))
	for _, term := range terms {
		start, end := term.Pos, term.Pos+len(term.Word)
		if start < 0 || end > len(text.origIdx) || start >= end {
			continue
		}
		spans = append(spans, span{
			start: text.origIdx[start],
			end:   text.origIdx[end-1] + 1,
			word:  string(term.Word),
		})
	}
	return spans
}

func matchedWords(spans []span) []string {
	words := make([]string, 0, len(spans))
	for _, s := range spans {
		words = append(words, s.word)
	}
	slices.Sort(words)
	return slices.Compact(words)
}

// Engine evaluates bodies and caches the compiled word lists between calls.
// It is safe for concurrent use.
type Engine struct {
	mu      sync.Mutex
	hardKey string
	hard    *matcher
	softKey string
	soft    *matcher
}

func NewEngine() *Engine {
	return &Engine{}
}

func (e *Engine) matchers(s *domain.Settings) (hard, soft *matcher, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if key := strings.Join(s.HardBannedWords, "\x00"); e.hard == nil || key != e.hardKey {
		m, err := compile(s.HardBannedWords)
		if err != nil {
			return nil, nil, err
		}
		e.hard, e.hardKey = m, key
	}
	if key := strings.Join(s.SoftBannedWords, "\x00"); e.soft == nil || key != e.softKey {
		m, err := compile(s.SoftBannedWords)
		if err != nil {
			return nil, nil, err
		}
		e.soft, e.softKey = m, key
	}
	return e.hard, e.soft, nil
}

// Evaluate applies the rules in order, first match wins:
// length over the limit, a hard-banned word, profanity mode OFF, a soft-banned word
// (reject under BLOCK, flag under FLAG), otherwise allow.
func (e *Engine) Evaluate(body string, s *domain.Settings) (Decision, error) {
	if s.MaxMessageLength > 0 && utf8.RuneCountInString(body) > s.MaxMessageLength {
		return Decision{Kind: domain.DecisionReject, Reason: ReasonTooLong}, nil
	}

	hard, soft, err := e.matchers(s)
	if err != nil {
		return Decision{}, err
	}
	text := fold(body)

	if spans := hard.find(text); len(spans) > 0 {
		return Decision{Kind: domain.DecisionReject, Reason: ReasonBannedContent, Matched: matchedWords(spans)}, nil
	}
	if s.ProfanityMode == domain.ProfanityOff {
		return Allow(), nil
	}
	if spans := soft.find(text); len(spans) > 0 {
		d := Decision{Reason: ReasonBannedContent, Matched: matchedWords(spans)}
		if s.ProfanityMode == domain.ProfanityBlock {
			d.Kind = domain.DecisionReject
		} else {
			d.Kind = domain.DecisionFlag
		}
		return d, nil
	}
	return Allow(), nil
}

// Evaluate is Engine.Evaluate without caching.
func Evaluate(body string, s *domain.Settings) (Decision, error) {
	return NewEngine().Evaluate(body, s)
}

// Mask replaces every occurrence of words in body with maskChar, keeping spacing and the
// characters around each match.
func Mask(body string, words []string, maskChar rune) string {
	m, err := compile(words)
	if err != nil {
		return body
	}
	spans := m.find(fold(body))
	if len(spans) == 0 {
		return body
	}
	runes := []rune(body)
	for _, s := range spans {
		for i := s.start; i < s.end; i++ {
			runes[i] = maskChar
		}
	}
	return string(runes)
}
