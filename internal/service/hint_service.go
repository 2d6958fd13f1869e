package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"eiq-engine/internal/domain"
	"eiq-engine/internal/llm"
)

const maxHints = 3

// HintWriter reescribe una pista para un usuario concreto.
type HintWriter interface {
	Rephrase(ctx context.Context, item domain.Item, hint domain.Hint, profile domain.BehavioralProfile) (string, error)
}

var genericLadder = map[domain.HintKind]string{
	domain.HintStrategic:  "Re-read the question and identify exactly what is being asked before computing anything.",
	domain.HintConceptual: "Recall the underlying principle or formula that applies to this type of problem.",
	domain.HintStepByStep: "Work through the problem one step at a time and check each intermediate result.",
}

var encouragements = []string{
	"You're putting in real effort. Learning happens through practice and persistence.",
	"Each attempt brings you closer. Keep thinking it through.",
	"Challenging problems help you grow. You have the skills to figure this out.",
	"Take a breath. You've solved similar problems before, trust what you know.",
}

var levelKinds = [...]domain.HintKind{domain.HintStrategic, domain.HintConceptual, domain.HintStepByStep}

// PersonalizedHints elige el nivel de detalle segun las senales de dificultad
// del usuario y arma hasta tres pistas a partir de la escalera del item.
func (s *BehaviorService) PersonalizedHints(ctx context.Context, userID, itemID string, hc domain.HintContext) ([]domain.Hint, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidBehaviorInput)
	}
	if hc.Attempts < 0 || hc.TimeSpent < 0 {
		return nil, fmt.Errorf("%w: negative attempts or time", ErrInvalidBehaviorInput)
	}
	item, ok := s.selector.Bank().Item(itemID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	profile, found, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	level := hintLevel(struggleScore(profile, found, item, hc))
	encourage := hc.Attempts >= 3
	budget := maxHints
	if encourage {
		budget--
	}
	first := level - budget + 1
	if first < 1 {
		first = 1
	}

	source := "ladder"
	if !found {
		source = "generic"
	}
	hints := make([]domain.Hint, 0, maxHints)
	for lvl := first; lvl <= level; lvl++ {
		hint := domain.Hint{
			Level:   lvl,
			Kind:    levelKinds[lvl-1],
			Content: ladderContent(item, lvl),
			Source:  source,
		}
		if found && s.writer != nil {
			text, err := s.writer.Rephrase(ctx, item, hint, profile)
			if err != nil {
				s.logger.Debug("hint rephrase failed, using ladder",
					zap.String("item_id", item.ID),
					zap.Int("level", lvl),
					zap.Error(err),
				)
			} else {
				hint.Content = text
				hint.Source = "llm"
			}
		}
		hints = append(hints, hint)
	}
	if encourage {
		hints = append(hints, domain.Hint{
			Level:   level,
			Kind:    domain.HintEncouragement,
			Content: encouragements[hc.Attempts%len(encouragements)],
			Source:  "ladder",
		})
	}
	s.noteHintRequest(strings.TrimSpace(userID), item.ID)
	s.metrics.RecordHint(level)
	return hints, nil
}

// struggleScore suma senales de dificultad: intentos repetidos, ritmo lento
// frente a la banda, baja correccion reciente y alta dependencia de pistas.
func struggleScore(p domain.BehavioralProfile, found bool, item domain.Item, hc domain.HintContext) int {
	score := 0
	if hc.Attempts >= 2 {
		score++
	}
	if hc.Attempts >= 3 {
		score++
	}
	if !found {
		return score
	}
	bs := p.Bands[domain.BandFor(item.IRT.Difficulty)]
	if bs.ResponseTime.Count >= 3 && hc.TimeSpent.Seconds() > 1.5*bs.ResponseTime.Mean {
		score++
	}
	if p.Responses >= 3 && p.RecentCorrectness < 0.5 {
		score++
	}
	if p.Responses >= 3 && p.HintRate > 0.5 {
		score++
	}
	return score
}

func hintLevel(struggle int) int {
	switch {
	case struggle <= 0:
		return 1
	case struggle <= 2:
		return 2
	default:
		return 3
	}
}

func ladderContent(item domain.Item, level int) string {
	if level-1 < len(item.Hints) && strings.TrimSpace(item.Hints[level-1]) != "" {
		return item.Hints[level-1]
	}
	return genericLadder[levelKinds[level-1]]
}

// LLMHintWriter usa el cliente LLM para adaptar el tono de una pista.
type LLMHintWriter struct {
	client llm.LLMClient
}

func NewLLMHintWriter(client llm.LLMClient) *LLMHintWriter {
	if client == nil {
		return nil
	}
	return &LLMHintWriter{client: client}
}

func (w *LLMHintWriter) Rephrase(ctx context.Context, item domain.Item, hint domain.Hint, profile domain.BehavioralProfile) (string, error) {
	if w == nil || w.client == nil {
		return "", errors.New("llm hint writer not configured")
	}
	out, err := w.client.Generate(ctx, buildHintPrompt(item, hint, profile))
	if err != nil {
		return "", fmt.Errorf("llm generate: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errors.New("llm returned an empty hint")
	}
	return out, nil
}

func buildHintPrompt(item domain.Item, hint domain.Hint, profile domain.BehavioralProfile) string {
	var b strings.Builder
	b.WriteString("You are a patient tutor. Rewrite the hint below for this student in at most two sentences.\n")
	b.WriteString("Never reveal the final answer.\n\n")
	fmt.Fprintf(&b, "Question: %s\n", item.Prompt())
	fmt.Fprintf(&b, "Hint level: %d (%s)\n", hint.Level, hint.Kind)
	fmt.Fprintf(&b, "Hint: %s\n", hint.Content)
	fmt.Fprintf(&b, "Student recent correctness: %.2f\n", profile.RecentCorrectness)
	if n := profile.Errors[domain.ErrorCareless]; n > 0 {
		fmt.Fprintf(&b, "Student often answers too quickly (%d careless errors).\n", n)
	}
	if n := profile.Errors[domain.ErrorConceptual]; n > 0 {
		fmt.Fprintf(&b, "Student has %d conceptual errors; emphasize the underlying idea.\n", n)
	}
	return b.String()
}
