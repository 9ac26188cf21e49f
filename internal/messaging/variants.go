package messaging

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// RandomSource supplies uniform integers in [0, n). *rand.Rand from
// math/rand/v2 satisfies it.
type RandomSource interface {
	IntN(n int) int
}

// NewRandomSource returns a deterministic source for seed. Callers that do
// not need reproducibility seed it from the clock.
func NewRandomSource(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// RuleSelector chooses which variant rule derives the test message from the
// control message at position index (0-based, per composition).
type RuleSelector interface {
	SelectRule(index int, rnd RandomSource) Variation
}

// SelectionStrategy names a RuleSelector.
type SelectionStrategy string

const (
	StrategyFirst      SelectionStrategy = "first"
	StrategyRoundRobin SelectionStrategy = "round_robin"
	StrategyRandom     SelectionStrategy = "random"
)

// FirstRule always picks the first declared rule.
type FirstRule struct{}

func (FirstRule) SelectRule(int, RandomSource) Variation { return variantRules[0] }

// RoundRobinRule cycles through the rules by control index.
type RoundRobinRule struct{}

func (RoundRobinRule) SelectRule(index int, _ RandomSource) Variation {
	if index < 0 {
		index = -index
	}
	return variantRules[index%len(variantRules)]
}

// RandomRule picks a rule uniformly at random.
type RandomRule struct{}

func (RandomRule) SelectRule(_ int, rnd RandomSource) Variation {
	return variantRules[rnd.IntN(len(variantRules))]
}

// NewRuleSelector returns the selector for a strategy name. An empty name
// selects StrategyFirst.
func NewRuleSelector(strategy SelectionStrategy) (RuleSelector, error) {
	switch strategy {
	case StrategyFirst, "":
		return FirstRule{}, nil
	case StrategyRoundRobin:
		return RoundRobinRule{}, nil
	case StrategyRandom:
		return RandomRule{}, nil
	}
	return nil, fmt.Errorf("unknown variant selection strategy %q", strategy)
}

// emojiWords is ordered; each word is prefixed at most once.
var emojiWords = []struct {
	word  string
	emoji string
}{
	{"할인", "🎉"},
	{"특가", "⚡"},
	{"무료", "🎁"},
	{"혜택", "💝"},
	{"프리미엄", "👑"},
}

const celebrationEmoji = "🎊"

var urgencyPhrases = []string{
	"⏰ 오늘 마감!",
	"🔥 한정 수량!",
	"⚡ 24시간 한정!",
	"🚨 마지막 기회!",
}

var socialProofPhrases = []string{
	"🏆 10만명이 선택한",
	"⭐ 만족도 98%",
	"👥 지금 1,000명이 보는 중!",
	"✨ 베스트셀러 1위",
}

const (
	directAddress   = "고객님, "
	customerNoun    = "고객"
	valuedCustomer  = "소중한 고객"
	benefitPrefix   = "💰 최대 혜택! "
	namePlaceholder = "name"
)

// VariantGenerator derives one test-group message from each control message.
type VariantGenerator struct {
	selector RuleSelector
}

// NewVariantGenerator creates a generator. A nil selector uses FirstRule.
func NewVariantGenerator(selector RuleSelector) *VariantGenerator {
	if selector == nil {
		selector = FirstRule{}
	}
	return &VariantGenerator{selector: selector}
}

// Derive returns the B-group message for control. Everything but the text,
// variation and test group is copied from control.
func (g *VariantGenerator) Derive(control Message, index int, rnd RandomSource) Message {
	rule := g.selector.SelectRule(index, rnd)
	derived := control
	derived.Tags = append([]string(nil), control.Tags...)
	derived.Text = ApplyRule(rule, control.Text, rnd)
	derived.Variation = rule
	derived.TestGroup = GroupTest
	return derived
}

// ApplyRule transforms text with one variant rule. Control leaves the text
// unchanged, as does any value outside the closed Variation set.
func ApplyRule(rule Variation, text string, rnd RandomSource) string {
	switch rule {
	case VariationEmojiHeavy:
		return addEmojis(text)
	case VariationUrgent:
		return pick(urgencyPhrases, rnd) + " " + text
	case VariationPersonalized:
		return personalize(text)
	case VariationBenefitFocused:
		return benefitPrefix + text
	case VariationSocialProof:
		return pick(socialProofPhrases, rnd) + " " + text
	case VariationControl:
		return text
	}
	return text
}

func pick(phrases []string, rnd RandomSource) string {
	return phrases[rnd.IntN(len(phrases))]
}

func addEmojis(text string) string {
	for _, ew := range emojiWords {
		if !strings.Contains(text, ew.word) || strings.Contains(text, ew.emoji) {
			continue
		}
		text = prefixFirstUnprefixed(text, ew.word, ew.emoji+" ")
	}
	return text + " " + celebrationEmoji
}

// prefixFirstUnprefixed inserts prefix before the first occurrence of word
// that is not already preceded by it.
func prefixFirstUnprefixed(text, word, prefix string) string {
	offset := 0
	for {
		i := strings.Index(text[offset:], word)
		if i < 0 {
			return text
		}
		at := offset + i
		if !strings.HasSuffix(text[:at], prefix) {
			return text[:at] + prefix + text[at:]
		}
		offset = at + len(word)
	}
}

func personalize(text string) string {
	if !HasPlaceholder(text, namePlaceholder) {
		text = directAddress + text
	}
	return strings.ReplaceAll(text, customerNoun, valuedCustomer)
}
