package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyRule(t *testing.T) {
	tests := []struct {
		name  string
		rule  Variation
		text  string
		draws []int
		want  string
	}{
		{"control", VariationControl, "신용대출 안내", nil, "신용대출 안내"},
		{"unknown rule", Variation("shouting"), "신용대출 안내", nil, "신용대출 안내"},
		{"emoji no words", VariationEmojiHeavy, "신용대출 안내", nil, "신용대출 안내 🎊"},
		{"emoji mapped words", VariationEmojiHeavy, "무료 배송 + 할인", nil, "🎁 무료 배송 + 🎉 할인 🎊"},
		{"emoji first occurrence only", VariationEmojiHeavy, "할인 또 할인", nil, "🎉 할인 또 할인 🎊"},
		{"emoji already present", VariationEmojiHeavy, "🎉 할인", nil, "🎉 할인 🎊"},
		{"urgent", VariationUrgent, "세일", []int{2}, "⚡ 24시간 한정! 세일"},
		{"social proof", VariationSocialProof, "세일", []int{3}, "✨ 베스트셀러 1위 세일"},
		{"benefit", VariationBenefitFocused, "세일", nil, "💰 최대 혜택! 세일"},
		{"personalized adds address", VariationPersonalized, "세일 안내", nil, "소중한 고객님, 세일 안내"},
		{"personalized keeps name placeholder", VariationPersonalized, "{{ name }}님 세일", nil, "{{ name }}님 세일"},
		{"personalized rewrites noun", VariationPersonalized, "{{ name }}님, 고객 전용", nil, "{{ name }}님, 소중한 고객 전용"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draws := tt.draws
			if draws == nil {
				draws = []int{0}
			}
			assert.Equal(t, tt.want, ApplyRule(tt.rule, tt.text, &seqSource{draws: draws}))
		})
	}
}

func TestNewRuleSelector(t *testing.T) {
	for _, s := range []SelectionStrategy{"", StrategyFirst, StrategyRoundRobin, StrategyRandom} {
		sel, err := NewRuleSelector(s)
		require.NoError(t, err, s)
		assert.NotNil(t, sel)
	}
	_, err := NewRuleSelector("weighted")
	assert.Error(t, err)
}

func TestRuleSelectors(t *testing.T) {
	rnd := &seqSource{draws: []int{4, 1}}

	assert.Equal(t, VariationEmojiHeavy, FirstRule{}.SelectRule(3, rnd))

	rr := RoundRobinRule{}
	assert.Equal(t, VariationEmojiHeavy, rr.SelectRule(0, rnd))
	assert.Equal(t, VariationPersonalized, rr.SelectRule(2, rnd))
	assert.Equal(t, VariationUrgent, rr.SelectRule(6, rnd))

	assert.Equal(t, VariationSocialProof, RandomRule{}.SelectRule(0, rnd))
	assert.Equal(t, VariationUrgent, RandomRule{}.SelectRule(0, rnd))
}

func TestVariantGenerator_Derive(t *testing.T) {
	control := Message{
		Category:  CategoryShopping,
		Text:      "오늘만 특가",
		Tags:      []string{"쇼핑", "할인"},
		Priority:  PriorityMedium,
		Channel:   ChannelSMS,
		Persona:   PersonaSmart,
		Variation: VariationControl,
		TestGroup: GroupControl,
		Timing:    Timing{BestTime: "12:00", BestDay: "friday", Frequency: "weekly"},
	}

	g := NewVariantGenerator(nil)
	got := g.Derive(control, 0, &seqSource{draws: []int{0}})

	assert.Equal(t, "오늘만 ⚡ 특가 🎊", got.Text)
	assert.Equal(t, VariationEmojiHeavy, got.Variation)
	assert.Equal(t, GroupTest, got.TestGroup)
	assert.Equal(t, control.Category, got.Category)
	assert.Equal(t, control.Channel, got.Channel)
	assert.Equal(t, control.Persona, got.Persona)
	assert.Equal(t, control.Timing, got.Timing)
	assert.Equal(t, control.Tags, got.Tags)

	got.Tags[0] = "changed"
	assert.Equal(t, "쇼핑", control.Tags[0], "derived tags must not alias the control")
	assert.Equal(t, GroupControl, control.TestGroup)
}

func TestNewRandomSource_Deterministic(t *testing.T) {
	a, b := NewRandomSource(42), NewRandomSource(42)
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.IntN(1000), b.IntN(1000))
	}
}
