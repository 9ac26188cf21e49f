// Package messaging turns a CDP targeting plan into persona-targeted marketing
// messages: tag extraction, persona classification, the template catalog,
// message composition and A/B variant generation.
package messaging

import (
	"encoding/json"
	"sort"
)

// Category is a message category in the template catalog.
type Category string

const (
	CategoryLoan       Category = "loan"
	CategoryBeauty     Category = "beauty"
	CategoryTravel     Category = "travel"
	CategoryShopping   Category = "shopping"
	CategoryInvestment Category = "investment"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryLoan, CategoryBeauty, CategoryTravel, CategoryShopping, CategoryInvestment:
		return true
	}
	return false
}

// Persona is a coarse customer archetype. The classifier picks one persona per
// analysis; catalog categories declare the personas they have templates for.
type Persona string

const (
	PersonaGeneral     Persona = "general"
	PersonaPremium     Persona = "premium"
	PersonaHighCredit  Persona = "high_credit"
	PersonaBudget      Persona = "budget"
	PersonaRefinance   Persona = "refinance"
	PersonaTrendy      Persona = "trendy"
	PersonaLuxury      Persona = "luxury"
	PersonaVIP         Persona = "vip"
	PersonaSmart       Persona = "smart"
	PersonaBeginner    Persona = "beginner"
	PersonaExperienced Persona = "experienced"
)

// Valid reports whether p is a known persona.
func (p Persona) Valid() bool {
	switch p {
	case PersonaGeneral, PersonaPremium, PersonaHighCredit, PersonaBudget,
		PersonaRefinance, PersonaTrendy, PersonaLuxury, PersonaVIP,
		PersonaSmart, PersonaBeginner, PersonaExperienced:
		return true
	}
	return false
}

// Channel is a delivery channel.
type Channel string

const (
	ChannelAppPush Channel = "app_push"
	ChannelSMS     Channel = "sms"
	ChannelEmail   Channel = "email"
	ChannelKakao   Channel = "kakao"
	ChannelWebPush Channel = "web_push"
)

// Channels returns every delivery channel.
func Channels() []Channel {
	return []Channel{ChannelAppPush, ChannelSMS, ChannelEmail, ChannelKakao, ChannelWebPush}
}

// Valid reports whether ch is a known channel.
func (ch Channel) Valid() bool {
	switch ch {
	case ChannelAppPush, ChannelSMS, ChannelEmail, ChannelKakao, ChannelWebPush:
		return true
	}
	return false
}

// Variation names the transformation that produced a message.
type Variation string

const (
	VariationControl        Variation = "control"
	VariationEmojiHeavy     Variation = "emoji_heavy"
	VariationUrgent         Variation = "urgent"
	VariationPersonalized   Variation = "personalized"
	VariationBenefitFocused Variation = "benefit_focused"
	VariationSocialProof    Variation = "social_proof"
)

// variantRules is the declared rule order. Selection strategies index into it.
var variantRules = [...]Variation{
	VariationEmojiHeavy,
	VariationUrgent,
	VariationPersonalized,
	VariationBenefitFocused,
	VariationSocialProof,
}

// VariantRules returns the A/B transformation rules in declared order.
func VariantRules() []Variation {
	out := make([]Variation, len(variantRules))
	copy(out, variantRules[:])
	return out
}

// RuleCount is the size of the variant rule set.
const RuleCount = len(variantRules)

// Valid reports whether v is control or one of the variant rules.
func (v Variation) Valid() bool {
	switch v {
	case VariationControl, VariationEmojiHeavy, VariationUrgent,
		VariationPersonalized, VariationBenefitFocused, VariationSocialProof:
		return true
	}
	return false
}

// TestGroup is an experiment arm.
type TestGroup string

const (
	GroupControl TestGroup = "A"
	GroupTest    TestGroup = "B"
)

// Priority ranks recommended columns and generated messages.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// RecommendedColumn is a CDP column suggested by the analyzer.
type RecommendedColumn struct {
	Column      string   `json:"column"`
	Description string   `json:"description"`
	Condition   string   `json:"condition"`
	Priority    Priority `json:"priority"`
	Reasoning   string   `json:"reasoning"`
}

// AnalysisResult is the targeting plan produced by the analyzer. Only
// TargetDescription, RecommendedColumns and BusinessInsights drive message
// generation; the remaining fields are carried through for callers.
type AnalysisResult struct {
	QueryAnalysis            string              `json:"query_analysis,omitempty"`
	TargetDescription        string              `json:"target_description"`
	RecommendedColumns       []RecommendedColumn `json:"recommended_columns"`
	SQLQuery                 string              `json:"sql_query,omitempty"`
	BusinessInsights         []string            `json:"business_insights"`
	EstimatedTargetSize      string              `json:"estimated_target_size,omitempty"`
	MarketingRecommendations []string            `json:"marketing_recommendations,omitempty"`
	TargetTags               []string            `json:"target_tags,omitempty"`
	CustomerTraits           []string            `json:"customer_traits,omitempty"`
}

// UserProfile personalizes rendered templates.
type UserProfile struct {
	Name   string `json:"name,omitempty"`
	Age    string `json:"age,omitempty"`
	Gender string `json:"gender,omitempty"`
}

// Timing is a suggested send window for a category.
type Timing struct {
	BestTime  string `json:"best_time" yaml:"best_time"`
	BestDay   string `json:"best_day" yaml:"best_day"`
	Frequency string `json:"frequency" yaml:"frequency"`
}

// Message is a generated marketing message. Messages are values; nothing
// mutates one after the composer emits it.
type Message struct {
	Category  Category  `json:"category"`
	Text      string    `json:"message"`
	Tags      []string  `json:"tags"`
	Priority  Priority  `json:"priority"`
	Channel   Channel   `json:"channel"`
	Persona   Persona   `json:"persona"`
	Variation Variation `json:"variation"`
	TestGroup TestGroup `json:"test_group"`
	Timing    Timing    `json:"timing"`
}

// StringSet is a set of tags. It marshals as a sorted JSON array.
type StringSet map[string]struct{}

// Add inserts s.
func (s StringSet) Add(v string) { s[v] = struct{}{} }

// Has reports whether v is in the set.
func (s StringSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Sorted returns the members in lexical order.
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (s StringSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *StringSet) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	set := make(StringSet, len(items))
	for _, v := range items {
		set.Add(v)
	}
	*s = set
	return nil
}

// TagSet holds tags matched with strong (primary) and weak (secondary) evidence.
type TagSet struct {
	Primary   StringSet `json:"primary"`
	Secondary StringSet `json:"secondary"`
}

// NewTagSet returns an empty TagSet.
func NewTagSet() TagSet {
	return TagSet{Primary: StringSet{}, Secondary: StringSet{}}
}

// Empty reports whether no tag matched at all.
func (t TagSet) Empty() bool {
	return len(t.Primary) == 0 && len(t.Secondary) == 0
}
