// Package keyword implements a rule-based classifier: learned merchant mappings first, then YAML keyword rules.
package keyword

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/MrJamesThe3rd/docket/internal/classification"
	"github.com/MrJamesThe3rd/docket/internal/document"
	"github.com/MrJamesThe3rd/docket/internal/matching"
)

const (
	LearnedConfidence  = 0.95
	MerchantConfidence = 0.9
	ItemConfidence     = 0.75
)

//go:embed rules.yaml
var defaultRules []byte

type Rule struct {
	Name        string          `yaml:"name"`
	Subcategory string          `yaml:"subcategory"`
	Kinds       []document.Kind `yaml:"kinds"`
	Merchants   []string        `yaml:"merchants"`
	Items       []string        `yaml:"items"`
}

type Fallback struct {
	Category    string  `yaml:"category"`
	Subcategory string  `yaml:"subcategory"`
	Confidence  float64 `yaml:"confidence"`
}

type Rules struct {
	Categories []Rule                     `yaml:"categories"`
	Fallbacks  map[document.Kind]Fallback `yaml:"fallbacks"`
}

// LoadRules reads rules from path, or the built-in rules when path is empty.
func LoadRules(path string) (Rules, error) {
	data := defaultRules

	if path != "" {
		var err error

		data, err = os.ReadFile(path)
		if err != nil {
			return Rules{}, fmt.Errorf("read rules file: %w", err)
		}
	}

	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("parse rules: %w", err)
	}

	for i, r := range rules.Categories {
		if r.Name == "" {
			return Rules{}, fmt.Errorf("rule %d has no name", i)
		}
	}

	return rules, nil
}

// Suggester looks up a category learned from earlier reviews.
type Suggester interface {
	Suggest(ctx context.Context, ownerID uuid.UUID, merchant string) (*matching.Mapping, error)
}

type Classifier struct {
	rules   Rules
	learned Suggester
}

// New builds a classifier. learned may be nil.
func New(rules Rules, learned Suggester) *Classifier {
	return &Classifier{rules: rules, learned: learned}
}

var _ classification.Classifier = (*Classifier)(nil)

func (c *Classifier) Classify(ctx context.Context, in classification.Input) (*document.Classification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if c.learned != nil && strings.TrimSpace(in.Merchant) != "" {
		m, err := c.learned.Suggest(ctx, in.OwnerID, in.Merchant)
		if err != nil {
			slog.Warn("learned category lookup failed", "owner_id", in.OwnerID, "error", err)
		} else if m != nil {
			return &document.Classification{
				Category:    m.Category,
				Subcategory: m.Subcategory,
				Confidence:  LearnedConfidence,
			}, nil
		}
	}

	merchant := fold(in.Merchant)

	for _, r := range c.rules.Categories {
		if !r.appliesTo(in.Kind) {
			continue
		}

		for _, kw := range r.Merchants {
			if containsPhrase(merchant, fold(kw)) {
				return r.classification(MerchantConfidence), nil
			}
		}
	}

	if best := c.voteOnItems(in); best != nil {
		return best.classification(ItemConfidence), nil
	}

	fb, ok := c.rules.Fallbacks[in.Kind]
	if !ok {
		return &document.Classification{Category: "uncategorized"}, nil
	}

	return &document.Classification{
		Category:    fb.Category,
		Subcategory: fb.Subcategory,
		Confidence:  fb.Confidence,
	}, nil
}

// voteOnItems picks the rule matching the most item names. Ties go to the rule listed first.
func (c *Classifier) voteOnItems(in classification.Input) *Rule {
	if len(in.Items) == 0 {
		return nil
	}

	items := make([]string, len(in.Items))
	for i, it := range in.Items {
		items[i] = fold(it)
	}

	var (
		best      *Rule
		bestVotes int
	)

	for i := range c.rules.Categories {
		r := &c.rules.Categories[i]
		if !r.appliesTo(in.Kind) {
			continue
		}

		votes := 0

		for _, item := range items {
			for _, kw := range r.Items {
				if containsPhrase(item, fold(kw)) {
					votes++
					break
				}
			}
		}

		if votes > bestVotes {
			best, bestVotes = r, votes
		}
	}

	return best
}

func (r *Rule) appliesTo(k document.Kind) bool {
	if len(r.Kinds) == 0 {
		return true
	}

	for _, kind := range r.Kinds {
		if kind == k {
			return true
		}
	}

	return false
}

func (r *Rule) classification(confidence float64) *document.Classification {
	return &document.Classification{
		Category:    r.Name,
		Subcategory: r.Subcategory,
		Confidence:  confidence,
	}
}

// fold lowercases, strips accents and turns punctuation into single spaces.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}

	words := strings.FieldsFunc(strings.ToLower(out), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	return strings.Join(words, " ")
}

// containsPhrase matches whole words only, so "bp" does not hit "bpi".
func containsPhrase(text, phrase string) bool {
	if phrase == "" {
		return false
	}

	return strings.Contains(" "+text+" ", " "+phrase+" ")
}
