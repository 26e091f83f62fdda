package categories

import (
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
	"github.com/cloudflare/ahocorasick"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Source tells how a suggestion was produced
type Source string

const (
	SourceKeyword Source = "keyword"
	SourceFuzzy   Source = "fuzzy"
)

// Rule maps a keyword found anywhere in a description to a category.
// User rules should carry a higher priority than the built-in ones.
type Rule struct {
	Keyword    string `json:"keyword"`
	CategoryID string `json:"category_id"`
	Priority   int    `json:"priority"`
}

// Suggestion is a proposed category for a description
type Suggestion struct {
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	Source     Source   `json:"source"`
	Matched    string   `json:"matched"`
}

// DefaultRules is the built-in keyword table
var DefaultRules = []Rule{
	{Keyword: "supermercado", CategoryID: "alimentacao"},
	{Keyword: "mercado", CategoryID: "alimentacao"},
	{Keyword: "restaurante", CategoryID: "alimentacao"},
	{Keyword: "padaria", CategoryID: "alimentacao"},
	{Keyword: "ifood", CategoryID: "alimentacao"},
	{Keyword: "lanche", CategoryID: "alimentacao"},
	{Keyword: "pizza", CategoryID: "alimentacao"},
	{Keyword: "almoco", CategoryID: "alimentacao"},
	{Keyword: "jantar", CategoryID: "alimentacao"},
	{Keyword: "uber", CategoryID: "transporte"},
	{Keyword: "taxi", CategoryID: "transporte"},
	{Keyword: "gasolina", CategoryID: "transporte"},
	{Keyword: "combustivel", CategoryID: "transporte"},
	{Keyword: "onibus", CategoryID: "transporte"},
	{Keyword: "metro", CategoryID: "transporte"},
	{Keyword: "estacionamento", CategoryID: "transporte"},
	{Keyword: "aluguel", CategoryID: "moradia"},
	{Keyword: "condominio", CategoryID: "moradia"},
	{Keyword: "conta de luz", CategoryID: "moradia"},
	{Keyword: "energia", CategoryID: "moradia"},
	{Keyword: "conta de agua", CategoryID: "moradia"},
	{Keyword: "internet", CategoryID: "moradia"},
	{Keyword: "farmacia", CategoryID: "saude"},
	{Keyword: "medico", CategoryID: "saude"},
	{Keyword: "hospital", CategoryID: "saude"},
	{Keyword: "dentista", CategoryID: "saude"},
	{Keyword: "plano de saude", CategoryID: "saude"},
	{Keyword: "escola", CategoryID: "educacao"},
	{Keyword: "faculdade", CategoryID: "educacao"},
	{Keyword: "curso", CategoryID: "educacao"},
	{Keyword: "livro", CategoryID: "educacao"},
	{Keyword: "cinema", CategoryID: "lazer"},
	{Keyword: "netflix", CategoryID: "lazer"},
	{Keyword: "spotify", CategoryID: "lazer"},
	{Keyword: "viagem", CategoryID: "lazer"},
	{Keyword: "roupa", CategoryID: "roupas"},
	{Keyword: "sapato", CategoryID: "roupas"},
	{Keyword: "tenis", CategoryID: "roupas"},
	{Keyword: "celular", CategoryID: "tecnologia"},
	{Keyword: "notebook", CategoryID: "tecnologia"},
	{Keyword: "computador", CategoryID: "tecnologia"},
	{Keyword: "software", CategoryID: "tecnologia"},
	{Keyword: "conserto", CategoryID: "servicos"},
	{Keyword: "manutencao", CategoryID: "servicos"},
	{Keyword: "cabeleireiro", CategoryID: "servicos"},
	{Keyword: "lavanderia", CategoryID: "servicos"},
	{Keyword: "salario", CategoryID: "salario"},
	{Keyword: "holerite", CategoryID: "salario"},
	{Keyword: "freelance", CategoryID: "freelance"},
	{Keyword: "freela", CategoryID: "freelance"},
	{Keyword: "dividendo", CategoryID: "investimentos"},
	{Keyword: "rendimento", CategoryID: "investimentos"},
	{Keyword: "venda", CategoryID: "vendas"},
}

type keywordMatch struct {
	keyword  string
	category Category
	priority int
}

// Suggester proposes categories. Keywords are matched in a single pass with an
// Aho-Corasick automaton; descriptions without a keyword fall back to fuzzy
// matching against category names.
type Suggester struct {
	mu         sync.RWMutex
	matcher    *ahocorasick.Matcher
	keywords   [][]keywordMatch
	categories []Category
}

// NewSuggester builds a suggester over the given categories and rules. Rules
// pointing at unknown categories are ignored.
func NewSuggester(cats []Category, rules []Rule) *Suggester {
	s := &Suggester{}
	s.Build(cats, rules)
	return s
}

// Build rebuilds the automaton, for instance after custom categories change
func (s *Suggester) Build(cats []Category, rules []Rule) {
	byID := make(map[string]Category, len(cats))
	for _, c := range cats {
		byID[c.ID] = c
	}

	patternIndex := make(map[string]int)
	patterns := make([][]byte, 0, len(rules))
	keywords := make([][]keywordMatch, 0, len(rules))
	for _, r := range rules {
		cat, ok := byID[r.CategoryID]
		kw := fold(strings.TrimSpace(r.Keyword))
		if !ok || kw == "" {
			continue
		}
		m := keywordMatch{keyword: kw, category: cat, priority: r.Priority}
		if idx, exists := patternIndex[kw]; exists {
			keywords[idx] = append(keywords[idx], m)
			continue
		}
		patternIndex[kw] = len(patterns)
		patterns = append(patterns, []byte(kw))
		keywords = append(keywords, []keywordMatch{m})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = append([]Category{}, cats...)
	s.keywords = keywords
	s.matcher = nil
	if len(patterns) > 0 {
		s.matcher = ahocorasick.NewMatcher(patterns)
	}
}

// Suggest returns the best category for description restricted to typ (empty
// means any type), or false when nothing matches well enough.
func (s *Suggester) Suggest(description, typ string) (Suggestion, bool) {
	all := s.SuggestAll(description, typ, 1)
	if len(all) == 0 {
		return Suggestion{}, false
	}
	return all[0], true
}

// SuggestAll returns up to limit suggestions, keyword matches first
func (s *Suggester) SuggestAll(description, typ string, limit int) []Suggestion {
	s.mu.RLock()
	defer s.mu.RUnlock()

	text := fold(description)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	out := s.keywordSuggestions(text, typ)
	if len(out) == 0 {
		out = s.fuzzySuggestions(text, typ)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Suggester) keywordSuggestions(text, typ string) []Suggestion {
	if s.matcher == nil {
		return nil
	}

	var matches []keywordMatch
	for _, idx := range s.matcher.Match([]byte(text)) {
		if idx < 0 || idx >= len(s.keywords) {
			continue
		}
		for _, m := range s.keywords[idx] {
			if typ == "" || m.category.Type == typ {
				matches = append(matches, m)
			}
		}
	}

	// Higher priority first, then the longest keyword so "supermercado" beats "mercado"
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].priority != matches[j].priority {
			return matches[i].priority > matches[j].priority
		}
		return len(matches[i].keyword) > len(matches[j].keyword)
	})

	seen := make(map[string]bool)
	out := make([]Suggestion, 0, len(matches))
	for _, m := range matches {
		if seen[m.category.ID] {
			continue
		}
		seen[m.category.ID] = true
		out = append(out, Suggestion{
			Category:   m.category,
			Confidence: 0.9,
			Source:     SourceKeyword,
			Matched:    m.keyword,
		})
	}
	return out
}

const fuzzyThreshold = 70

func (s *Suggester) fuzzySuggestions(text, typ string) []Suggestion {
	type scored struct {
		cat   Category
		score int
		word  string
	}

	var results []scored
	for _, c := range s.categories {
		if typ != "" && c.Type != typ {
			continue
		}
		name := fold(c.Name)
		best, bestWord := fuzzyScore(text, name), text
		for _, w := range strings.Fields(text) {
			if score := fuzzyScore(w, name); score > best {
				best, bestWord = score, w
			}
		}
		if best >= fuzzyThreshold {
			results = append(results, scored{cat: c, score: best, word: bestWord})
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })

	out := make([]Suggestion, 0, len(results))
	for _, r := range results {
		out = append(out, Suggestion{
			Category:   r.cat,
			Confidence: float64(r.score) / 100 * 0.8,
			Source:     SourceFuzzy,
			Matched:    r.word,
		})
	}
	return out
}

// Resolve maps a free-text category name, such as one found in legacy data,
// to a known category by id, exact name or close spelling.
func (s *Suggester) Resolve(name string) (Category, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	target := fold(strings.TrimSpace(name))
	if target == "" {
		return Category{}, false
	}

	var (
		best      Category
		bestScore = fuzzyThreshold - 1
	)
	for _, c := range s.categories {
		if fold(c.ID) == target || fold(c.Name) == target {
			return c, true
		}
		if score := fuzzyScore(target, fold(c.Name)); score > bestScore {
			best, bestScore = c, score
		}
	}
	return best, bestScore >= fuzzyThreshold
}

// fuzzyScore rates the similarity of two folded strings from 0 to 100
func fuzzyScore(s1, s2 string) int {
	if s1 == s2 {
		return 100
	}
	if s1 == "" || s2 == "" {
		return 0
	}

	r1, r2 := []rune(s1), []rune(s2)
	if min(len(r1), len(r2)) >= 4 {
		if strings.Contains(s1, s2) {
			return 75 + 25*len(s2)/len(s1)
		}
		if strings.Contains(s2, s1) {
			return 75 + 25*len(s1)/len(s2)
		}
	}

	maxLen := max(len(r1), len(r2))
	distance := levenshtein.ComputeDistance(s1, s2)
	levScore := 100 * (maxLen - distance) / maxLen

	subseqScore := 0
	if rank := fuzzy.RankMatchNormalizedFold(s1, s2); rank >= 0 && rank < len(r2) {
		subseqScore = 60 - rank*40/len(r2)
	}
	return max(levScore, subseqScore)
}

var accentFolder = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a", "ä", "a",
	"é", "e", "ê", "e", "è", "e",
	"í", "i", "î", "i",
	"ó", "o", "ô", "o", "õ", "o", "ö", "o",
	"ú", "u", "ü", "u",
	"ç", "c",
)

// fold lowercases and strips Portuguese diacritics
func fold(s string) string {
	return accentFolder.Replace(strings.ToLower(s))
}
