package processing

import (
	"math"
	"sort"
	"time"

	"github.com/starford/newsletter-scanner/internal/models"
)

// Weights are the trend score factor weights.
type Weights struct {
	Frequency       float64
	Recency         float64
	SourceDiversity float64
	Engagement      float64
}

// Scorer computes trend scores from mention frequency, recency, source
// diversity and engagement.
type Scorer struct {
	weights    Weights
	decayHours float64
	now        func() time.Time
}

// NewScorer returns a Scorer. decayHours below 1 is treated as 1.
func NewScorer(w Weights, decayHours float64) *Scorer {
	return &Scorer{weights: w, decayHours: max(decayHours, 1), now: time.Now}
}

// WithClock overrides the reference time used for recency.
func (s *Scorer) WithClock(now func() time.Time) *Scorer {
	s.now = now
	return s
}

// Score fills the score fields of t from the items it was extracted from.
func (s *Scorer) Score(t *models.Topic, items []models.Item) {
	allSources := make(map[string]struct{})
	for _, it := range items {
		allSources[it.Source] = struct{}{}
	}

	sources := make(map[string]struct{})
	var latest *time.Time
	var engagement int
	for _, idx := range t.SourceItems {
		if idx < 0 || idx >= len(items) {
			continue
		}
		it := items[idx]
		sources[it.Source] = struct{}{}
		if it.Published != nil && (latest == nil || it.Published.After(*latest)) {
			p := *it.Published
			latest = &p
		}
		if it.Score > 0 {
			engagement += it.Score
		}
	}

	mentions := len(t.SourceItems)
	freq := min(float64(mentions)/float64(max(len(items), 1)), 1)

	var recency float64
	if latest != nil {
		age := s.now().Sub(*latest).Hours()
		recency = math.Exp(-age / s.decayHours)
	}

	diversity := float64(len(sources)) / float64(max(len(allSources), 1))
	eng := min(math.Log1p(float64(engagement))/10, 1)

	t.FrequencyScore = round4(freq)
	t.RecencyScore = round4(recency)
	t.SourceDiversityScore = round4(diversity)
	t.EngagementScore = round4(eng)
	t.TrendScore = round4(s.weights.Frequency*freq +
		s.weights.Recency*recency +
		s.weights.SourceDiversity*diversity +
		s.weights.Engagement*eng)
	t.MentionCount = mentions
	t.Sources = sortedKeys(sources)
	t.LatestDate = latest
}

// ScoreAll scores every topic and sorts them by trend score descending.
func (s *Scorer) ScoreAll(topics []models.Topic, items []models.Item) {
	for i := range topics {
		s.Score(&topics[i], items)
	}
	sort.SliceStable(topics, func(i, j int) bool {
		return topics[i].TrendScore > topics[j].TrendScore
	})
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
