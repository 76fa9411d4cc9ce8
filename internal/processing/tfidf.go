package processing

import (
	"errors"
	"math"
	"sort"
)

var errNoTerms = errors.New("processing: no terms remain after pruning")

// vectorizer builds L2-normalised TF-IDF rows with smoothed idf.
// minDF is a document count; maxDF is a proportion of documents.
type vectorizer struct {
	ngramMin    int
	ngramMax    int
	minDF       int
	maxDF       float64
	maxFeatures int // 0 keeps all terms
}

// sparseVec holds the non-zero entries of a row, idx ascending.
type sparseVec struct {
	idx []int
	val []float64
}

func (v sparseVec) dot(o sparseVec) float64 {
	var s float64
	i, j := 0, 0
	for i < len(v.idx) && j < len(o.idx) {
		switch {
		case v.idx[i] == o.idx[j]:
			s += v.val[i] * o.val[j]
			i++
			j++
		case v.idx[i] < o.idx[j]:
			i++
		default:
			j++
		}
	}
	return s
}

type tfidfMatrix struct {
	terms []string // sorted vocabulary
	rows  []sparseVec
}

func (v vectorizer) fitTransform(docs []string) (*tfidfMatrix, error) {
	n := len(docs)
	counts := make([]map[string]int, n)
	df := make(map[string]int)
	tf := make(map[string]int)
	for i, doc := range docs {
		c := make(map[string]int)
		for _, g := range ngrams(tokenize(doc), v.ngramMin, v.ngramMax) {
			c[g]++
			tf[g]++
		}
		for g := range c {
			df[g]++
		}
		counts[i] = c
	}

	maxCount := int(v.maxDF * float64(n))
	if v.maxDF <= 0 || v.maxDF >= 1 {
		maxCount = n
	}
	var kept []string
	for term, d := range df {
		if d >= v.minDF && d <= maxCount {
			kept = append(kept, term)
		}
	}
	if len(kept) == 0 {
		return nil, errNoTerms
	}
	if v.maxFeatures > 0 && len(kept) > v.maxFeatures {
		sort.Slice(kept, func(a, b int) bool {
			if tf[kept[a]] != tf[kept[b]] {
				return tf[kept[a]] > tf[kept[b]]
			}
			return kept[a] < kept[b]
		})
		kept = kept[:v.maxFeatures]
	}
	sort.Strings(kept)

	index := make(map[string]int, len(kept))
	idf := make([]float64, len(kept))
	for i, term := range kept {
		index[term] = i
		idf[i] = math.Log(float64(1+n)/float64(1+df[term])) + 1
	}

	m := &tfidfMatrix{terms: kept, rows: make([]sparseVec, n)}
	for i, c := range counts {
		var row sparseVec
		for term := range c {
			if j, ok := index[term]; ok {
				row.idx = append(row.idx, j)
			}
		}
		sort.Ints(row.idx)
		row.val = make([]float64, len(row.idx))
		var norm float64
		for k, j := range row.idx {
			w := float64(c[kept[j]]) * idf[j]
			row.val[k] = w
			norm += w * w
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for k := range row.val {
				row.val[k] /= norm
			}
		}
		m.rows[i] = row
	}
	return m, nil
}
