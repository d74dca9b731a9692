package enrich

import (
	"math"
	"sort"
	"strings"

	"github.com/lysyi3m/bankwatch/app/news"
)

// Similarity is the TF-IDF cosine of two texts over word n-grams of length 1 to 3,
// with idf computed over the pair itself.
func Similarity(a, b string) float64 {
	ta := ngrams(news.NormalizeText(a), 3)
	tb := ngrams(news.NormalizeText(b), 3)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	// smoothed idf: ln((1+n)/(1+df)) + 1 with n = 2
	idf := func(term string) float64 {
		df := 0
		if ta[term] > 0 {
			df++
		}
		if tb[term] > 0 {
			df++
		}
		return math.Log(3.0/float64(1+df)) + 1
	}

	weigh := func(tf map[string]int) map[string]float64 {
		weights := make(map[string]float64, len(tf))
		var norm float64
		for term, count := range tf {
			w := float64(count) * idf(term)
			weights[term] = w
			norm += w * w
		}
		norm = math.Sqrt(norm)
		for term := range weights {
			weights[term] /= norm
		}
		return weights
	}

	wa, wb := weigh(ta), weigh(tb)
	var dot float64
	for term, w := range wa {
		dot += w * wb[term]
	}
	return dot
}

func ngrams(text string, maxN int) map[string]int {
	words := strings.Fields(text)
	counts := make(map[string]int)
	for n := 1; n <= maxN; n++ {
		for i := 0; i+n <= len(words); i++ {
			counts[strings.Join(words[i:i+n], " ")]++
		}
	}
	return counts
}

// Keywords returns up to n of the most frequent words longer than three letters,
// ties broken by first occurrence.
func Keywords(text string, n int) []string {
	words := strings.Fields(news.NormalizeText(text))
	counts := make(map[string]int)
	first := make(map[string]int)
	for i, w := range words {
		if len([]rune(w)) <= 3 {
			continue
		}
		if _, ok := first[w]; !ok {
			first[w] = i
		}
		counts[w]++
	}

	keywords := make([]string, 0, len(counts))
	for w := range counts {
		keywords = append(keywords, w)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if counts[keywords[i]] != counts[keywords[j]] {
			return counts[keywords[i]] > counts[keywords[j]]
		}
		return first[keywords[i]] < first[keywords[j]]
	})

	if len(keywords) > n {
		keywords = keywords[:n]
	}
	return keywords
}
