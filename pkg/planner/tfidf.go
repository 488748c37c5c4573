package planner

import (
	"math"
	"sort"
	"strings"
)

// FilteredContext is the reduced catalog view the LLM sees: at most
// top-N items per category, ranked by relevance to the intent keywords.
type FilteredContext struct {
	Nodes         []string
	Actions       []string
	Verifications []string
}

// tfidfRanker scores catalog items against query keywords with cosine
// similarity over log-scaled term frequencies and smoothed inverse
// document frequencies. Each catalog item is a tiny document of its
// underscore-separated parts.
type tfidfRanker struct {
	items []string
	docs  []map[string]float64 // tf-idf weight vectors per item
	idf   map[string]float64
}

func newTFIDFRanker(items []string) *tfidfRanker {
	r := &tfidfRanker{items: items, idf: make(map[string]float64)}

	tokenized := make([][]string, len(items))
	docFreq := make(map[string]int)
	for i, item := range items {
		toks := itemTerms(item)
		tokenized[i] = toks
		seen := map[string]bool{}
		for _, t := range toks {
			if !seen[t] {
				seen[t] = true
				docFreq[t]++
			}
		}
	}
	n := float64(len(items))
	for term, df := range docFreq {
		// Smoothed idf keeps terms present in every document from zeroing out.
		r.idf[term] = math.Log(1+n/float64(df)) + 1
	}

	r.docs = make([]map[string]float64, len(items))
	for i, toks := range tokenized {
		counts := make(map[string]float64)
		for _, t := range toks {
			counts[t]++
		}
		vec := make(map[string]float64, len(counts))
		for term, c := range counts {
			vec[term] = (1 + math.Log(c)) * r.idf[term]
		}
		r.docs[i] = vec
	}
	return r
}

// itemTerms splits a catalog item into searchable terms: the whole item
// plus each underscore/space part.
func itemTerms(item string) []string {
	lower := strings.ToLower(item)
	terms := []string{lower}
	for _, part := range strings.FieldsFunc(lower, func(r rune) bool {
		return r == '_' || r == ' ' || r == '-'
	}) {
		if part != lower {
			terms = append(terms, part)
		}
	}
	return terms
}

// rank returns the items with cosine similarity > 0 to the keywords,
// best first; equal scores keep catalog order. topN <= 0 means no cap.
func (r *tfidfRanker) rank(keywords []string, topN int) []string {
	if len(keywords) == 0 {
		return nil
	}
	query := make(map[string]float64)
	for _, kw := range keywords {
		for _, term := range itemTerms(kw) {
			idf, ok := r.idf[term]
			if !ok {
				continue
			}
			query[term] += idf
		}
	}
	if len(query) == 0 {
		return nil
	}
	queryNorm := norm(query)

	type scored struct {
		index int
		score float64
	}
	var hits []scored
	for i, doc := range r.docs {
		dot := 0.0
		for term, qw := range query {
			dot += qw * doc[term]
		}
		if dot == 0 {
			continue
		}
		hits = append(hits, scored{index: i, score: dot / (queryNorm * norm(doc))})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if topN > 0 && len(hits) > topN {
		hits = hits[:topN]
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = r.items[h.index]
	}
	return out
}

func norm(vec map[string]float64) float64 {
	sum := 0.0
	for _, w := range vec {
		sum += w * w
	}
	return math.Sqrt(sum)
}

// filterContext reduces the full catalog to the items relevant to the
// intent, capped per category. Categories without keywords fall back to a
// plain head slice so the LLM always has something to navigate with.
// Substituted node targets are force-included: a learned or corrected node
// must never be filtered away from its own plan.
func filterContext(pc *PlanContext, intent Intent, mustNodes []string, topNodes, topActions, topVerifications int) FilteredContext {
	fc := FilteredContext{
		Nodes:         rankOrHead(pc.Nodes, intent.Navigation, topNodes),
		Actions:       rankOrHead(pc.Actions, intent.Actions, topActions),
		Verifications: rankOrHead(pc.Verifications, intent.Verifications, topVerifications),
	}
	for _, node := range mustNodes {
		if !containsString(fc.Nodes, node) {
			fc.Nodes = append(fc.Nodes, node)
		}
	}
	return fc
}

func rankOrHead(items, keywords []string, topN int) []string {
	if len(keywords) > 0 {
		return newTFIDFRanker(items).rank(keywords, topN)
	}
	if topN > 0 && len(items) > topN {
		return append([]string(nil), items[:topN]...)
	}
	return append([]string(nil), items...)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
