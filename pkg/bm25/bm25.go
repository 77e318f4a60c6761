// Package bm25 produces the sparse vector representation stored alongside
// dense embeddings. Chunks are tokenised on Unicode word boundaries,
// lowercased and stop-word filtered; term weights follow the BM25 term
// saturation formula with hashed term identifiers, so encoding is
// deterministic across batches and processes without a fitted corpus.
package bm25

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// Default BM25 parameters.
const (
	DefaultK1    = 1.5
	DefaultB     = 0.75
	DefaultAvgDL = 64
)

// SparseVector maps hashed term ids to weights, the wire format expected
// by the sparse field.
type SparseVector map[uint32]float32

// Encoder turns text into sparse vectors. The zero value is not usable;
// construct with NewEncoder.
type Encoder struct {
	k1    float64
	b     float64
	avgDL float64
}

// NewEncoder builds an encoder with the default BM25 parameters.
func NewEncoder() *Encoder {
	return &Encoder{k1: DefaultK1, b: DefaultB, avgDL: DefaultAvgDL}
}

// Tokenize lowercases text and splits it on Unicode word boundaries.
// Stop words are dropped unless includeStopWords is set.
func Tokenize(text string, includeStopWords bool) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if includeStopWords {
		return fields
	}
	tokens := fields[:0]
	for _, f := range fields {
		if !stopWords[f] {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// TermID hashes a token to its sparse dimension.
func TermID(token string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(token))
	return h.Sum32()
}

// EncodeDocument produces the stored sparse vector for a chunk. Stop words
// are always indexed on the document side; filtering happens at query time.
func (e *Encoder) EncodeDocument(text string) SparseVector {
	tokens := Tokenize(text, true)
	if len(tokens) == 0 {
		return SparseVector{}
	}
	tf := make(map[uint32]int, len(tokens))
	for _, tok := range tokens {
		tf[TermID(tok)]++
	}
	dl := float64(len(tokens))
	norm := e.k1 * (1 - e.b + e.b*dl/e.avgDL)

	vec := make(SparseVector, len(tf))
	for id, count := range tf {
		f := float64(count)
		vec[id] = float32(f * (e.k1 + 1) / (f + norm))
	}
	return vec
}

// EncodeQuery produces the query-side sparse vector for a token list.
// Query terms carry unit weight; duplicates collapse.
func (e *Encoder) EncodeQuery(tokens []string) SparseVector {
	vec := make(SparseVector, len(tokens))
	for _, tok := range tokens {
		vec[TermID(tok)] = 1
	}
	return vec
}
