package domain

import (
	"fmt"
	"strings"
)

// RoleAll is the wildcard role: records carrying it are visible to every caller.
const RoleAll = "all"

// ChunkRecord is the atomic indexed unit. Its position in insertion order is
// the join key between the vector index, the lexical index and the metadata log.
type ChunkRecord struct {
	Text  string   `json:"text"`
	Title string   `json:"title"`
	Path  string   `json:"path"`
	Roles []string `json:"roles"`
}

// Normalize trims and deduplicates roles and applies the {"all"} default.
func (c ChunkRecord) Normalize() ChunkRecord {
	c.Roles = NormalizeRoles(c.Roles)
	return c
}

// Validate reports whether the record can be indexed.
func (c ChunkRecord) Validate() error {
	if strings.TrimSpace(c.Text) == "" {
		return ErrEmptyText
	}
	return nil
}

// ScoredRecord is a retrieval result: the record, its index position and its score.
type ScoredRecord struct {
	Index  int         `json:"index"`
	Record ChunkRecord `json:"record"`
	Score  float64     `json:"score"`
}

// Source is the display shape returned with generated answers.
type Source struct {
	Title string   `json:"title"`
	Path  string   `json:"path"`
	Roles []string `json:"roles"`
	Score float64  `json:"score"`
}

// Answer is the output of the answer pipeline.
type Answer struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Context  string   `json:"context,omitempty"`
	Sources  []Source `json:"sources"`
}

// NormalizeRoles trims blanks, drops duplicates and defaults an empty set to {"all"}.
func NormalizeRoles(roles []string) []string {
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	if len(out) == 0 {
		return []string{RoleAll}
	}
	return out
}

// ParseRoles splits a comma separated role list.
func ParseRoles(s string) []string {
	return NormalizeRoles(strings.Split(s, ","))
}

func (s ScoredRecord) String() string {
	return fmt.Sprintf("#%d %s (%.4f)", s.Index, s.Record.Title, s.Score)
}
