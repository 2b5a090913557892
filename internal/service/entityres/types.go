package entityres

import (
	"github.com/clearvet/screening-backend/internal/domain/entity"
)

const (
	// matchThreshold is the minimum composite score for a fuzzy match
	matchThreshold = 0.85

	nameWeight    = 0.5
	dobWeight     = 0.3
	addressWeight = 0.2
)

// Match is the outcome of resolving a subject claim to a canonical entity
type Match struct {
	Entity *entity.Entity `json:"entity"`
	Score  float64        `json:"score"`
	Exact  bool           `json:"exact"`
	// Created reports that no existing entity cleared the threshold and a
	// new one was minted for the subject.
	Created bool `json:"created"`
}
