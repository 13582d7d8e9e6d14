package domain

import "time"

// AnswerKind distinguishes typed answers from recorded ones.
type AnswerKind string

const (
	AnswerKindText  AnswerKind = "text"
	AnswerKindAudio AnswerKind = "audio"
)

// Answer is one accepted learner answer for a glossary term.
type Answer struct {
	ID        uint       `json:"id"`
	Term      string     `json:"term"`
	Value     string     `json:"value"`
	Kind      AnswerKind `json:"kind"`
	CreatedAt time.Time  `json:"createdAt"`
}
