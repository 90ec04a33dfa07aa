package model

import "time"

// AssessmentFlow identifies which graded activity a proctoring monitor is
// attached to. Thresholds differ per flow.
type AssessmentFlow string

const (
	FlowTrial     AssessmentFlow = "trial"
	FlowInterview AssessmentFlow = "interview"
	FlowExam      AssessmentFlow = "exam"
	FlowArena     AssessmentFlow = "arena"
)

// VoidScore is the sentinel forced onto any assessment that fails the
// integrity gate.
const VoidScore = 0

// GradeResult is the structured output of the AI judge's scoring function.
type GradeResult struct {
	Score    int    `json:"score" bson:"score"`
	Feedback string `json:"feedback" bson:"feedback"`
	Passed   bool   `json:"passed" bson:"passed"`
}

// EnvironmentReport is the structured output of the AI judge's camera-frame
// analysis. Any false sub-flag is one environment violation.
type EnvironmentReport struct {
	Lighting     bool   `json:"lighting" bson:"lighting"`
	SinglePerson bool   `json:"singlePerson" bson:"singlePerson"`
	NoDevices    bool   `json:"noDevices" bson:"noDevices"`
	Feedback     string `json:"feedback" bson:"feedback"`
}

// Clear reports whether the snapshot raised no environment flags.
func (r EnvironmentReport) Clear() bool {
	return r.Lighting && r.SinglePerson && r.NoDevices
}

// AssessmentVerdict is the terminal outcome of one assessment instance,
// persisted once and never mutated afterwards.
type AssessmentVerdict struct {
	ID         string         `json:"id" bson:"_id,omitempty"`
	UserID     string         `json:"userId" bson:"userId"`
	Flow       AssessmentFlow `json:"flow" bson:"flow"`
	Score      int            `json:"score" bson:"score"`
	Void       bool           `json:"void" bson:"void"`
	Reasons    []string       `json:"reasons,omitempty" bson:"reasons,omitempty"`
	Feedback   string         `json:"feedback,omitempty" bson:"feedback,omitempty"`
	FinishedAt time.Time      `json:"finishedAt" bson:"finishedAt"`
}

// RaceRanking is one row of a final race ranking.
type RaceRanking struct {
	Rank     int    `json:"rank" bson:"rank"`
	UserID   string `json:"userId" bson:"userId"`
	Name     string `json:"name" bson:"name"`
	Progress int    `json:"progress" bson:"progress"`
	Score    int    `json:"score" bson:"score"`
}

// RaceResult is the archived outcome of one finished arena session.
type RaceResult struct {
	ID         string        `json:"id" bson:"_id,omitempty"`
	Code       string        `json:"code" bson:"code"`
	Domain     string        `json:"domain" bson:"domain"`
	Rankings   []RaceRanking `json:"rankings" bson:"rankings"`
	FinishedAt time.Time     `json:"finishedAt" bson:"finishedAt"`
}
