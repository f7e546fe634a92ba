package models

// CoachRelationStatus tracks whether a coach currently serves a student.
type CoachRelationStatus string

const (
	CoachRelationActive     CoachRelationStatus = "ACTIVE"
	CoachRelationTerminated CoachRelationStatus = "TERMINATED"
)
