package model

import (
	"fmt"
	"time"
)

type ContestMode string
type ContestPhase string

const (
	ModeStandard ContestMode = "standard"
	ModeLockout  ContestMode = "lockout"
	ModeTraining ContestMode = "training"

	PhaseUpcoming ContestPhase = "Upcoming"
	PhaseActive   ContestPhase = "Active"
	PhaseEnded    ContestPhase = "Ended"
)

// ParseContestMode resolves an optional wire-level mode tag. A nil or empty
// value means the default (standard) mode.
func ParseContestMode(s *string) (ContestMode, error) {
	if s == nil || *s == "" {
		return ModeStandard, nil
	}
	switch ContestMode(*s) {
	case ModeStandard, ModeLockout, ModeTraining:
		return ContestMode(*s), nil
	}
	return "", fmt.Errorf("unknown contest mode %q", *s)
}

type VirtualContest struct {
	ID               string               `json:"id"`
	Title            string               `json:"title"`
	Memo             string               `json:"memo"`
	OwnerUserID      string               `json:"owner_user_id"`
	StartEpochSecond int64                `json:"start_epoch_second"`
	DurationSecond   int64                `json:"duration_second"`
	Mode             ContestMode          `json:"mode"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
	Items            []VirtualContestItem `json:"items,omitempty"`
}

// Phase reports where now falls relative to the half-open active window
// [start, start+duration).
func (c *VirtualContest) Phase(now int64) ContestPhase {
	if now < c.StartEpochSecond {
		return PhaseUpcoming
	}
	if now < c.StartEpochSecond+c.DurationSecond {
		return PhaseActive
	}
	return PhaseEnded
}

type VirtualContestItem struct {
	ContestID string `json:"contest_id,omitempty"`
	ProblemID string `json:"problem_id"`
	ItemOrder int    `json:"item_order"`
}

type VirtualContestParticipant struct {
	ContestID string    `json:"contest_id"`
	UserID    string    `json:"user_id"`
	JoinedAt  time.Time `json:"joined_at"`
}
