package model

import "time"

// PanelSession binds a judging station to one judge on one heat after the
// passcode has been verified.
type PanelSession struct {
	EventID     int64     `json:"event_id"`
	DivisionID  int64     `json:"division_id"`
	RoundID     int64     `json:"round_id"`
	RoundHeatID int64     `json:"round_heat_id"`
	PersonnelID int64     `json:"personnel_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Covers reports whether the session allows s to be submitted.
func (p PanelSession) Covers(s ScoreSubmission) bool {
	return p.PersonnelID == s.PersonnelID && p.RoundHeatID == s.RoundHeatID
}

// Expired reports whether the session is past its expiry at now.
func (p PanelSession) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}
