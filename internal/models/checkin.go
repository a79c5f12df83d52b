package models

import "time"

type CheckIn struct {
	ID          string    `json:"id"`
	GymID       string    `json:"gymId"`
	UserID      string    `json:"userId"`
	CreatedBy   string    `json:"createdBy"`
	CheckedInAt time.Time `json:"checkedInAt"`
}
