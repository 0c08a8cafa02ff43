package subject

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/user"
)

type (
	Subject struct {
		ID          int64      `json:"id"`
		Title       string     `json:"title"`
		Description *string    `json:"description"`
		JoinCode    string     `json:"joinCode"`
		Deadline    *time.Time `json:"deadline"` // 23:59 UTC of the deadline date
		CreatedByID *int64     `json:"createdById"`
		CreatedAt   time.Time  `json:"createdAt"`
	}

	// Participant records that a user joined a subject, by creating it or redeeming its code.
	Participant struct {
		ID        int64
		SubjectID int64
		UserID    int64
		JoinedAt  time.Time
	}

	ParticipantRef struct {
		ID       int64     `json:"id"` // user ID
		Name     string    `json:"name"`
		JoinedAt time.Time `json:"joinedAt"`
	}

	MemberRef struct {
		ID   int64  `json:"id"` // user ID
		Name string `json:"name"`
		Role string `json:"role"`
	}

	TeamSummary struct {
		ID      int64       `json:"id"`
		Name    string      `json:"name"`
		Admin   *user.Ref   `json:"admin"`
		Members []MemberRef `json:"members"`
	}

	// Details is a Subject as listed to one of its participants.
	Details struct {
		Subject
		CreatedBy    *user.Ref        `json:"createdBy"`
		Participants []ParticipantRef `json:"participants"`
		Teams        []TeamSummary    `json:"teams"`
	}
)

type NewSubject struct {
	Title       string  `json:"title" validate:"required,max=255"`
	Description *string `json:"description"`
	Deadline    *string `json:"deadline"`
}

func (ns *NewSubject) Validate(validate *validator.Validate) error {
	ns.Title = core.CleanString(ns.Title)
	if ns.Description != nil {
		ns.Description = core.StringPtr(*ns.Description)
	}
	return validate.Struct(ns)
}
