package team

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/subject"
	"github.com/trezcool/kazi/core/user"
)

// Member roles
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

type (
	Team struct {
		ID        int64      `json:"id"`
		Name      string     `json:"name"`
		SubjectID int64      `json:"subjectId"`
		AdminID   *int64     `json:"adminId"`
		JoinCode  string     `json:"joinCode"`
		Deadline  *time.Time `json:"deadline"`
		CreatedAt time.Time  `json:"createdAt"`
	}

	// Member is a user's membership of a team.
	// SubjectID repeats the team's subject so a user holds at most one membership per subject.
	Member struct {
		ID        int64     `json:"id"`
		TeamID    int64     `json:"teamId"`
		UserID    int64     `json:"userId"`
		SubjectID int64     `json:"subjectId"`
		Role      string    `json:"role"`
		JoinedAt  time.Time `json:"joinedAt"`
	}

	MemberRef = subject.MemberRef

	// Summary is a Team with the records it points to resolved.
	Summary struct {
		Team
		Subject subject.Subject `json:"subject"`
		Admin   *user.Ref       `json:"admin"`
		Members []MemberRef     `json:"members"`
	}

	// Membership is one entry of a user's team list.
	Membership struct {
		ID       int64     `json:"id"`
		Role     string    `json:"role"`
		JoinedAt time.Time `json:"joinedAt"`
		Team     Summary   `json:"team"`
	}

	// Details is the header of a team board, as seen by one of its members.
	Details struct {
		Summary
		IsAdmin bool `json:"isAdmin"`
	}
)

func (m Member) IsAdmin() bool { return m.Role == RoleAdmin }

type NewTeam struct {
	SubjectID int64   `json:"subjectId" validate:"required"`
	Name      string  `json:"name" validate:"required,max=255"`
	Deadline  *string `json:"deadline"`
}

func (nt *NewTeam) Validate(validate *validator.Validate) error {
	nt.Name = core.CleanString(nt.Name)
	return validate.Struct(nt)
}
