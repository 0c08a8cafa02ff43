package task

import (
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/user"
)

type (
	Task struct {
		ID            int64      `json:"id"`
		TeamID        int64      `json:"teamId"`
		Title         string     `json:"title"`
		Description   *string    `json:"description"`
		Deadline      *time.Time `json:"deadline"`
		IsCompleted   bool       `json:"isCompleted"`
		Order         int        `json:"order"`
		CreatedAt     time.Time  `json:"createdAt"`
		CreatedByID   *int64     `json:"createdById"`
		CompletedByID *int64     `json:"completedById"`
		CompletedAt   *time.Time `json:"completedAt"`
	}

	Comment struct {
		ID        int64
		TaskID    int64
		AuthorID  int64
		Text      string
		CreatedAt time.Time
	}

	File struct {
		ID           int64
		TaskID       int64
		UploadedByID *int64
		FileName     string
		FileURL      string
		FileSize     *int64
		CreatedAt    time.Time
	}

	// DependencyRef is the task a dependency edge points to.
	DependencyRef struct {
		ID          int64  `json:"id"`
		Title       string `json:"title"`
		IsCompleted bool   `json:"isCompleted"`
	}

	CommentDetails struct {
		ID        int64     `json:"id"`
		Text      string    `json:"text"`
		Author    user.Ref  `json:"author"`
		CreatedAt time.Time `json:"createdAt"`
	}

	FileDetails struct {
		ID         int64     `json:"id"`
		FileName   string    `json:"fileName"`
		FileURL    string    `json:"fileUrl"`
		FileSize   *int64    `json:"fileSize"`
		UploadedBy *user.Ref `json:"uploadedBy"`
		CreatedAt  time.Time `json:"createdAt"`
	}

	// Details is a Task as shown on its team board.
	Details struct {
		Task
		IsAvailable  bool             `json:"isAvailable"`
		CompletedBy  *user.Ref        `json:"completedBy"`
		Assignees    []user.Ref       `json:"assignees"`
		Dependencies []DependencyRef  `json:"dependencies"`
		Comments     []CommentDetails `json:"comments"`
		Files        []FileDetails    `json:"files"`
	}
)

type NewTask struct {
	Title         string  `json:"title" validate:"required,max=255"`
	Description   *string `json:"description"`
	Deadline      *string `json:"deadline"`
	AssigneeIDs   []int64 `json:"assigneeIds"`
	DependencyIDs []int64 `json:"dependencyIds"`
}

func (nt *NewTask) Validate(validate *validator.Validate) error {
	nt.Title = core.CleanString(nt.Title)
	if nt.Description != nil {
		nt.Description = core.StringPtr(*nt.Description)
	}
	return validate.Struct(nt)
}

// PatchString tells a field sent as JSON null apart from a field left out.
type PatchString struct {
	Set   bool
	Value null.String
}

func (ps *PatchString) UnmarshalJSON(data []byte) error {
	ps.Set = true
	return ps.Value.UnmarshalJSON(data)
}

// Ptr returns nil for null or blank values.
func (ps PatchString) Ptr() *string {
	if !ps.Value.Valid {
		return nil
	}
	return core.StringPtr(ps.Value.String)
}

// UpdateTask is a partial update: only the fields present in the request are applied.
// Assignee and dependency lists replace the current ones as a whole.
type UpdateTask struct {
	Title         *string     `json:"title" validate:"omitempty,min=1,max=255"`
	Description   PatchString `json:"description"`
	Deadline      PatchString `json:"deadline"`
	AssigneeIDs   *[]int64    `json:"assigneeIds"`
	DependencyIDs *[]int64    `json:"dependencyIds"`
}

func (ut *UpdateTask) Validate(validate *validator.Validate) error {
	if ut.Title != nil {
		title := core.CleanString(*ut.Title)
		ut.Title = &title
		if title == "" {
			return core.NewValidationError(nil, core.FieldError{Field: "title", Error: "this field is required"})
		}
	}
	return validate.Struct(ut)
}

type UpdateStatus struct {
	IsCompleted *bool `json:"isCompleted" validate:"required"`
}

func (us UpdateStatus) Validate(validate *validator.Validate) error { return validate.Struct(us) }

type NewComment struct {
	Text string `json:"text" validate:"required,max=5000"`
}

func (nc *NewComment) Validate(validate *validator.Validate) error {
	nc.Text = core.CleanString(nc.Text)
	return validate.Struct(nc)
}

// NewFile is an upload waiting to be stored.
type NewFile struct {
	Name    string
	Size    int64
	Content io.Reader
}
