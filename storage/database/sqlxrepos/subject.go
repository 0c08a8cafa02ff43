package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/subject"
	"github.com/trezcool/kazi/core/user"
)

const subjectColumns = "id, title, description, join_code, deadline, created_by, created_at"

type (
	subjectRow struct {
		ID          int64       `db:"id"`
		Title       string      `db:"title"`
		Description null.String `db:"description"`
		JoinCode    string      `db:"join_code"`
		Deadline    null.Time   `db:"deadline"`
		CreatedBy   null.Int64  `db:"created_by"`
		CreatedAt   time.Time   `db:"created_at"`
	}

	subjectDetailsRow struct {
		subjectRow
		CreatorName null.String `db:"creator_name"`
	}

	participantRow struct {
		ID        int64     `db:"id"`
		SubjectID int64     `db:"subject_id"`
		UserID    int64     `db:"user_id"`
		JoinedAt  time.Time `db:"joined_at"`
	}

	participantRefRow struct {
		SubjectID int64     `db:"subject_id"`
		UserID    int64     `db:"user_id"`
		Name      string    `db:"name"`
		JoinedAt  time.Time `db:"joined_at"`
	}

	teamSummaryRow struct {
		ID        int64       `db:"id"`
		SubjectID int64       `db:"subject_id"`
		Name      string      `db:"name"`
		AdminID   null.Int64  `db:"admin_id"`
		AdminName null.String `db:"admin_name"`
	}
)

func (r subjectRow) unpack() subject.Subject {
	return subject.Subject{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description.Ptr(),
		JoinCode:    r.JoinCode,
		Deadline:    utcPtr(r.Deadline),
		CreatedByID: r.CreatedBy.Ptr(),
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

func (r participantRow) unpack() subject.Participant {
	return subject.Participant{ID: r.ID, SubjectID: r.SubjectID, UserID: r.UserID, JoinedAt: r.JoinedAt.UTC()}
}

type subjectRepository struct {
	base
}

var _ subject.Repository = (*subjectRepository)(nil) // interface compliance check

func NewSubjectRepository(db *sqlx.DB) subject.Repository {
	return &subjectRepository{base{db: db}}
}

func (repo *subjectRepository) CreateSubject(ctx context.Context, sub subject.Subject) (subject.Subject, error) {
	var row subjectRow
	err := repo.exec(ctx).QueryRowxContext(ctx, `
		INSERT INTO subjects (title, description, join_code, deadline, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (join_code) DO NOTHING
		RETURNING `+subjectColumns,
		sub.Title, null.StringFromPtr(sub.Description), sub.JoinCode, null.TimeFromPtr(sub.Deadline),
		null.Int64FromPtr(sub.CreatedByID), sub.CreatedAt,
	).StructScan(&row)
	if err != nil {
		return subject.Subject{}, trapNoRowsErr(err, core.ErrDuplicateJoinCode, "inserting subject")
	}
	return row.unpack(), nil
}

func (repo *subjectRepository) GetSubject(ctx context.Context, filter subject.GetFilter) (subject.Subject, error) {
	var row subjectRow
	var err error
	switch {
	case filter.ID != 0:
		err = repo.exec(ctx).GetContext(ctx, &row, "SELECT "+subjectColumns+" FROM subjects WHERE id = $1", filter.ID)
	case filter.JoinCode != "":
		err = repo.exec(ctx).GetContext(ctx, &row, "SELECT "+subjectColumns+" FROM subjects WHERE join_code = $1", filter.JoinCode)
	default:
		return subject.Subject{}, subject.ErrNotFound
	}
	if err != nil {
		return subject.Subject{}, trapNoRowsErr(err, subject.ErrNotFound, "getting subject")
	}
	return row.unpack(), nil
}

func (repo *subjectRepository) DeleteSubject(ctx context.Context, id int64) error {
	res, err := repo.exec(ctx).ExecContext(ctx, "DELETE FROM subjects WHERE id = $1", id)
	return checkDeleted(res, err, subject.ErrNotFound, "deleting subject")
}

func (repo *subjectRepository) AddParticipant(ctx context.Context, p subject.Participant) (subject.Participant, error) {
	var row participantRow
	err := repo.exec(ctx).QueryRowxContext(ctx, `
		INSERT INTO subject_participants (subject_id, user_id, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, subject_id) DO NOTHING
		RETURNING id, subject_id, user_id, joined_at`,
		p.SubjectID, p.UserID, p.JoinedAt,
	).StructScan(&row)
	if err != nil {
		return subject.Participant{}, trapNoRowsErr(err, subject.ErrAlreadyParticipant, "inserting participant")
	}
	return row.unpack(), nil
}

func (repo *subjectRepository) GetParticipant(ctx context.Context, subjectID, userID int64) (subject.Participant, error) {
	var row participantRow
	err := repo.exec(ctx).GetContext(ctx, &row, `
		SELECT id, subject_id, user_id, joined_at FROM subject_participants
		WHERE subject_id = $1 AND user_id = $2`,
		subjectID, userID,
	)
	if err != nil {
		return subject.Participant{}, trapNoRowsErr(err, subject.ErrNotParticipant, "getting participant")
	}
	return row.unpack(), nil
}

func (repo *subjectRepository) RemoveParticipant(ctx context.Context, subjectID, userID int64) error {
	res, err := repo.exec(ctx).ExecContext(ctx,
		"DELETE FROM subject_participants WHERE subject_id = $1 AND user_id = $2", subjectID, userID)
	return checkDeleted(res, err, subject.ErrNotParticipant, "deleting participant")
}

func (repo *subjectRepository) QuerySubjectsForUser(ctx context.Context, userID int64) ([]subject.Details, error) {
	exe := repo.exec(ctx)

	var rows []subjectDetailsRow
	err := exe.SelectContext(ctx, &rows, `
		SELECT s.id, s.title, s.description, s.join_code, s.deadline, s.created_by, s.created_at,
		       u.name AS creator_name
		FROM subjects s
		LEFT JOIN users u ON u.id = s.created_by
		WHERE s.created_by = $1
		   OR EXISTS (SELECT 1 FROM subject_participants p WHERE p.subject_id = s.id AND p.user_id = $1)
		ORDER BY s.id`,
		userID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	if len(rows) == 0 {
		return []subject.Details{}, nil
	}

	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}

	var participants []participantRefRow
	err = exe.SelectContext(ctx, &participants, `
		SELECT p.subject_id, p.user_id, u.name, p.joined_at
		FROM subject_participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.subject_id = ANY($1)
		ORDER BY p.joined_at, p.id`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying participants")
	}

	var teams []teamSummaryRow
	err = exe.SelectContext(ctx, &teams, `
		SELECT t.id, t.subject_id, t.name, t.admin_id, a.name AS admin_name
		FROM teams t
		LEFT JOIN users a ON a.id = t.admin_id
		WHERE t.subject_id = ANY($1)
		ORDER BY t.id`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying teams")
	}
	members, err := queryMemberRefs(ctx, exe, "m.subject_id = ANY($1)", pq.Array(ids))
	if err != nil {
		return nil, err
	}

	participantsBySubject := make(map[int64][]subject.ParticipantRef, len(rows))
	for _, p := range participants {
		participantsBySubject[p.SubjectID] = append(participantsBySubject[p.SubjectID], subject.ParticipantRef{
			ID:       p.UserID,
			Name:     p.Name,
			JoinedAt: p.JoinedAt.UTC(),
		})
	}
	teamsBySubject := make(map[int64][]subject.TeamSummary, len(rows))
	for _, t := range teams {
		teamsBySubject[t.SubjectID] = append(teamsBySubject[t.SubjectID], subject.TeamSummary{
			ID:      t.ID,
			Name:    t.Name,
			Admin:   userRef(t.AdminID, t.AdminName),
			Members: orEmpty(members[t.ID]),
		})
	}

	subjects := make([]subject.Details, 0, len(rows))
	for _, r := range rows {
		d := subject.Details{
			Subject:      r.unpack(),
			CreatedBy:    userRef(r.CreatedBy, r.CreatorName),
			Participants: participantsBySubject[r.ID],
			Teams:        teamsBySubject[r.ID],
		}
		if d.Participants == nil {
			d.Participants = []subject.ParticipantRef{}
		}
		if d.Teams == nil {
			d.Teams = []subject.TeamSummary{}
		}
		subjects = append(subjects, d)
	}
	return subjects, nil
}

// checkDeleted reports notFound when a DELETE matched no row.
func checkDeleted(res sql.Result, err error, notFound error, msg string) error {
	if err != nil {
		return errors.Wrap(err, msg)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, msg)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func userRef(id null.Int64, name null.String) *user.Ref {
	if !id.Valid {
		return nil
	}
	return &user.Ref{ID: id.Int64, Name: name.String}
}
