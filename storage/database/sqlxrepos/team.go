package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/team"
)

const (
	teamColumns   = "id, name, subject_id, admin_id, join_code, deadline, created_at"
	memberColumns = "id, team_id, user_id, subject_id, role, joined_at"
)

type (
	teamRow struct {
		ID        int64      `db:"id"`
		Name      string     `db:"name"`
		SubjectID int64      `db:"subject_id"`
		AdminID   null.Int64 `db:"admin_id"`
		JoinCode  string     `db:"join_code"`
		Deadline  null.Time  `db:"deadline"`
		CreatedAt time.Time  `db:"created_at"`
	}

	memberRow struct {
		ID        int64     `db:"id"`
		TeamID    int64     `db:"team_id"`
		UserID    int64     `db:"user_id"`
		SubjectID int64     `db:"subject_id"`
		Role      string    `db:"role"`
		JoinedAt  time.Time `db:"joined_at"`
	}

	memberRefRow struct {
		TeamID int64  `db:"team_id"`
		UserID int64  `db:"user_id"`
		Name   string `db:"name"`
		Role   string `db:"role"`
	}

	// teamSummaryFullRow is a team joined with its subject and admin.
	teamSummaryFullRow struct {
		T         teamRow     `db:"t"`
		S         subjectRow  `db:"s"`
		AdminName null.String `db:"admin_name"`
	}

	membershipRow struct {
		memberRow
		teamSummaryFullRow
	}
)

func (r teamRow) unpack() team.Team {
	return team.Team{
		ID:        r.ID,
		Name:      r.Name,
		SubjectID: r.SubjectID,
		AdminID:   r.AdminID.Ptr(),
		JoinCode:  r.JoinCode,
		Deadline:  utcPtr(r.Deadline),
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func (r memberRow) unpack() team.Member {
	return team.Member{
		ID:        r.ID,
		TeamID:    r.TeamID,
		UserID:    r.UserID,
		SubjectID: r.SubjectID,
		Role:      r.Role,
		JoinedAt:  r.JoinedAt.UTC(),
	}
}

func (r teamSummaryFullRow) unpack(members []team.MemberRef) team.Summary {
	return team.Summary{
		Team:    r.T.unpack(),
		Subject: r.S.unpack(),
		Admin:   userRef(r.T.AdminID, r.AdminName),
		Members: orEmpty(members),
	}
}

// teamSummarySelect aliases columns so that sqlx maps them onto teamSummaryFullRow.
const teamSummarySelect = `
	t.id AS "t.id", t.name AS "t.name", t.subject_id AS "t.subject_id", t.admin_id AS "t.admin_id",
	t.join_code AS "t.join_code", t.deadline AS "t.deadline", t.created_at AS "t.created_at",
	s.id AS "s.id", s.title AS "s.title", s.description AS "s.description", s.join_code AS "s.join_code",
	s.deadline AS "s.deadline", s.created_by AS "s.created_by", s.created_at AS "s.created_at",
	a.name AS admin_name
	FROM teams t
	JOIN subjects s ON s.id = t.subject_id
	LEFT JOIN users a ON a.id = t.admin_id`

type teamRepository struct {
	base
}

var _ team.Repository = (*teamRepository)(nil) // interface compliance check

func NewTeamRepository(db *sqlx.DB) team.Repository {
	return &teamRepository{base{db: db}}
}

func (repo *teamRepository) CreateTeam(ctx context.Context, t team.Team) (team.Team, error) {
	var row teamRow
	err := repo.exec(ctx).QueryRowxContext(ctx, `
		INSERT INTO teams (name, subject_id, admin_id, join_code, deadline, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (join_code) DO NOTHING
		RETURNING `+teamColumns,
		t.Name, t.SubjectID, null.Int64FromPtr(t.AdminID), t.JoinCode, null.TimeFromPtr(t.Deadline), t.CreatedAt,
	).StructScan(&row)
	if err != nil {
		return team.Team{}, trapNoRowsErr(err, core.ErrDuplicateJoinCode, "inserting team")
	}
	return row.unpack(), nil
}

func (repo *teamRepository) GetTeam(ctx context.Context, filter team.GetFilter) (team.Team, error) {
	var row teamRow
	var err error
	switch {
	case filter.ID != 0:
		err = repo.exec(ctx).GetContext(ctx, &row, "SELECT "+teamColumns+" FROM teams WHERE id = $1", filter.ID)
	case filter.JoinCode != "":
		err = repo.exec(ctx).GetContext(ctx, &row, "SELECT "+teamColumns+" FROM teams WHERE join_code = $1", filter.JoinCode)
	default:
		return team.Team{}, team.ErrNotFound
	}
	if err != nil {
		return team.Team{}, trapNoRowsErr(err, team.ErrNotFound, "getting team")
	}
	return row.unpack(), nil
}

func (repo *teamRepository) DeleteTeam(ctx context.Context, id int64) error {
	res, err := repo.exec(ctx).ExecContext(ctx, "DELETE FROM teams WHERE id = $1", id)
	return checkDeleted(res, err, team.ErrNotFound, "deleting team")
}

func (repo *teamRepository) AddMember(ctx context.Context, m team.Member) (team.Member, error) {
	var row memberRow
	err := repo.exec(ctx).QueryRowxContext(ctx, `
		INSERT INTO team_members (team_id, user_id, subject_id, role, joined_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, subject_id) DO NOTHING
		RETURNING `+memberColumns,
		m.TeamID, m.UserID, m.SubjectID, m.Role, m.JoinedAt,
	).StructScan(&row)
	if err != nil {
		return team.Member{}, trapNoRowsErr(err, team.ErrAlreadyInSubject, "inserting member")
	}
	return row.unpack(), nil
}

func (repo *teamRepository) GetMember(ctx context.Context, teamID, userID int64) (team.Member, error) {
	var row memberRow
	err := repo.exec(ctx).GetContext(ctx, &row,
		"SELECT "+memberColumns+" FROM team_members WHERE team_id = $1 AND user_id = $2", teamID, userID)
	if err != nil {
		return team.Member{}, trapNoRowsErr(err, team.ErrNotMember, "getting member")
	}
	return row.unpack(), nil
}

func (repo *teamRepository) GetSubjectMember(ctx context.Context, subjectID, userID int64) (team.Member, error) {
	var row memberRow
	err := repo.exec(ctx).GetContext(ctx, &row,
		"SELECT "+memberColumns+" FROM team_members WHERE subject_id = $1 AND user_id = $2", subjectID, userID)
	if err != nil {
		return team.Member{}, trapNoRowsErr(err, team.ErrNotMember, "getting subject member")
	}
	return row.unpack(), nil
}

func (repo *teamRepository) RemoveMember(ctx context.Context, teamID, userID int64) error {
	res, err := repo.exec(ctx).ExecContext(ctx,
		"DELETE FROM team_members WHERE team_id = $1 AND user_id = $2", teamID, userID)
	return checkDeleted(res, err, team.ErrNotMember, "deleting member")
}

func (repo *teamRepository) QueryMembers(ctx context.Context, teamID int64) ([]team.MemberRef, error) {
	members, err := queryMemberRefs(ctx, repo.exec(ctx), "m.team_id = $1", teamID)
	if err != nil {
		return nil, err
	}
	return orEmpty(members[teamID]), nil
}

func (repo *teamRepository) QueryTeamsForUser(ctx context.Context, userID int64) ([]team.Membership, error) {
	exe := repo.exec(ctx)

	var rows []membershipRow
	err := exe.SelectContext(ctx, &rows, `
		SELECT m.id, m.team_id, m.user_id, m.subject_id, m.role, m.joined_at,`+teamSummarySelect+`
		JOIN team_members m ON m.team_id = t.id
		WHERE m.user_id = $1
		ORDER BY t.id`,
		userID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying memberships")
	}
	members, err := queryMemberRefs(ctx, exe,
		"m.team_id IN (SELECT team_id FROM team_members WHERE user_id = $1)", userID)
	if err != nil {
		return nil, err
	}

	memberships := make([]team.Membership, 0, len(rows))
	for _, r := range rows {
		memberships = append(memberships, team.Membership{
			ID:       r.memberRow.ID,
			Role:     r.Role,
			JoinedAt: r.JoinedAt.UTC(),
			Team:     r.teamSummaryFullRow.unpack(members[r.TeamID]),
		})
	}
	return memberships, nil
}

func (repo *teamRepository) GetSummary(ctx context.Context, teamID int64) (team.Summary, error) {
	exe := repo.exec(ctx)

	var row teamSummaryFullRow
	if err := exe.GetContext(ctx, &row, "SELECT"+teamSummarySelect+" WHERE t.id = $1", teamID); err != nil {
		return team.Summary{}, trapNoRowsErr(err, team.ErrNotFound, "getting team summary")
	}
	members, err := queryMemberRefs(ctx, exe, "m.team_id = $1", teamID)
	if err != nil {
		return team.Summary{}, err
	}
	return row.unpack(members[teamID]), nil
}

// queryMemberRefs lists the members of the teams matched by where, grouped by team ID in joining order.
func queryMemberRefs(ctx context.Context, exe executor, where string, args ...interface{}) (map[int64][]team.MemberRef, error) {
	var rows []memberRefRow
	err := exe.SelectContext(ctx, &rows, `
		SELECT m.team_id, m.user_id, u.name, m.role
		FROM team_members m
		JOIN users u ON u.id = m.user_id
		WHERE `+where+`
		ORDER BY m.joined_at, m.id`,
		args...,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying members")
	}

	members := make(map[int64][]team.MemberRef)
	for _, r := range rows {
		members[r.TeamID] = append(members[r.TeamID], team.MemberRef{ID: r.UserID, Name: r.Name, Role: r.Role})
	}
	return members, nil
}

func orEmpty(members []team.MemberRef) []team.MemberRef {
	if members == nil {
		return []team.MemberRef{}
	}
	return members
}
