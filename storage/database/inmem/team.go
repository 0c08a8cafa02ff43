package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/team"
)

type teamRepository struct {
	db *DB
}

var _ team.Repository = (*teamRepository)(nil) // interface compliance check

func NewTeamRepository(db *DB) team.Repository {
	return &teamRepository{db: db}
}

func (repo *teamRepository) CreateTeam(_ context.Context, t team.Team) (team.Team, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, other := range repo.db.data.teams {
		if other.JoinCode == t.JoinCode {
			return team.Team{}, core.ErrDuplicateJoinCode
		}
	}
	t.ID = repo.db.nextID()
	repo.db.data.teams[t.ID] = t
	return t, nil
}

func (repo *teamRepository) GetTeam(_ context.Context, filter team.GetFilter) (team.Team, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	switch {
	case filter.ID != 0:
		if t, ok := repo.db.data.teams[filter.ID]; ok {
			return t, nil
		}
	case filter.JoinCode != "":
		for _, t := range repo.db.data.teams {
			if t.JoinCode == filter.JoinCode {
				return t, nil
			}
		}
	}
	return team.Team{}, team.ErrNotFound
}

func (repo *teamRepository) DeleteTeam(_ context.Context, id int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.data.teams[id]; !ok {
		return team.ErrNotFound
	}
	repo.db.deleteTeam(id)
	return nil
}

// deleteTeam cascades to members and tasks. The write lock must be held.
func (db *DB) deleteTeam(id int64) {
	for pk, m := range db.data.members {
		if m.TeamID == id {
			delete(db.data.members, pk)
		}
	}
	for pk, t := range db.data.tasks {
		if t.TeamID == id {
			db.deleteTask(pk)
		}
	}
	delete(db.data.teams, id)
}

func (repo *teamRepository) AddMember(_ context.Context, m team.Member) (team.Member, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, other := range repo.db.data.members {
		if other.UserID == m.UserID && other.SubjectID == m.SubjectID {
			return team.Member{}, team.ErrAlreadyInSubject
		}
	}
	m.ID = repo.db.nextID()
	repo.db.data.members[m.ID] = m
	return m, nil
}

func (repo *teamRepository) findMember(match func(m team.Member) bool) (team.Member, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, m := range repo.db.data.members {
		if match(m) {
			return m, nil
		}
	}
	return team.Member{}, team.ErrNotMember
}

func (repo *teamRepository) GetMember(_ context.Context, teamID, userID int64) (team.Member, error) {
	return repo.findMember(func(m team.Member) bool { return m.TeamID == teamID && m.UserID == userID })
}

func (repo *teamRepository) GetSubjectMember(_ context.Context, subjectID, userID int64) (team.Member, error) {
	return repo.findMember(func(m team.Member) bool { return m.SubjectID == subjectID && m.UserID == userID })
}

func (repo *teamRepository) RemoveMember(_ context.Context, teamID, userID int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for pk, m := range repo.db.data.members {
		if m.TeamID == teamID && m.UserID == userID {
			delete(repo.db.data.members, pk)
			return nil
		}
	}
	return team.ErrNotMember
}

func (repo *teamRepository) QueryMembers(_ context.Context, teamID int64) ([]team.MemberRef, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.db.memberRefs(teamID), nil
}

func (repo *teamRepository) QueryTeamsForUser(_ context.Context, userID int64) ([]team.Membership, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	memberships := make([]team.Membership, 0)
	for _, m := range repo.db.data.members {
		if m.UserID != userID {
			continue
		}
		memberships = append(memberships, team.Membership{
			ID:       m.ID,
			Role:     m.Role,
			JoinedAt: m.JoinedAt,
			Team:     repo.db.summary(repo.db.data.teams[m.TeamID]),
		})
	}
	sort.Slice(memberships, func(i, j int) bool { return memberships[i].Team.ID < memberships[j].Team.ID })
	return memberships, nil
}

func (repo *teamRepository) GetSummary(_ context.Context, teamID int64) (team.Summary, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	t, ok := repo.db.data.teams[teamID]
	if !ok {
		return team.Summary{}, team.ErrNotFound
	}
	return repo.db.summary(t), nil
}

// The helpers below expect the caller to hold the lock.

func (db *DB) summary(t team.Team) team.Summary {
	return team.Summary{
		Team:    t,
		Subject: db.data.subjects[t.SubjectID],
		Admin:   userRef(db.data.users, t.AdminID),
		Members: db.memberRefs(t.ID),
	}
}

func (db *DB) teamsOf(subjectID int64) []team.Team {
	teams := make([]team.Team, 0)
	for _, t := range db.data.teams {
		if t.SubjectID == subjectID {
			teams = append(teams, t)
		}
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].ID < teams[j].ID })
	return teams
}

// memberRefs lists the members of a team in joining order.
func (db *DB) memberRefs(teamID int64) []team.MemberRef {
	members := make([]team.Member, 0)
	for _, m := range db.data.members {
		if m.TeamID == teamID {
			members = append(members, m)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].ID < members[j].ID
		}
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})

	refs := make([]team.MemberRef, 0, len(members))
	for _, m := range members {
		refs = append(refs, team.MemberRef{ID: m.UserID, Name: db.data.users[m.UserID].Name, Role: m.Role})
	}
	return refs
}
