package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/subject"
)

type subjectRepository struct {
	db *DB
}

var _ subject.Repository = (*subjectRepository)(nil) // interface compliance check

func NewSubjectRepository(db *DB) subject.Repository {
	return &subjectRepository{db: db}
}

func (repo *subjectRepository) CreateSubject(_ context.Context, sub subject.Subject) (subject.Subject, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, s := range repo.db.data.subjects {
		if s.JoinCode == sub.JoinCode {
			return subject.Subject{}, core.ErrDuplicateJoinCode
		}
	}
	sub.ID = repo.db.nextID()
	repo.db.data.subjects[sub.ID] = sub
	return sub, nil
}

func (repo *subjectRepository) GetSubject(_ context.Context, filter subject.GetFilter) (subject.Subject, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	switch {
	case filter.ID != 0:
		if sub, ok := repo.db.data.subjects[filter.ID]; ok {
			return sub, nil
		}
	case filter.JoinCode != "":
		for _, sub := range repo.db.data.subjects {
			if sub.JoinCode == filter.JoinCode {
				return sub, nil
			}
		}
	}
	return subject.Subject{}, subject.ErrNotFound
}

func (repo *subjectRepository) DeleteSubject(_ context.Context, id int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.data.subjects[id]; !ok {
		return subject.ErrNotFound
	}
	repo.db.deleteSubject(id)
	return nil
}

// deleteSubject cascades to participants and teams. The write lock must be held.
func (db *DB) deleteSubject(id int64) {
	for pk, p := range db.data.participants {
		if p.SubjectID == id {
			delete(db.data.participants, pk)
		}
	}
	for pk, t := range db.data.teams {
		if t.SubjectID == id {
			db.deleteTeam(pk)
		}
	}
	delete(db.data.subjects, id)
}

func (repo *subjectRepository) findParticipant(subjectID, userID int64) (subject.Participant, bool) {
	for _, p := range repo.db.data.participants {
		if p.SubjectID == subjectID && p.UserID == userID {
			return p, true
		}
	}
	return subject.Participant{}, false
}

func (repo *subjectRepository) AddParticipant(_ context.Context, p subject.Participant) (subject.Participant, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.findParticipant(p.SubjectID, p.UserID); ok {
		return subject.Participant{}, subject.ErrAlreadyParticipant
	}
	p.ID = repo.db.nextID()
	repo.db.data.participants[p.ID] = p
	return p, nil
}

func (repo *subjectRepository) GetParticipant(_ context.Context, subjectID, userID int64) (subject.Participant, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if p, ok := repo.findParticipant(subjectID, userID); ok {
		return p, nil
	}
	return subject.Participant{}, subject.ErrNotParticipant
}

func (repo *subjectRepository) RemoveParticipant(_ context.Context, subjectID, userID int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	p, ok := repo.findParticipant(subjectID, userID)
	if !ok {
		return subject.ErrNotParticipant
	}
	delete(repo.db.data.participants, p.ID)
	return nil
}

func (repo *subjectRepository) QuerySubjectsForUser(_ context.Context, userID int64) ([]subject.Details, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	data := repo.db.data
	subjects := make([]subject.Details, 0)
	for _, sub := range data.subjects {
		_, participates := repo.findParticipant(sub.ID, userID)
		created := sub.CreatedByID != nil && *sub.CreatedByID == userID
		if !participates && !created {
			continue
		}

		d := subject.Details{
			Subject:      sub,
			CreatedBy:    userRef(data.users, sub.CreatedByID),
			Participants: []subject.ParticipantRef{},
			Teams:        []subject.TeamSummary{},
		}

		participants := make([]subject.Participant, 0)
		for _, p := range data.participants {
			if p.SubjectID == sub.ID {
				participants = append(participants, p)
			}
		}
		sort.Slice(participants, func(i, j int) bool {
			if participants[i].JoinedAt.Equal(participants[j].JoinedAt) {
				return participants[i].ID < participants[j].ID
			}
			return participants[i].JoinedAt.Before(participants[j].JoinedAt)
		})
		for _, p := range participants {
			d.Participants = append(d.Participants, subject.ParticipantRef{
				ID:       p.UserID,
				Name:     data.users[p.UserID].Name,
				JoinedAt: p.JoinedAt,
			})
		}

		for _, t := range repo.db.teamsOf(sub.ID) {
			d.Teams = append(d.Teams, subject.TeamSummary{
				ID:      t.ID,
				Name:    t.Name,
				Admin:   userRef(data.users, t.AdminID),
				Members: repo.db.memberRefs(t.ID),
			})
		}
		subjects = append(subjects, d)
	}

	sort.Slice(subjects, func(i, j int) bool { return subjects[i].ID < subjects[j].ID })
	return subjects, nil
}
