package core

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// JoinCodeAlphabet leaves out the characters people confuse when copying a code: 0/O and 1/I.
const JoinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	SubjectJoinCodeLen = 6
	TeamJoinCodeLen    = 8

	maxJoinCodeAttempts = 10
)

var alphabetLen = big.NewInt(int64(len(JoinCodeAlphabet)))

// NewJoinCode draws a random code of the given length from JoinCodeAlphabet.
func NewJoinCode(length int) (string, error) {
	var sb strings.Builder
	sb.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", errors.Wrap(err, "reading random index")
		}
		sb.WriteByte(JoinCodeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// NormalizeJoinCode trims and upper-cases user input.
func NormalizeJoinCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IssueJoinCode calls create with fresh codes until it no longer reports ErrDuplicateJoinCode.
// Uniqueness is left to the database constraint: create is expected to attempt the insert.
func IssueJoinCode(length int, create func(code string) error) error {
	for attempt := 0; attempt < maxJoinCodeAttempts; attempt++ {
		code, err := NewJoinCode(length)
		if err != nil {
			return err
		}
		err = create(code)
		if errors.Cause(err) == ErrDuplicateJoinCode {
			continue
		}
		return err
	}
	return errors.Errorf("no free join code after %d attempts", maxJoinCodeAttempts)
}

// JoinRequest redeems a subject or team join code.
type JoinRequest struct {
	JoinCode string `json:"joinCode" validate:"required"`
}

func (jr *JoinRequest) Validate(validate *validator.Validate) error {
	jr.JoinCode = NormalizeJoinCode(jr.JoinCode)
	return validate.Struct(jr)
}
