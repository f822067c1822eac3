// Package registration validates profile submissions and writes them to the
// member store, issuing member numbers for first-time registrations.
package registration

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/quipper/poc/membercard/pkg/common/apperr"
	"github.com/quipper/poc/membercard/pkg/common/logger"
	"github.com/quipper/poc/membercard/pkg/common/membernumber"
	"github.com/quipper/poc/membercard/pkg/common/metrics"
	"github.com/quipper/poc/membercard/pkg/repositories/members"
)

// Outcome tells whether Register inserted a new row or updated an existing one.
type Outcome string

const (
	Created Outcome = "created"
	Updated Outcome = "updated"
)

// ErrRegistrationFailed wraps every store failure surfaced by Register.
var ErrRegistrationFailed = errors.New("registration failed")

var (
	emailPattern = regexp.MustCompile(`^[^@]+@[^@]+\.[^@]+$`)
	phonePattern = regexp.MustCompile(`^[0-9]+$`)
)

// Validation messages shown to the user.
const (
	MsgRequiredMissing     = "required field missing"
	MsgInvalidEmail        = "invalid email"
	MsgInvalidPhone        = "invalid phone"
	MsgInvalidMemberNumber = "invalid member number"
	MsgMemberNumberTaken   = "member number already in use"
	MsgMemberNotFound      = "member not found"
)

// Input is a registration form submission. Email and PhoneNumber are optional.
type Input struct {
	ExternalID  string
	Name        string
	Region      string
	Email       string
	PhoneNumber string
}

func (in Input) normalized() Input {
	return Input{
		ExternalID:  strings.TrimSpace(in.ExternalID),
		Name:        strings.TrimSpace(in.Name),
		Region:      strings.TrimSpace(in.Region),
		Email:       strings.TrimSpace(in.Email),
		PhoneNumber: strings.TrimSpace(in.PhoneNumber),
	}
}

// Result is returned by a successful Register.
type Result struct {
	Outcome Outcome
	Member  *members.Member
}

type Service struct {
	repo    members.Repository
	numbers *membernumber.Generator
	metrics *metrics.Metrics
}

func NewService(repo members.Repository, numbers *membernumber.Generator, m *metrics.Metrics) *Service {
	if numbers == nil {
		numbers = membernumber.New()
	}
	return &Service{repo: repo, numbers: numbers, metrics: m}
}

// Validate checks in and returns the first violation as a validation error.
func Validate(in Input) error {
	in = in.normalized()
	if in.ExternalID == "" || in.Name == "" || in.Region == "" {
		return apperr.Validation(MsgRequiredMissing)
	}
	if err := validateEmail(in.Email); err != nil {
		return err
	}
	if in.PhoneNumber != "" && !phonePattern.MatchString(in.PhoneNumber) {
		return apperr.Validation(MsgInvalidPhone)
	}
	return nil
}

func validateEmail(email string) error {
	if email != "" && !emailPattern.MatchString(email) {
		return apperr.Validation(MsgInvalidEmail)
	}
	return nil
}

// Register inserts a member for an unknown external id or overwrites the
// profile fields of a known one. An existing member number is never changed.
func (s *Service) Register(ctx context.Context, in Input) (*Result, error) {
	in = in.normalized()
	if err := Validate(in); err != nil {
		s.metrics.IncRegistration("invalid")
		return nil, err
	}

	var res Result
	err := s.repo.RunInTx(ctx, func(ctx context.Context, tx members.Tx) error {
		existing, err := tx.FindByExternalID(ctx, in.ExternalID)
		switch {
		case err == nil:
			return s.update(ctx, tx, existing, in, &res)
		case errors.Is(err, members.ErrNotFound):
			return s.insert(ctx, tx, in, &res)
		default:
			return fmt.Errorf("lookup %s: %w", in.ExternalID, err)
		}
	})
	if err != nil {
		s.metrics.IncRegistration("failed")
		logger.Error("register %s: %v", in.ExternalID, err)
		return nil, apperr.Wrap(apperr.KindSystem, "register member", fmt.Errorf("%w: %w", ErrRegistrationFailed, err))
	}
	s.metrics.IncRegistration(string(res.Outcome))
	logger.Info("register %s: %s member_number=%s", in.ExternalID, res.Outcome, res.Member.MemberNumber)
	return &res, nil
}

func (s *Service) update(ctx context.Context, tx members.Tx, existing *members.Member, in Input, res *Result) error {
	err := tx.UpdateProfile(ctx, in.ExternalID, members.ProfileUpdate{
		Name:        &in.Name,
		Region:      &in.Region,
		Email:       &in.Email,
		PhoneNumber: &in.PhoneNumber,
	})
	if err != nil {
		return fmt.Errorf("update %s: %w", in.ExternalID, err)
	}
	updated, err := tx.FindByExternalID(ctx, in.ExternalID)
	if err != nil {
		return fmt.Errorf("reload %s: %w", in.ExternalID, err)
	}
	logger.Debug("register %s: kept member_number=%s", in.ExternalID, existing.MemberNumber)
	res.Outcome = Updated
	res.Member = updated
	return nil
}

func (s *Service) insert(ctx context.Context, tx members.Tx, in Input, res *Result) error {
	seq, err := tx.MaxMemberSequence(ctx)
	if err != nil {
		return fmt.Errorf("max member sequence: %w", err)
	}
	for attempt := 0; ; attempt++ {
		number, err := s.numbers.Candidate(seq, attempt)
		if errors.Is(err, membernumber.ErrOutOfRange) {
			number, err = lowestFree(ctx, tx)
		}
		if err != nil {
			return err
		}
		m := &members.Member{
			ExternalID:   in.ExternalID,
			Name:         in.Name,
			Region:       in.Region,
			Email:        in.Email,
			PhoneNumber:  in.PhoneNumber,
			MemberNumber: number,
		}
		err = tx.Insert(ctx, m)
		if errors.Is(err, members.ErrDuplicateMemberNumber) {
			logger.Warn("register %s: member number %s taken, retrying", in.ExternalID, number)
			continue
		}
		if err != nil {
			return fmt.Errorf("insert %s: %w", in.ExternalID, err)
		}
		res.Outcome = Created
		res.Member = m
		return nil
	}
}

// lowestFree reuses the smallest unused suffix once the sequence has passed
// the four-digit range.
func lowestFree(ctx context.Context, tx members.Tx) (string, error) {
	free, err := tx.LowestFreeSequence(ctx, membernumber.MaxSequence)
	if err != nil {
		return "", fmt.Errorf("lowest free member sequence: %w", err)
	}
	number, err := membernumber.FromFree(free)
	if err != nil {
		return "", err
	}
	logger.Warn("member sequence past %d, reusing %s", membernumber.MaxSequence, number)
	return number, nil
}

// ProfileInput is an update_profile submission. An empty MemberNumber keeps
// the current one; Email is always written and may clear the address.
type ProfileInput struct {
	Email        string
	MemberNumber string
}

// UpdateProfile changes the email and optionally the member number of an
// existing member.
func (s *Service) UpdateProfile(ctx context.Context, externalID string, in ProfileInput) (*members.Member, error) {
	externalID = strings.TrimSpace(externalID)
	email := strings.TrimSpace(in.Email)
	number := strings.TrimSpace(in.MemberNumber)

	if externalID == "" {
		s.metrics.IncProfileUpdate("invalid")
		return nil, apperr.Validation(MsgRequiredMissing)
	}
	if err := validateEmail(email); err != nil {
		s.metrics.IncProfileUpdate("invalid")
		return nil, err
	}
	if number != "" && !membernumber.Valid(number) {
		s.metrics.IncProfileUpdate("invalid")
		return nil, apperr.Validation(MsgInvalidMemberNumber)
	}

	fields := members.ProfileUpdate{Email: &email}
	if number != "" {
		fields.MemberNumber = &number
	}

	var out *members.Member
	err := s.repo.RunInTx(ctx, func(ctx context.Context, tx members.Tx) error {
		if err := tx.UpdateProfile(ctx, externalID, fields); err != nil {
			return err
		}
		m, err := tx.FindByExternalID(ctx, externalID)
		if err != nil {
			return err
		}
		out = m
		return nil
	})
	switch {
	case err == nil:
		s.metrics.IncProfileUpdate("updated")
		logger.Info("update profile %s: member_number=%s", externalID, out.MemberNumber)
		return out, nil
	case errors.Is(err, members.ErrNotFound):
		s.metrics.IncProfileUpdate("not_found")
		return nil, apperr.Wrap(apperr.KindNotFound, MsgMemberNotFound, err)
	case errors.Is(err, members.ErrConstraintViolation):
		s.metrics.IncProfileUpdate("conflict")
		return nil, apperr.Wrap(apperr.KindConflict, MsgMemberNumberTaken, err)
	default:
		s.metrics.IncProfileUpdate("failed")
		logger.Error("update profile %s: %v", externalID, err)
		return nil, apperr.Wrap(apperr.KindSystem, "profile update failed", err)
	}
}
