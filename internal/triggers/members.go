package triggers

import (
	"context"
	"strings"
	"time"

	"church-automation/internal/common/errors"
	"church-automation/internal/common/logging"
	"church-automation/internal/common/utils"
	"church-automation/internal/hours"
	"church-automation/internal/models"
	"church-automation/internal/storage"
)

// MemberService records new members and announces them to the engine.
// Stored members also feed the daily birthday and anniversary sweep.
type MemberService struct {
	store     storage.MemberDirectory
	processor Processor
	clock     hours.Clock
	logger    logging.Logger
}

func NewMemberService(store storage.MemberDirectory, processor Processor, clock hours.Clock, logger logging.Logger) *MemberService {
	if clock == nil {
		clock = hours.SystemClock{}
	}
	return &MemberService{store: store, processor: processor, clock: clock, logger: logger}
}

// Record validates and stores the member, then emits MEMBER_JOINED.
func (s *MemberService) Record(ctx context.Context, member models.Member) (*models.Member, error) {
	if member.ChurchID == "" {
		return nil, errors.ValidationError("member church_id is required")
	}
	if strings.TrimSpace(member.Name) == "" {
		return nil, errors.ValidationError("member name is required")
	}
	now := s.clock.Now().UTC()
	if member.ID == "" {
		member.ID = utils.NewID()
	}
	if member.JoinedAt.IsZero() {
		member.JoinedAt = now
	}
	if member.CreatedAt.IsZero() {
		member.CreatedAt = now
	}
	member.IsActive = true

	if err := s.store.CreateMember(ctx, &member); err != nil {
		return nil, err
	}

	s.logger.Info("Member recorded",
		logging.String("member_id", member.ID),
		logging.String("church_id", member.ChurchID),
	)
	s.processor.ProcessTrigger(ctx, NewMemberJoinedEvent(member.ChurchID, member.ID, member.Name, member.Email, member.Phone))
	return &member, nil
}

// MemberDatesSource emits BIRTHDAY and ANNIVERSARY events for members
// whose dates fall on the sweep day. It runs once per day from the
// scheduler's daily cron.
type MemberDatesSource struct {
	store     storage.MemberDirectory
	processor Processor
	clock     hours.Clock
	logger    logging.Logger
}

func NewMemberDatesSource(store storage.MemberDirectory, processor Processor, clock hours.Clock, logger logging.Logger) *MemberDatesSource {
	if clock == nil {
		clock = hours.SystemClock{}
	}
	return &MemberDatesSource{store: store, processor: processor, clock: clock, logger: logger}
}

func (s *MemberDatesSource) Name() string { return "member_dates" }

// Emit fires one event per member with a birthday or anniversary today.
func (s *MemberDatesSource) Emit(ctx context.Context) error {
	now := s.clock.Now()
	month, day := now.Month(), now.Day()

	birthdays, err := s.store.ListMembersWithBirthday(ctx, month, day)
	if err != nil {
		return err
	}
	for _, member := range birthdays {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Info("Birthday today",
			logging.String("member_id", member.ID),
			logging.String("church_id", member.ChurchID),
		)
		s.processor.ProcessTrigger(ctx, NewBirthdayEvent(member))
	}

	anniversaries, err := s.store.ListMembersWithAnniversary(ctx, month, day)
	if err != nil {
		return err
	}
	for _, member := range anniversaries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		years := anniversaryYears(*member.AnniversaryDate, now)
		s.logger.Info("Anniversary today",
			logging.String("member_id", member.ID),
			logging.String("church_id", member.ChurchID),
			logging.Int("years", years),
		)
		s.processor.ProcessTrigger(ctx, NewAnniversaryEvent(member, "wedding", years))
	}
	return nil
}

func anniversaryYears(date, now time.Time) int {
	years := now.Year() - date.Year()
	if years < 0 {
		return 0
	}
	return years
}
