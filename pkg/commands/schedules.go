package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/plaenen/commercecore/pkg/domain/schedule"
	"github.com/plaenen/commercecore/pkg/idgen"
	"github.com/plaenen/commercecore/pkg/projection"
	"github.com/plaenen/commercecore/pkg/uow"
)

// ScheduleService handles schedule commands.
type ScheduleService struct {
	*core
}

func NewScheduleService(m *uow.Manager, router *projection.Router, logger *slog.Logger) *ScheduleService {
	return &ScheduleService{core: newCore(m, router, logger)}
}

type CreateSchedule struct {
	Envelope
	ScheduleID string
	TargetID   string `valid:"required"`
	TargetKind string `valid:"required"`
}

type AddScheduleEntry struct {
	Envelope
	ScheduleID      string `valid:"required"`
	ExpectedVersion int64
	EntryID         string
	Kind            schedule.EntryKind `valid:"required"`
	StartAt         time.Time
	EndAt           *time.Time
}

type ActivateScheduleEntry struct {
	Envelope
	ScheduleID      string `valid:"required"`
	ExpectedVersion int64
	EntryID         string `valid:"required"`
}

type CompleteScheduleEntry struct {
	Envelope
	ScheduleID      string `valid:"required"`
	ExpectedVersion int64
	EntryID         string `valid:"required"`
}

type CancelScheduleEntry struct {
	Envelope
	ScheduleID      string `valid:"required"`
	ExpectedVersion int64
	EntryID         string `valid:"required"`
}

func (s *ScheduleService) Create(ctx context.Context, cmd CreateSchedule) (string, error) {
	if err := validate(&cmd); err != nil {
		return "", err
	}
	id := cmd.ScheduleID
	if id == "" {
		id = idgen.NewAggregateID("sch")
	}

	err := s.handle(ctx, "schedule.create", func(ctx context.Context) error {
		return s.uow.WithTransaction(ctx, func(ctx context.Context, repos *uow.Repositories) error {
			sc, err := schedule.New(schedule.CreateParams{
				ID:            id,
				CorrelationID: cmd.CorrelationID,
				UserID:        cmd.UserID,
				TargetID:      cmd.TargetID,
				TargetKind:    cmd.TargetKind,
			})
			if err != nil {
				return err
			}
			return s.persist(ctx, repos, sc)
		})
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// AddEntry appends a pending entry. Paired entries need an end after their
// start; single entries carry none.
func (s *ScheduleService) AddEntry(ctx context.Context, cmd AddScheduleEntry) (string, error) {
	if err := validate(&cmd); err != nil {
		return "", err
	}
	entryID := cmd.EntryID
	if entryID == "" {
		entryID = idgen.NewAggregateID("ent")
	}

	err := s.mutate(ctx, "schedule.add_entry", cmd.ScheduleID, cmd.ExpectedVersion,
		func(sc *schedule.Schedule) error {
			return sc.AddEntry(cmd.UserID, schedule.Entry{
				EntryID: entryID,
				Kind:    cmd.Kind,
				StartAt: cmd.StartAt,
				EndAt:   cmd.EndAt,
				State:   schedule.EntryPending,
			})
		})
	if err != nil {
		return "", err
	}
	return entryID, nil
}

func (s *ScheduleService) ActivateEntry(ctx context.Context, cmd ActivateScheduleEntry) error {
	if err := validate(&cmd); err != nil {
		return err
	}
	return s.mutate(ctx, "schedule.activate_entry", cmd.ScheduleID, cmd.ExpectedVersion,
		func(sc *schedule.Schedule) error { return sc.ActivateEntry(cmd.UserID, cmd.EntryID) })
}

func (s *ScheduleService) CompleteEntry(ctx context.Context, cmd CompleteScheduleEntry) error {
	if err := validate(&cmd); err != nil {
		return err
	}
	return s.mutate(ctx, "schedule.complete_entry", cmd.ScheduleID, cmd.ExpectedVersion,
		func(sc *schedule.Schedule) error { return sc.CompleteEntry(cmd.UserID, cmd.EntryID) })
}

func (s *ScheduleService) CancelEntry(ctx context.Context, cmd CancelScheduleEntry) error {
	if err := validate(&cmd); err != nil {
		return err
	}
	return s.mutate(ctx, "schedule.cancel_entry", cmd.ScheduleID, cmd.ExpectedVersion,
		func(sc *schedule.Schedule) error { return sc.CancelEntry(cmd.UserID, cmd.EntryID) })
}

func (s *ScheduleService) mutate(ctx context.Context, name, scheduleID string, expectedVersion int64,
	fn func(sc *schedule.Schedule) error) error {
	return s.handle(ctx, name, func(ctx context.Context) error {
		return s.uow.WithTransaction(ctx, func(ctx context.Context, repos *uow.Repositories) error {
			snap, err := getSnapshot(ctx, repos, scheduleID)
			if err != nil {
				return err
			}
			if err := checkVersion(expectedVersion, snap.Version); err != nil {
				return err
			}
			sc, err := schedule.Load(snap)
			if err != nil {
				return err
			}
			if err := fn(sc); err != nil {
				return err
			}
			return s.persist(ctx, repos, sc)
		})
	})
}
