package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"bikeshare/pkg/logger"
	"bikeshare/pkg/model"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockEnqueuer struct {
	tasks   []*asynq.Task
	options [][]asynq.Option
	err     error
}

func (m *mockEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.tasks = append(m.tasks, task)
	m.options = append(m.options, opts)
	return &asynq.TaskInfo{}, nil
}

type mockInspector struct {
	deleted []string
	errs    map[string]error
}

func (m *mockInspector) DeleteTask(queue, id string) error {
	m.deleted = append(m.deleted, queue+"/"+id)
	return m.errs[id]
}

func option(opts []asynq.Option, t asynq.OptionType) any {
	for _, opt := range opts {
		if opt.Type() == t {
			return opt.Value()
		}
	}
	return nil
}

func testBooking() *model.Booking {
	return &model.Booking{
		ReferenceCode: "ref-1",
		UnitID:        "bike-1",
		StartTime:     time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
		EndTime:       time.Date(2026, 5, 1, 11, 0, 0, 0, time.UTC),
		Status:        model.BookingStatusApproved,
	}
}

func TestBuildTransitionJobs(t *testing.T) {
	start, end := BuildTransitionJobs(testBooking())

	assert.Equal(t, "booking-start-ref-1", start.ID)
	assert.Equal(t, model.TransitionStartBooking, start.Action)
	assert.Equal(t, model.UnitStatusInUse, start.TargetUnitStatus)
	assert.Equal(t, model.BookingStatusActive, start.TargetBookingStatus)
	assert.Equal(t, testBooking().StartTime, start.FireAt)
	assert.Empty(t, start.CleanupJobIDs)

	assert.Equal(t, "booking-end-ref-1", end.ID)
	assert.Equal(t, model.TransitionEndBooking, end.Action)
	assert.Equal(t, model.UnitStatusAvailable, end.TargetUnitStatus)
	assert.Equal(t, model.BookingStatusCompleted, end.TargetBookingStatus)
	assert.Equal(t, testBooking().EndTime, end.FireAt)
	assert.Equal(t, []string{"booking-start-ref-1", "booking-end-ref-1"}, end.CleanupJobIDs)
}

func TestRegister_EnqueuesAtFireInstant(t *testing.T) {
	client := &mockEnqueuer{}
	s := New(client, &mockInspector{}, "transitions", 5, logger.NewNop())
	_, end := BuildTransitionJobs(testBooking())

	require.NoError(t, s.Register(context.Background(), end))

	require.Len(t, client.tasks, 1)
	assert.Equal(t, TypeBookingTransition, client.tasks[0].Type())
	opts := client.options[0]
	assert.Equal(t, "booking-end-ref-1", option(opts, asynq.TaskIDOpt))
	assert.Equal(t, "transitions", option(opts, asynq.QueueOpt))
	assert.Equal(t, 5, option(opts, asynq.MaxRetryOpt))
	assert.Equal(t, end.FireAt, option(opts, asynq.ProcessAtOpt))

	decoded, err := ParseTransitionTask(client.tasks[0])
	require.NoError(t, err)
	assert.Equal(t, end.ID, decoded.ID)
	assert.Equal(t, end.CleanupJobIDs, decoded.CleanupJobIDs)
	assert.True(t, end.WindowStart.Equal(decoded.WindowStart))
}

func TestRegister_DuplicateIsSuccess(t *testing.T) {
	client := &mockEnqueuer{err: fmt.Errorf("enqueue: %w", asynq.ErrTaskIDConflict)}
	s := New(client, &mockInspector{}, "transitions", 5, logger.NewNop())

	start, _ := BuildTransitionJobs(testBooking())
	assert.NoError(t, s.Register(context.Background(), start))
}

func TestRegister_Failure(t *testing.T) {
	cause := errors.New("redis: connection refused")
	s := New(&mockEnqueuer{err: cause}, &mockInspector{}, "transitions", 5, logger.NewNop())

	start, _ := BuildTransitionJobs(testBooking())
	assert.ErrorIs(t, s.Register(context.Background(), start), cause)
}

func TestDeregister(t *testing.T) {
	boom := errors.New("redis down")
	insp := &mockInspector{errs: map[string]error{
		"gone":    fmt.Errorf("asynq: %w", asynq.ErrTaskNotFound),
		"noqueue": fmt.Errorf("asynq: %w", asynq.ErrQueueNotFound),
		"broken":  boom,
	}}
	s := New(&mockEnqueuer{}, insp, "transitions", 5, logger.NewNop())

	assert.NoError(t, s.Deregister(context.Background(), "present"))
	assert.NoError(t, s.Deregister(context.Background(), "gone"))
	assert.NoError(t, s.Deregister(context.Background(), "noqueue"))
	assert.ErrorIs(t, s.Deregister(context.Background(), "broken"), boom)
	assert.Equal(t, "transitions/present", insp.deleted[0])
}

func TestCancelBooking_AttemptsBothJobs(t *testing.T) {
	insp := &mockInspector{errs: map[string]error{"booking-start-ref-1": errors.New("redis down")}}
	s := New(&mockEnqueuer{}, insp, "transitions", 5, logger.NewNop())

	err := s.CancelBooking(context.Background(), "ref-1")

	assert.Error(t, err)
	assert.Equal(t, []string{"transitions/booking-start-ref-1", "transitions/booking-end-ref-1"}, insp.deleted)
}

func TestRescheduleBooking(t *testing.T) {
	client := &mockEnqueuer{}
	insp := &mockInspector{}
	s := New(client, insp, "transitions", 5, logger.NewNop())

	b := testBooking()
	b.StartTime = b.StartTime.Add(time.Hour)
	b.EndTime = b.EndTime.Add(time.Hour)
	require.NoError(t, s.RescheduleBooking(context.Background(), b))

	assert.Len(t, insp.deleted, 2)
	require.Len(t, client.options, 2)
	assert.Equal(t, b.StartTime, option(client.options[0], asynq.ProcessAtOpt))
	assert.Equal(t, b.EndTime, option(client.options[1], asynq.ProcessAtOpt))
}

func TestParseTransitionTask_Errors(t *testing.T) {
	_, err := ParseTransitionTask(asynq.NewTask("other:type", []byte(`{}`)))
	assert.Error(t, err)

	_, err = ParseTransitionTask(asynq.NewTask(TypeBookingTransition, []byte(`{not json`)))
	assert.Error(t, err)
}
