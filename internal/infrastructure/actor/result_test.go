package actor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/connector/internal/domain/erp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultSlot_Complete(t *testing.T) {
	slot := NewResultSlot[string]()
	assert.False(t, slot.IsCompleted())
	assert.False(t, slot.HasSucceeded())
	assert.False(t, slot.HasFailed())

	slot.Complete("ok")

	v, err := slot.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.True(t, slot.IsCompleted())
	assert.True(t, slot.HasSucceeded())
	assert.False(t, slot.HasFailed())

	select {
	case <-slot.Done():
	default:
		t.Fatal("done channel should be closed")
	}
}

func TestResultSlot_Fail(t *testing.T) {
	slot := NewResultSlot[int]()
	cause := errors.New("remote said no")

	slot.Fail(cause)

	v, err := slot.Wait(context.Background())
	assert.ErrorIs(t, err, cause)
	assert.Zero(t, v)
	assert.True(t, slot.HasFailed())
	assert.False(t, slot.HasSucceeded())
}

func TestResultSlot_FailWithNilErrorStillFails(t *testing.T) {
	slot := NewResultSlot[int]()
	slot.Fail(nil)

	_, err := slot.Wait(context.Background())
	assert.Error(t, err)
	assert.True(t, slot.HasFailed())
}

func TestResultSlot_SecondCompletionPanics(t *testing.T) {
	tests := []struct {
		name   string
		first  func(s *ResultSlot[int])
		second func(s *ResultSlot[int])
	}{
		{"complete twice", func(s *ResultSlot[int]) { s.Complete(1) }, func(s *ResultSlot[int]) { s.Complete(2) }},
		{"fail after complete", func(s *ResultSlot[int]) { s.Complete(1) }, func(s *ResultSlot[int]) { s.Fail(erp.ErrTimeout) }},
		{"complete after fail", func(s *ResultSlot[int]) { s.Fail(erp.ErrTimeout) }, func(s *ResultSlot[int]) { s.Complete(2) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slot := NewResultSlot[int]()
			tt.first(slot)

			assert.PanicsWithError(t, ErrSlotAlreadyCompleted.Error(), func() {
				tt.second(slot)
			})

			// the first result is kept
			if slot.HasSucceeded() {
				v, _ := slot.Wait(context.Background())
				assert.Equal(t, 1, v)
			} else {
				_, err := slot.Wait(context.Background())
				assert.ErrorIs(t, err, erp.ErrTimeout)
			}
		})
	}
}

func TestResultSlot_WaitHonoursContext(t *testing.T) {
	slot := NewResultSlot[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := slot.Wait(ctx)
	assert.ErrorIs(t, err, erp.ErrCancelled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, slot.IsCompleted())
}

func TestNewOperation_Validation(t *testing.T) {
	tenant := erp.NewTenantContext(uuid.New())
	fn := func(ctx context.Context) (int, error) { return 1, nil }

	tests := []struct {
		name    string
		tenant  erp.TenantContext
		kind    string
		timeout time.Duration
		fn      ExecuteFunc[int]
		wantErr error
	}{
		{"valid", tenant, "get_articles", time.Second, fn, nil},
		{"missing tenant", erp.TenantContext{}, "get_articles", time.Second, fn, erp.ErrInvalidArgument},
		{"bad hint", tenant.WithHint("SAP"), "get_articles", time.Second, fn, erp.ErrUnsupportedErpType},
		{"empty kind", tenant, "", time.Second, fn, erp.ErrInvalidArgument},
		{"zero timeout", tenant, "get_articles", 0, fn, erp.ErrInvalidArgument},
		{"negative timeout", tenant, "get_articles", -time.Second, fn, erp.ErrInvalidArgument},
		{"nil fn", tenant, "get_articles", time.Second, nil, erp.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := NewOperation(context.Background(), tt.tenant, tt.kind, tt.timeout, tt.fn)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, op)
				return
			}
			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, op.ID)
			assert.Equal(t, tt.tenant, op.Tenant)
			assert.Equal(t, tt.timeout, op.Info().Timeout)
			assert.False(t, op.Result.IsCompleted())
		})
	}
}

func TestOperation_ExecuteAndComplete(t *testing.T) {
	op, err := NewOperation(context.Background(), erp.NewTenantContext(uuid.New()), "double", time.Second,
		func(ctx context.Context) (int, error) { return 21 * 2, nil })
	require.NoError(t, err)

	v, err := op.Execute(context.Background())
	require.NoError(t, err)
	op.CompleteWithResult(v)

	got, err := op.Result.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	assert.Panics(t, func() { op.CompleteWithError(erp.ErrTimeout) })
}
