package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/plaenen/commercecore/pkg/domain"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to domain.Status
		allowed  bool
	}{
		{domain.StatusDraft, domain.StatusActive, true},
		{domain.StatusDraft, domain.StatusArchived, true},
		{domain.StatusActive, domain.StatusArchived, true},
		{domain.StatusActive, domain.StatusDraft, false},
		{domain.StatusArchived, domain.StatusActive, false},
		{domain.StatusArchived, domain.StatusDraft, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

type counter struct {
	domain.Root
	N int `json:"n"`
}

func (c *counter) state() (json.RawMessage, error) { return json.Marshal(c) }

func TestRootMutateProtocol(t *testing.T) {
	c := &counter{Root: domain.NewRoot("C1", "corr-1")}
	c.Emit("counter.created", "u1", nil, mustState(t, c))

	require.Len(t, c.UncommittedEvents(), 1)
	require.Equal(t, int64(0), c.UncommittedEvents()[0].Version)

	err := c.Mutate("counter.incremented", "u1", c.state, func() error {
		c.N++
		return nil
	})
	require.NoError(t, err)

	events := c.UncommittedEvents()
	require.Len(t, events, 2)
	ev := events[1]
	require.Equal(t, int64(1), ev.Version)
	require.Equal(t, int64(1), c.Version())
	require.Equal(t, "corr-1", ev.CorrelationID)

	var prior, next counter
	require.NoError(t, json.Unmarshal(ev.Payload.PriorState, &prior))
	require.NoError(t, json.Unmarshal(ev.Payload.NewState, &next))
	require.Equal(t, 0, prior.N)
	require.Equal(t, 1, next.N)

	c.ClearUncommittedEvents()
	require.Empty(t, c.UncommittedEvents())
}

func TestRootMutateFailureEmitsNothing(t *testing.T) {
	c := &counter{Root: domain.NewRoot("C2", "corr-2")}
	boom := domain.RuleViolation("cannot increment")

	err := c.Mutate("counter.incremented", "u1", c.state, func() error { return boom })
	require.ErrorIs(t, err, domain.ErrDomainRule)
	require.Empty(t, c.UncommittedEvents())
	require.Equal(t, int64(0), c.Version())
}

func mustState(t *testing.T, c *counter) json.RawMessage {
	t.Helper()
	data, err := c.state()
	require.NoError(t, err)
	return data
}
