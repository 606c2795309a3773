package dialer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-orchestrator/internal/apperr"
	"voice-orchestrator/internal/numbers"
)

func TestBuildQueue(t *testing.T) {
	leads := []Lead{
		{ID: "1", Phone: "6155550101", State: "TN", Stage: "new"},
		{ID: "2", Phone: "  ", State: "TN", Stage: "new"},
		{ID: "3", Phone: "9015550101", State: "GA", Stage: "new"},
		{ID: "4", Phone: "6155550102", State: "tn", Stage: "contacted"},
	}

	t.Run("empty filters keep every dialable lead", func(t *testing.T) {
		items := BuildQueue(leads, nil, nil)
		require.Len(t, items, 3)
		for _, it := range items {
			assert.Equal(t, ItemQueued, it.Status)
			assert.Zero(t, it.Attempts)
		}
	})

	t.Run("state filter ignores case", func(t *testing.T) {
		items := BuildQueue(leads, []string{"TN"}, nil)
		require.Len(t, items, 2)
		assert.Equal(t, "1", items[0].LeadID)
		assert.Equal(t, "4", items[1].LeadID)
	})

	t.Run("state and stage combine", func(t *testing.T) {
		items := BuildQueue(leads, []string{"tn", "ga"}, []string{"new"})
		require.Len(t, items, 2)
		assert.Equal(t, "1", items[0].LeadID)
		assert.Equal(t, "3", items[1].LeadID)
	})

	t.Run("no match", func(t *testing.T) {
		assert.Empty(t, BuildQueue(leads, []string{"CA"}, nil))
	})
}

func TestNumbersSetup(t *testing.T) {
	ctx := context.Background()
	repo := numbers.NewMemoryRepo()
	setup := NumbersSetup{Numbers: repo}

	_, err := setup.Resolve(ctx, "u1")
	assert.Equal(t, apperr.CodeAgentPhoneMissing, apperr.CodeOf(err))

	repo.SetAgentPhone("u1", "+16155550199")
	_, err = setup.Resolve(ctx, "u1")
	assert.Equal(t, apperr.CodeNoOwnedNumbers, apperr.CodeOf(err))

	repo.AddOwned(numbers.OwnedNumber{UserID: "u1", Number: "+19015550100", AreaCode: "901"})
	repo.AddOwned(numbers.OwnedNumber{UserID: "u1", Number: "+16155550100", AreaCode: "615"})
	info, err := setup.Resolve(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, SetupInfo{AgentPhone: "+16155550199", FromNumber: "+19015550100"}, info)
}

func TestParseLeads(t *testing.T) {
	leads, err := ParseLeads([]byte(`
leads:
  - id: c-101
    name: Dana
    phone: "615-555-0101"
    state: TN
    stage: new
  - id: c-102
    phone: "9015550102"
`))
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, Lead{ID: "c-101", Name: "Dana", Phone: "615-555-0101", State: "TN", Stage: "new"}, leads[0])

	_, err = ParseLeads([]byte("leads:\n  - phone: \"1\"\n"))
	assert.Error(t, err)

	_, err = ParseLeads([]byte("leads: [unterminated"))
	assert.Error(t, err)
}
