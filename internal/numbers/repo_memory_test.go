package numbers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepo_PreservesInsertionOrder(t *testing.T) {
	r := NewMemoryRepo()
	r.AddOwned(OwnedNumber{UserID: "u1", Number: "+19015550100", AreaCode: "901"})
	r.AddOwned(OwnedNumber{UserID: "u1", Number: "+16155550100", AreaCode: "615"})
	r.AddOwned(OwnedNumber{UserID: "u2", Number: "+12125550100", AreaCode: "212"})

	got, err := r.ListOwned(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "+19015550100", got[0].Number)
	assert.Equal(t, "+16155550100", got[1].Number)
}

func TestMemoryRepo_AgentPhone(t *testing.T) {
	r := NewMemoryRepo()
	_, err := r.AgentPhone(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrAgentPhoneNotFound)

	r.SetAgentPhone("u1", "+16155550199")
	p, err := r.AgentPhone(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "+16155550199", p)
}
