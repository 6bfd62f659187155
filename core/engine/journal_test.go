package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/sponsored-bundle/core/testutil"
	"github.com/AvaProtocol/sponsored-bundle/model"
)

func TestJournalCountsRecordedAttempts(t *testing.T) {
	db := testutil.TestMustDB()
	defer db.Close()

	j := NewJournal(db, "0xabc")
	other := NewJournal(db, "0xdef")

	first := model.NewAttempt("0xabc", 100, 102)
	require.NoError(t, j.Record(first))
	require.NoError(t, j.Record(model.NewAttempt("0xabc", 101, 103)))
	require.NoError(t, other.Record(model.NewAttempt("0xdef", 101, 103)))

	// resolving rewrites the same key
	require.NoError(t, j.Resolve(first, "block_passed_without_inclusion", errors.New("late")))

	count, err := j.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	attempts, err := j.Attempts()
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, first.ID, attempts[0].ID)
	assert.Equal(t, "late", attempts[0].Error)
}

func TestJournalRejectsInvalidAttempt(t *testing.T) {
	db := testutil.TestMustDB()
	defer db.Close()

	j := NewJournal(db, "0xabc")
	assert.Error(t, j.Record(model.NewAttempt("0xabc", 100, 100)))

	count, err := j.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
