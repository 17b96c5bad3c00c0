package entity_test

import (
	"testing"

	"github.com/dukex/composer/pkg/entity"
	"github.com/dukex/composer/pkg/models"
	"github.com/dukex/composer/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to models.EntityStatus
		want     bool
	}{
		{models.EntityStatusDraft, models.EntityStatusActive, true},
		{models.EntityStatusDraft, models.EntityStatusArchived, false},
		{models.EntityStatusActive, models.EntityStatusDeprecated, true},
		{models.EntityStatusActive, models.EntityStatusArchived, true},
		{models.EntityStatusActive, models.EntityStatusDraft, false},
		{models.EntityStatusDeprecated, models.EntityStatusArchived, true},
		{models.EntityStatusDeprecated, models.EntityStatusActive, false},
		{models.EntityStatusArchived, models.EntityStatusActive, false},
		{models.EntityStatusArchived, models.EntityStatusDraft, false},
		{models.EntityStatusArchived, models.EntityStatusArchived, true},
		{models.EntityStatusDraft, "PUBLISHED", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, entity.CanTransition(tt.from, tt.to))
		})
	}
}

func TestTransition(t *testing.T) {
	e := testutil.CreateTestEntity()

	require.NoError(t, entity.Transition(e, models.EntityStatusActive))
	assert.Equal(t, models.EntityStatusActive, e.Status)

	err := entity.Transition(e, models.EntityStatusDraft)
	require.ErrorIs(t, err, entity.ErrInvalidTransition)
	assert.Equal(t, models.EntityStatusActive, e.Status)

	require.ErrorIs(t, entity.Transition(e, "GONE"), entity.ErrUnknownStatus)
}

func TestNextStatuses_ArchivedIsTerminal(t *testing.T) {
	assert.Empty(t, entity.NextStatuses(models.EntityStatusArchived))
	assert.Equal(t, []models.EntityStatus{models.EntityStatusActive}, entity.NextStatuses(models.EntityStatusDraft))
}

func TestNormalizeTags(t *testing.T) {
	assert.Equal(t, []string{"nlp", "search"}, entity.NormalizeTags([]string{" nlp", "search", "", "nlp"}))
}

func TestValidateHierarchy(t *testing.T) {
	catalog := map[string]*models.Entity{
		"a": testutil.CreateTestEntity(testutil.WithID("a"), testutil.WithSteps(testutil.EntityStep("s", "b"))),
		"b": testutil.CreateTestEntity(testutil.WithID("b"), testutil.WithSteps(testutil.EntityStep("s", "root"))),
		"c": testutil.CreateTestEntity(testutil.WithID("c"), testutil.WithSteps(testutil.EntityStep("s", "d"))),
		"d": testutil.CreateTestEntity(testutil.WithID("d"), testutil.WithSteps(testutil.EntityStep("s", "c"))),
	}
	lookup := func(id string) (*models.Entity, bool) {
		e, ok := catalog[id]

		return e, ok
	}

	t.Run("indirect self reference", func(t *testing.T) {
		root := testutil.CreateTestEntity(testutil.WithID("root"), testutil.WithSteps(testutil.EntityStep("s", "a")))

		errs := entity.ValidateHierarchy(root, lookup)
		assert.True(t, errs.Has("planning.static_plan.steps", entity.CodeSelfReference))
	})

	t.Run("cycle below the entity terminates", func(t *testing.T) {
		root := testutil.CreateTestEntity(testutil.WithID("root"), testutil.WithSteps(testutil.EntityStep("s", "c")))

		errs := entity.ValidateHierarchy(root, lookup)
		assert.True(t, errs.Has("planning.static_plan.steps", entity.CodeCycle))
		assert.False(t, errs.Has("planning.static_plan.steps", entity.CodeSelfReference))
	})

	t.Run("unknown children are skipped", func(t *testing.T) {
		root := testutil.CreateTestEntity(testutil.WithID("root"), testutil.WithSteps(testutil.EntityStep("s", "missing")))

		assert.Empty(t, entity.ValidateHierarchy(root, lookup))
	})
}
