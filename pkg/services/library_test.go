package services_test

import (
	"testing"

	"github.com/dukex/composer/pkg/mocks"
	"github.com/dukex/composer/pkg/models"
	"github.com/dukex/composer/pkg/services"
	"github.com/dukex/composer/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestLibrary_Entities(t *testing.T) {
	api := &mocks.MockAPI{}
	api.On("ListEntities", mock.Anything).Return([]models.Entity{
		*testutil.CreateTestAction(testutil.WithID("a-1"), testutil.WithName("summarize")),
		*testutil.CreateTestAction(testutil.WithID("a-2"), testutil.WithName("translate")),
		*testutil.CreateTestAction(testutil.WithID("self"), testutil.WithName("summarize_twice")),
	}, nil)
	api.On("ListTools", mock.Anything).Return([]models.Tool{{Name: "web_search"}}, nil)

	lib := services.NewLibrary(api, nil, "")

	entities, err := lib.Entities(t.Context(), "summ", "self")
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "a-1", entities[0].ID)
}
