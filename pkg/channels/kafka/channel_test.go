package kafka_test

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/composer/pkg/channels/kafka"
	"github.com/stretchr/testify/assert"
)

func TestCreateChannel_RequiresBrokers(t *testing.T) {
	t.Parallel()

	for _, brokers := range [][]string{nil, {""}} {
		_, _, err := kafka.CreateChannel(watermill.NopLogger{}, brokers, "cg-test")
		assert.ErrorIs(t, err, kafka.ErrNoBrokers)
	}
}
