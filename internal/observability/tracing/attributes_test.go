package tracing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsSecrets(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("ledger.kind", "PAYMENT_CAPTURE"),
		attribute.String("webhook_secret", "shh"),
		attribute.String("Authorization", "Bearer x"),
	)

	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("ledger.kind"), attrs[0].Key)
}

func TestSafeErrorHidesMessage(t *testing.T) {
	err := SafeError(errors.New("card 4242 declined"))
	assert.NotContains(t, err.Error(), "4242")
	assert.Nil(t, SafeError(nil))
}
