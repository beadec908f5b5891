package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "simulated", cfg.PaymentProvider)
	assert.Equal(t, "cad", cfg.Currency)
	assert.Equal(t, time.Hour, cfg.CheckoutSessionTTL)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, int64(1<<20), cfg.MaxRequestBodySize)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("CHECKOUT_SESSION_TTL", "45m")
	t.Setenv("CURRENCY", "USD")
	t.Setenv("DB_PORT", "6543")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.HTTPPort)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 45*time.Minute, cfg.CheckoutSessionTTL)
	assert.Equal(t, "usd", cfg.Currency)
	assert.Equal(t, 6543, cfg.Credentials().Port)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"stripe without key", map[string]string{"PAYMENT_PROVIDER": "stripe"}},
		{"unknown provider", map[string]string{"PAYMENT_PROVIDER": "paypal"}},
		{"bad currency", map[string]string{"CURRENCY": "dollars"}},
		{"zero ttl", map[string]string{"CHECKOUT_SESSION_TTL": "0s"}},
		{"bad port", map[string]string{"DB_PORT": "postgres"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_Stripe(t *testing.T) {
	t.Setenv("PAYMENT_PROVIDER", "Stripe")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "stripe", cfg.PaymentProvider)
}
