package config_test

import (
	"testing"
	"time"

	"github.com/arc-self/rtps/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultParticipantConfigUsesSpecDefaults(t *testing.T) {
	cfg := config.DefaultParticipantConfig(7)
	assert.EqualValues(t, 7, cfg.DomainID)
	assert.EqualValues(t, config.DefaultFragmentSize, cfg.FragmentSize)
	assert.Equal(t, config.DefaultUDPReceiveBufferSize, cfg.UDPReceiveBufferSize)
	assert.Equal(t, config.DefaultLeaseDuration, cfg.LeaseDuration)
	assert.Empty(t, cfg.DomainTag)
}

func TestLoadFromEnvOverridesDefaults(t *testing.T) {
	t.Setenv("RTPS_DOMAIN_TAG", "lab-a")
	t.Setenv("RTPS_INTERFACE_NAME", "eth0")
	t.Setenv("RTPS_PARTICIPANT_ID", "3")
	t.Setenv("RTPS_FRAGMENT_SIZE", "1200")
	t.Setenv("RTPS_UDP_RECEIVE_BUFFER_SIZE", "2097152")
	t.Setenv("RTPS_ADDITIONAL_PEERS", "10.0.0.1:7410,10.0.0.2:7410")
	t.Setenv("RTPS_LEASE_DURATION", "30s")
	t.Setenv("RTPS_OTLP_METRICS_ENDPOINT", "otel-collector:4317")
	t.Setenv("RTPS_EVENT_BRIDGE_URL", "nats://localhost:4222")
	t.Setenv("RTPS_ANNOUNCE_CRON", "*/5 * * * *")

	cfg, err := config.LoadFromEnv(1)
	require.NoError(t, err)
	assert.Equal(t, "lab-a", cfg.DomainTag)
	assert.Equal(t, "eth0", cfg.InterfaceName)
	assert.EqualValues(t, 3, cfg.ParticipantID)
	assert.EqualValues(t, 1200, cfg.FragmentSize)
	assert.Equal(t, 2097152, cfg.UDPReceiveBufferSize)
	assert.Equal(t, []string{"10.0.0.1:7410", "10.0.0.2:7410"}, cfg.AdditionalPeers)
	assert.Equal(t, 30*time.Second, cfg.LeaseDuration)
	assert.Equal(t, "otel-collector:4317", cfg.OTLPMetricsEndpoint)
	assert.Equal(t, "nats://localhost:4222", cfg.EventBridgeURL)
	assert.Equal(t, "*/5 * * * *", cfg.AnnounceCronExpr)
}

func TestLoadFromEnvUnsetFallsBackToDefaults(t *testing.T) {
	cfg, err := config.LoadFromEnv(5)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultParticipantConfig(5).FragmentSize, cfg.FragmentSize)
	assert.Equal(t, config.DefaultParticipantConfig(5).LeaseDuration, cfg.LeaseDuration)
}

func TestLoadFromEnvBadParticipantIDReturnsError(t *testing.T) {
	t.Setenv("RTPS_PARTICIPANT_ID", "not-a-number")
	_, err := config.LoadFromEnv(1)
	assert.Error(t, err)
}

func TestLoadFromEnvBadFragmentSizeReturnsError(t *testing.T) {
	t.Setenv("RTPS_FRAGMENT_SIZE", "xyz")
	_, err := config.LoadFromEnv(1)
	assert.Error(t, err)
}

func TestLoadFromEnvBadLeaseDurationReturnsError(t *testing.T) {
	t.Setenv("RTPS_LEASE_DURATION", "not-a-duration")
	_, err := config.LoadFromEnv(1)
	assert.Error(t, err)
}

func TestAnnouncePeriodIsLeaseDurationOverThree(t *testing.T) {
	cfg := config.DefaultParticipantConfig(1)
	cfg.LeaseDuration = 30 * time.Second
	assert.Equal(t, 10*time.Second, cfg.AnnouncePeriod())
}

func TestAnnouncePeriodFallsBackWhenLeaseDurationNonPositive(t *testing.T) {
	cfg := config.DefaultParticipantConfig(1)
	cfg.LeaseDuration = 0
	assert.Equal(t, config.DefaultAnnouncePeriod, cfg.AnnouncePeriod())

	cfg.LeaseDuration = -time.Second
	assert.Equal(t, config.DefaultAnnouncePeriod, cfg.AnnouncePeriod())
}
