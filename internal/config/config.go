// Package config loads the participant configuration described in
// spec.md §6: domain tag, interface pinning, fragmentation size, receive
// buffer sizing, and additional unicast SPDP peers for bootstrap.
//
// Loading follows the teacher's env-var-with-fallback convention (see
// every service main.go in the source monorepo), but carries no secret
// material — DDS-Security is an explicit Non-goal, so there is nothing
// here for a secrets manager like Vault to protect.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults mirror the values named in spec.md §6.
const (
	DefaultFragmentSize        = 1344
	DefaultUDPReceiveBufferSize = 1 << 20 // 1 MiB
	DefaultLeaseDuration        = 20 * time.Second
	DefaultAnnouncePeriod       = DefaultLeaseDuration / 3
	DefaultSPDPPeriod           = 5 * time.Second
	DefaultDiscoveryTick        = 500 * time.Millisecond
)

// ParticipantConfig is the configuration object accepted by the
// participant factory (spec.md §6).
type ParticipantConfig struct {
	DomainID             uint32
	DomainTag            string
	InterfaceName        string
	ParticipantID        uint32
	FragmentSize         uint32
	UDPReceiveBufferSize int
	AdditionalPeers      []string // additional SPDP peer locators for unicast discovery bootstrap
	LeaseDuration        time.Duration

	// Optional ambient integrations; both are no-ops when empty.
	OTLPMetricsEndpoint string
	EventBridgeURL      string
	AnnounceCronExpr    string // optional cron expression nudging an out-of-cycle SPDP announcement
}

// DefaultParticipantConfig returns a config for domainID with every
// optional field at its spec-mandated default.
func DefaultParticipantConfig(domainID uint32) ParticipantConfig {
	return ParticipantConfig{
		DomainID:             domainID,
		DomainTag:            "",
		FragmentSize:         DefaultFragmentSize,
		UDPReceiveBufferSize: DefaultUDPReceiveBufferSize,
		LeaseDuration:        DefaultLeaseDuration,
	}
}

// LoadFromEnv builds a ParticipantConfig from environment variables,
// falling back to DefaultParticipantConfig(domainID) for anything unset.
// This is the pattern every teacher main.go uses for its own settings
// (vault address/token/secret path), adapted here to plain config values
// since no secret store is needed.
func LoadFromEnv(domainID uint32) (ParticipantConfig, error) {
	cfg := DefaultParticipantConfig(domainID)

	if v := os.Getenv("RTPS_DOMAIN_TAG"); v != "" {
		cfg.DomainTag = v
	}
	if v := os.Getenv("RTPS_INTERFACE_NAME"); v != "" {
		cfg.InterfaceName = v
	}
	if v := os.Getenv("RTPS_PARTICIPANT_ID"); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return cfg, fmt.Errorf("parse RTPS_PARTICIPANT_ID: %w", err)
		}
		cfg.ParticipantID = uint32(id)
	}
	if v := os.Getenv("RTPS_FRAGMENT_SIZE"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return cfg, fmt.Errorf("parse RTPS_FRAGMENT_SIZE: %w", err)
		}
		cfg.FragmentSize = uint32(n)
	}
	if v := os.Getenv("RTPS_UDP_RECEIVE_BUFFER_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("parse RTPS_UDP_RECEIVE_BUFFER_SIZE: %w", err)
		}
		cfg.UDPReceiveBufferSize = n
	}
	if v := os.Getenv("RTPS_ADDITIONAL_PEERS"); v != "" {
		cfg.AdditionalPeers = strings.Split(v, ",")
	}
	if v := os.Getenv("RTPS_LEASE_DURATION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("parse RTPS_LEASE_DURATION: %w", err)
		}
		cfg.LeaseDuration = d
	}
	cfg.OTLPMetricsEndpoint = os.Getenv("RTPS_OTLP_METRICS_ENDPOINT")
	cfg.EventBridgeURL = os.Getenv("RTPS_EVENT_BRIDGE_URL")
	cfg.AnnounceCronExpr = os.Getenv("RTPS_ANNOUNCE_CRON")

	return cfg, nil
}

// AnnouncePeriod is lease_duration / 3, per spec.md §5 task 7.
func (c ParticipantConfig) AnnouncePeriod() time.Duration {
	if c.LeaseDuration <= 0 {
		return DefaultAnnouncePeriod
	}
	return c.LeaseDuration / 3
}
