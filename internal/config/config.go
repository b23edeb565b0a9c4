// Package config loads the immutable RoutingConfig value from
// environment variables once at process start, following a "load once,
// pass explicitly" convention: nothing here is read again after Load returns and
// no package-level state is kept; the returned value is threaded through
// constructors by the caller.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"mailflow/internal/exterrors"
)

// Route describes one app's destination queue.
type Route struct {
	QueueURL string
	Enabled  bool
	Aliases  map[string]bool
}

// Security is the security-gate policy block.
type Security struct {
	RequireSPF               bool
	RequireDKIM              bool
	RequireDMARC             bool
	MaxEmailsPerSenderPerHour int
	AllowedSenderDomains      map[string]bool
}

// Attachments is the attachment-handling policy block.
type Attachments struct {
	Bucket              string
	PresignedTTL        time.Duration
	MaxSize             int64
	AllowedContentTypes map[string]bool
	BlockedContentTypes map[string]bool
}

// Retention records retention windows; informational only, enforced
// out-of-band by storage-tier lifecycle policy (see DESIGN NOTES).
type Retention struct {
	RawEmailsDays   int
	AttachmentsDays int
	LogsDays        int
}

// RoutingConfig is the immutable, process-lifetime configuration value.
// Construct it only via Load.
type RoutingConfig struct {
	Domains map[string]bool
	Routes  map[string]Route

	DefaultQueue string
	UnknownQueue string

	Security    Security
	Attachments Attachments
	Retention   Retention

	RawEmailsBucket   string
	OutboundQueueURL  string
	IdempotencyTable  string
	DLQURL            string
	MetricsNamespace  string
}

const (
	defaultMaxEmailSize      = 40 << 20 // 40 MiB
	defaultMaxAttachmentSize = 35 << 20 // 35 MiB
	defaultPresignedTTL      = 7 * 24 * time.Hour
	defaultMaxEmailsPerHour  = 100
	defaultMetricsNamespace  = "Mailflow/API"
)

// routingMapEntry is the wire shape of one ROUTING_MAP value:
// {"queue_url": "...", "enabled": true, "aliases": [...]}.
type routingMapEntry struct {
	QueueURL string   `json:"queue_url"`
	Enabled  *bool    `json:"enabled"`
	Aliases  []string `json:"aliases"`
}

// Load reads RoutingConfig from environment variables and validates it.
// It is intended to be called exactly once, at process start.
func Load(getenv func(string) string) (*RoutingConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := &RoutingConfig{
		Domains:          map[string]bool{},
		Routes:           map[string]Route{},
		DefaultQueue:     getenv("DEFAULT_QUEUE_URL"),
		UnknownQueue:     getenv("DEFAULT_QUEUE_URL"),
		RawEmailsBucket:  getenv("RAW_EMAILS_BUCKET"),
		OutboundQueueURL: getenv("OUTBOUND_QUEUE_URL"),
		IdempotencyTable: getenv("IDEMPOTENCY_TABLE"),
		DLQURL:           getenv("DLQ_URL"),
		MetricsNamespace: defaultMetricsNamespace,
	}

	if ns := getenv("CLOUDWATCH_NAMESPACE"); ns != "" {
		cfg.MetricsNamespace = ns
	}

	if raw := getenv("ALLOWED_DOMAINS"); raw != "" {
		for _, d := range strings.Split(raw, ",") {
			d = strings.ToLower(strings.TrimSpace(d))
			if d != "" {
				cfg.Domains[d] = true
			}
		}
	}

	if raw := getenv("ROUTING_MAP"); raw != "" {
		var parsed map[string]routingMapEntry
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return nil, exterrors.Wrap(exterrors.KindConfig, "ROUTING_MAP is not valid JSON", err)
		}
		for app, entry := range parsed {
			enabled := true
			if entry.Enabled != nil {
				enabled = *entry.Enabled
			}
			aliases := make(map[string]bool, len(entry.Aliases))
			for _, a := range entry.Aliases {
				aliases[strings.ToLower(a)] = true
			}
			cfg.Routes[strings.ToLower(app)] = Route{
				QueueURL: entry.QueueURL,
				Enabled:  enabled,
				Aliases:  aliases,
			}
		}
	}

	cfg.Security = Security{
		RequireSPF:                envBool(getenv, "SECURITY_REQUIRE_SPF", false),
		RequireDKIM:                envBool(getenv, "SECURITY_REQUIRE_DKIM", false),
		RequireDMARC:               envBool(getenv, "SECURITY_REQUIRE_DMARC", false),
		MaxEmailsPerSenderPerHour:  envInt(getenv, "SECURITY_MAX_EMAILS_PER_SENDER_PER_HOUR", defaultMaxEmailsPerHour),
		AllowedSenderDomains:       envDomainSet(getenv, "SECURITY_ALLOWED_SENDER_DOMAINS"),
	}

	presignedTTL := defaultPresignedTTL
	if raw := getenv("PRESIGNED_URL_EXPIRATION_SECONDS"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			presignedTTL = time.Duration(secs) * time.Second
		}
	}
	maxAttachment := int64(defaultMaxAttachmentSize)
	if raw := getenv("MAX_ATTACHMENT_SIZE_BYTES"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
			maxAttachment = n
		}
	}
	cfg.Attachments = Attachments{
		Bucket:              getenv("ATTACHMENTS_BUCKET"),
		PresignedTTL:        presignedTTL,
		MaxSize:             maxAttachment,
		AllowedContentTypes: map[string]bool{}, // left empty; the file-type oracle's own whitelist decides what is allowed
		BlockedContentTypes: map[string]bool{},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the load-time invariants.
func (c *RoutingConfig) Validate() error {
	if len(c.Domains) == 0 {
		return exterrors.New(exterrors.KindConfig, "ALLOWED_DOMAINS must name at least one domain")
	}
	for app, r := range c.Routes {
		if r.QueueURL == "" {
			continue
		}
		u, err := url.Parse(r.QueueURL)
		if err != nil || u.Scheme == "" {
			return exterrors.New(exterrors.KindConfig, fmt.Sprintf("route %q has an invalid queue URL %q", app, r.QueueURL))
		}
	}
	if c.Attachments.Bucket == "" {
		return exterrors.New(exterrors.KindConfig, "ATTACHMENTS_BUCKET must be set")
	}
	if c.Attachments.MaxSize <= 0 {
		return exterrors.New(exterrors.KindConfig, "attachments.max-size must be > 0")
	}
	if c.Security.MaxEmailsPerSenderPerHour <= 0 {
		return exterrors.New(exterrors.KindConfig, "security.max-emails-per-sender-per-hour must be > 0")
	}
	return nil
}

func envBool(getenv func(string) string, key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(getenv(key)))
	switch v {
	case "":
		return def
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func envInt(getenv func(string) string, key string, def int) int {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envDomainSet(getenv func(string) string, key string) map[string]bool {
	raw := getenv(key)
	set := map[string]bool{}
	if raw == "" {
		return set
	}
	for _, d := range strings.Split(raw, ",") {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			set[d] = true
		}
	}
	return set
}

// MaxEmailSize is the fixed ingress size cap; it is not
// environment-configurable.
const MaxEmailSize = defaultMaxEmailSize
