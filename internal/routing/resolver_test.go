package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailflow/internal/config"
	"mailflow/internal/email"
)

func testRoutingConfig() *config.RoutingConfig {
	return &config.RoutingConfig{
		DefaultQueue: "q://default",
		Routes: map[string]config.Route{
			"billing": {QueueURL: "q://billing", Enabled: true, Aliases: map[string]bool{"invoices": true}},
			"a":       {QueueURL: "qA", Enabled: true},
			"b":       {QueueURL: "qB", Enabled: true},
			"legacy":  {QueueURL: "q://legacy", Enabled: false},
		},
	}
}

func emailTo(addrs ...string) *email.Email {
	e := &email.Email{}
	for _, a := range addrs {
		e.To = append(e.To, email.Address{Address: a})
	}
	return e
}

func TestResolveSimpleRouting(t *testing.T) {
	dests := Resolve(testRoutingConfig(), emailTo("_billing@acme.com"))
	require.Len(t, dests, 1)
	assert.Equal(t, "billing", dests[0].AppName)
	assert.Equal(t, "q://billing", dests[0].QueueURL)
}

func TestResolveMultiAppFanout(t *testing.T) {
	dests := Resolve(testRoutingConfig(), emailTo("_a@d.com", "_b@d.com"))
	require.Len(t, dests, 2)
	assert.Equal(t, "a", dests[0].AppName)
	assert.Equal(t, "b", dests[1].AppName)
}

func TestResolveNoRecognizedAppsFallsBackToDefault(t *testing.T) {
	// P1: the resolver returns >= 1 destination even with no "_" addresses.
	dests := Resolve(testRoutingConfig(), emailTo("plain@acme.com"))
	require.Len(t, dests, 1)
	assert.Equal(t, "default", dests[0].AppName)
	assert.True(t, dests[0].Default)
}

func TestResolveAliasMatch(t *testing.T) {
	dests := Resolve(testRoutingConfig(), emailTo("_invoices@acme.com"))
	require.Len(t, dests, 1)
	assert.Equal(t, "billing", dests[0].AppName)
}

func TestResolveDisabledRouteFallsBackToDefault(t *testing.T) {
	dests := Resolve(testRoutingConfig(), emailTo("_legacy@acme.com"))
	require.Len(t, dests, 1)
	assert.Equal(t, "default", dests[0].AppName)
}

func TestResolveUnknownAppFallsBackToDefault(t *testing.T) {
	dests := Resolve(testRoutingConfig(), emailTo("_unknown@acme.com"))
	require.Len(t, dests, 1)
	assert.Equal(t, "default", dests[0].AppName)
}

func TestResolveIsPure(t *testing.T) {
	// P2: identical inputs always produce identical output.
	cfg := testRoutingConfig()
	e := emailTo("_billing@acme.com", "_a@d.com")
	first := Resolve(cfg, e)
	for i := 0; i < 10; i++ {
		again := Resolve(cfg, e)
		assert.Equal(t, first, again)
	}
}

func TestResolveDeduplicatesApps(t *testing.T) {
	dests := Resolve(testRoutingConfig(), emailTo("_billing@acme.com", "_billing@acme.com"))
	assert.Len(t, dests, 1)
}
