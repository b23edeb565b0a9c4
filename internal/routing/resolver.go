// Package routing implements the Routing Resolver (C4): mapping an
// Email's recipient local-parts to destination app queues.
package routing

import (
	"sort"

	"mailflow/internal/config"
	"mailflow/internal/email"
)

// Destination is one (app-name, queue-url) pair the resolver produced.
type Destination struct {
	AppName  string
	QueueURL string
	Default  bool
}

// Resolve computes the destination set for e. The result
// always has at least one destination. P2: Resolve is pure — same cfg and
// e always yield the same output.
func Resolve(cfg *config.RoutingConfig, e *email.Email) []Destination {
	apps := recognizedApps(e)
	if len(apps) == 0 {
		return []Destination{{AppName: "default", QueueURL: cfg.DefaultQueue, Default: true}}
	}

	out := make([]Destination, 0, len(apps))
	for _, app := range apps {
		out = append(out, resolveOne(cfg, app))
	}
	return out
}

// recognizedApps scans to+cc+bcc for addresses whose local-part starts
// with '_', extracting and deduplicating app names in first-seen order.
func recognizedApps(e *email.Email) []string {
	seen := map[string]bool{}
	var out []string
	for _, addr := range e.AllRecipients() {
		app, ok := email.ExtractApp(addr.Address)
		if !ok || seen[app] {
			continue
		}
		seen[app] = true
		out = append(out, app)
	}
	return out
}

func resolveOne(cfg *config.RoutingConfig, app string) Destination {
	if r, ok := cfg.Routes[app]; ok && r.Enabled {
		return Destination{AppName: app, QueueURL: r.QueueURL}
	}

	// Iterate routes in a deterministic (sorted) order so the resolver's
	// output does not depend on Go's randomized map iteration (P2: purity).
	names := make([]string, 0, len(cfg.Routes))
	for name := range cfg.Routes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r := cfg.Routes[name]
		if r.Enabled && r.Aliases[app] {
			return Destination{AppName: name, QueueURL: r.QueueURL}
		}
	}

	return Destination{AppName: "default", QueueURL: cfg.DefaultQueue, Default: true}
}
