// Package policy decides whether a data-store operation requested by the
// model may run.
//
// Decisions depend only on the operation kind and the target collection
// name. Collection names fall into one of three tiers: core-protected
// (the assistant's own persistence, read-only to the agent), agent-managed
// (a fixed allowlist the agent may write), and agent-namespaced (names
// carrying the reserved prefix). Everything else is readable but never
// writable. Classification is pure string comparison; a Policy performs no
// I/O and the same input always yields the same Decision.
package policy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roelfdiedericks/toolgate/internal/operation"
)

// DefaultPrefix marks collections created by the agent itself.
const DefaultPrefix = "ai_"

// DefaultProtected are the core collections. They can never be removed from
// a Policy through Config.
var DefaultProtected = []string{
	"chats",
	"messages",
	"settings",
	"media",
	"attachments",
	"artifacts",
	"agent_notebook",
	"users",
	"sessions",
}

// DefaultManaged are the collections the agent keeps structured personal
// data in.
var DefaultManaged = []string{
	"knowledge",
	"contacts",
	"schedule",
	"permissions",
	"scheduled_jobs",
}

// Tier classifies a collection name.
type Tier int

const (
	TierUnlisted Tier = iota
	TierProtected
	TierManaged
	TierNamespaced
)

func (t Tier) String() string {
	switch t {
	case TierProtected:
		return "core-protected"
	case TierManaged:
		return "agent-managed"
	case TierNamespaced:
		return "agent-namespaced"
	default:
		return "unlisted"
	}
}

// Decision is the outcome of a validation.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Config extends the built-in tiers. Extra names are added to the defaults;
// protected names always win over managed ones.
type Config struct {
	ExtraProtected []string `json:"extraProtected" toml:"extra_protected" yaml:"extraProtected"`
	ExtraManaged   []string `json:"extraManaged" toml:"extra_managed" yaml:"extraManaged"`
	Prefix         string   `json:"prefix" toml:"prefix" yaml:"prefix"`
}

// Policy is an immutable rule table.
type Policy struct {
	protected map[string]struct{}
	managed   map[string]struct{}
	prefix    string
}

// Default returns a Policy with the built-in tiers.
func Default() *Policy {
	return New(Config{})
}

// New builds a Policy from cfg merged over the defaults.
func New(cfg Config) *Policy {
	p := &Policy{
		protected: make(map[string]struct{}),
		managed:   make(map[string]struct{}),
		prefix:    cfg.Prefix,
	}
	if p.prefix == "" {
		p.prefix = DefaultPrefix
	}
	for _, name := range append(append([]string{}, DefaultProtected...), cfg.ExtraProtected...) {
		if name = strings.TrimSpace(name); name != "" {
			p.protected[name] = struct{}{}
		}
	}
	for _, name := range append(append([]string{}, DefaultManaged...), cfg.ExtraManaged...) {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, isProtected := p.protected[name]; isProtected {
			continue
		}
		p.managed[name] = struct{}{}
	}
	return p
}

// Prefix returns the reserved namespace prefix.
func (p *Policy) Prefix() string {
	return p.prefix
}

// Classify returns the tier of a collection name.
func (p *Policy) Classify(name string) Tier {
	if _, ok := p.protected[name]; ok {
		return TierProtected
	}
	if _, ok := p.managed[name]; ok {
		return TierManaged
	}
	if len(name) > len(p.prefix) && strings.HasPrefix(name, p.prefix) {
		return TierNamespaced
	}
	return TierUnlisted
}

// Writable reports whether the agent may write to the named collection.
func (p *Policy) Writable(name string) bool {
	switch p.Classify(name) {
	case TierManaged, TierNamespaced:
		return true
	default:
		return false
	}
}

// NamespacedName returns the agent-namespaced equivalent of name. The
// result always classifies as TierNamespaced.
func (p *Policy) NamespacedName(name string) string {
	if p.Classify(name) == TierNamespaced {
		return name
	}
	return p.prefix + name
}

// Protected returns the protected names, sorted.
func (p *Policy) Protected() []string {
	return sortedKeys(p.protected)
}

// Managed returns the agent-managed names, sorted.
func (p *Policy) Managed() []string {
	return sortedKeys(p.managed)
}

// Check validates a parsed request.
func (p *Policy) Check(req operation.Request) Decision {
	return p.Validate(req.Kind(), req.Target())
}

// Validate applies the rules in order:
//  1. kind must be in the allowed set
//  2. listCollections needs no target
//  3. every other kind needs a target
//  4. writes to core-protected collections are denied
//  5. writes need an agent-managed or agent-namespaced target
func (p *Policy) Validate(kind operation.Kind, target string) Decision {
	if !kind.Known() {
		return deny("operation %q not allowed, allowed set is {%s}", kind, AllowedKinds())
	}
	if kind == operation.ListCollections {
		return allow()
	}
	if strings.TrimSpace(target) == "" {
		return deny("collection is required for %s", kind)
	}
	if !kind.IsWrite() {
		return allow()
	}

	switch p.Classify(target) {
	case TierProtected:
		return deny("collection %q is protected: %s is not permitted on core collections, "+
			"writes are restricted to agent-managed collections (%s) or collections prefixed with %q",
			target, kind, strings.Join(p.Managed(), ", "), p.prefix)
	case TierUnlisted:
		return deny("cannot %s on %q: writes are restricted to agent-managed collections (%s) "+
			"or collections prefixed with %q, use %q instead",
			kind, target, strings.Join(p.Managed(), ", "), p.prefix, p.NamespacedName(target))
	}
	return allow()
}

// AllowedKinds renders the allowed kind set for messages.
func AllowedKinds() string {
	names := make([]string, 0, len(operation.ReadKinds)+len(operation.WriteKinds))
	for _, k := range operation.ReadKinds {
		names = append(names, string(k))
	}
	for _, k := range operation.WriteKinds {
		names = append(names, string(k))
	}
	return strings.Join(names, ", ")
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
