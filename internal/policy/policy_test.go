package policy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roelfdiedericks/toolgate/internal/operation"
)

func TestClassify(t *testing.T) {
	p := Default()

	tests := []struct {
		name string
		want Tier
	}{
		{"chats", TierProtected},
		{"messages", TierProtected},
		{"settings", TierProtected},
		{"contacts", TierManaged},
		{"knowledge", TierManaged},
		{"scheduled_jobs", TierManaged},
		{"ai_scratch", TierNamespaced},
		{"ai_", TierUnlisted},
		{"scratch", TierUnlisted},
		{"Chats", TierUnlisted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Classify(tt.name))
		})
	}
}

func TestValidateUnknownKind(t *testing.T) {
	p := Default()
	for _, kind := range []operation.Kind{"drop", "eval", "", "FIND", "mapReduce"} {
		d := p.Validate(kind, "contacts")
		assert.False(t, d.Allowed, "kind %q", kind)
		assert.Contains(t, d.Reason, "not allowed")
		assert.Contains(t, d.Reason, "insertOne")
	}
}

func TestValidateListCollectionsNeedsNoTarget(t *testing.T) {
	d := Default().Validate(operation.ListCollections, "")
	assert.True(t, d.Allowed)
}

func TestValidateRequiresTarget(t *testing.T) {
	p := Default()
	for _, kind := range append(operation.WriteKinds, operation.Find, operation.Count) {
		d := p.Validate(kind, "  ")
		assert.False(t, d.Allowed, "kind %s", kind)
		assert.Contains(t, d.Reason, "collection is required")
	}
}

func TestReadsAllowedOnAnyNamedTarget(t *testing.T) {
	p := Default()
	targets := []string{"chats", "settings", "contacts", "ai_notes", "whatever", "sqlite_master"}
	for _, kind := range operation.ReadKinds {
		for _, target := range targets {
			assert.True(t, p.Validate(kind, target).Allowed, "%s on %s", kind, target)
		}
	}
}

func TestWritesToProtectedDenied(t *testing.T) {
	p := Default()
	for _, target := range p.Protected() {
		for _, kind := range operation.WriteKinds {
			d := p.Validate(kind, target)
			require.False(t, d.Allowed, "%s on %s", kind, target)
			assert.Contains(t, d.Reason, target)
			assert.Contains(t, d.Reason, "protected")
		}
	}
}

func TestWritesToUnlistedSuggestNamespacedName(t *testing.T) {
	p := Default()
	for _, target := range []string{"scratch", "notes", "todo_list"} {
		for _, kind := range operation.WriteKinds {
			d := p.Validate(kind, target)
			require.False(t, d.Allowed)
			assert.Contains(t, d.Reason, `"ai_`+target+`"`)

			assert.True(t, p.Validate(kind, "ai_"+target).Allowed, "%s on ai_%s", kind, target)
		}
	}
}

func TestHintForBarePrefixIsWritable(t *testing.T) {
	p := Default()
	assert.Equal(t, "ai_ai_", p.NamespacedName("ai_"))
	assert.Equal(t, "ai_notes", p.NamespacedName("ai_notes"))

	d := p.Validate(operation.InsertOne, "ai_")
	require.False(t, d.Allowed)
	assert.Contains(t, d.Reason, `"ai_ai_"`)
	assert.True(t, p.Validate(operation.InsertOne, p.NamespacedName("ai_")).Allowed)
}

func TestWritesToManagedAllowed(t *testing.T) {
	p := Default()
	for _, target := range p.Managed() {
		for _, kind := range operation.WriteKinds {
			assert.True(t, p.Validate(kind, target).Allowed, "%s on %s", kind, target)
		}
	}
}

func TestScenarioUpdateChatsDenied(t *testing.T) {
	req, err := operation.Parse(json.RawMessage(`{"operation":"updateOne","collection":"chats","filter":{},"update":{"$set":{"title":"x"}}}`))
	require.NoError(t, err)

	d := Default().Check(req)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "chats")
	assert.Contains(t, d.Reason, "protected")
}

func TestScenarioScratchNeedsPrefix(t *testing.T) {
	p := Default()

	req, err := operation.Parse(json.RawMessage(`{"operation":"insertOne","collection":"scratch","data":{}}`))
	require.NoError(t, err)
	assert.False(t, p.Check(req).Allowed)

	req, err = operation.Parse(json.RawMessage(`{"operation":"insertOne","collection":"ai_scratch","data":{}}`))
	require.NoError(t, err)
	assert.True(t, p.Check(req).Allowed)
}

func TestConfigCannotUnprotect(t *testing.T) {
	p := New(Config{
		ExtraManaged:   []string{"chats", "journal"},
		ExtraProtected: []string{"billing"},
		Prefix:         "agent_",
	})

	assert.Equal(t, TierProtected, p.Classify("chats"))
	assert.Equal(t, TierManaged, p.Classify("journal"))
	assert.Equal(t, TierProtected, p.Classify("billing"))
	assert.Equal(t, TierNamespaced, p.Classify("agent_x"))
	assert.Equal(t, TierUnlisted, p.Classify("ai_x"))
	assert.Equal(t, "agent_notes", p.NamespacedName("notes"))
}

func TestValidateDeterministic(t *testing.T) {
	p := Default()
	first := p.Validate(operation.DeleteMany, "notes")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, p.Validate(operation.DeleteMany, "notes"))
	}
}
