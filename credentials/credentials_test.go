// SPDX-License-Identifier: AGPL-3.0-only
package credentials

import (
	"testing"
)

func TestStoreAndGet(t *testing.T) {
	reg := NewRegistry()
	reg.Store("anthropic_api_key", "sk-ant-123")

	v, ok := reg.Get("anthropic_api_key")
	if !ok {
		t.Fatal("Expected secret to be present")
	}
	if v != "sk-ant-123" {
		t.Errorf("Expected 'sk-ant-123', got '%s'", v)
	}
}

func TestGet_Missing(t *testing.T) {
	reg := NewRegistry()

	if _, ok := reg.Get("nope"); ok {
		t.Error("Expected missing secret to report absent")
	}
}

func TestStoreMultiple(t *testing.T) {
	reg := NewRegistry()
	reg.StoreMultiple(map[string]string{
		"anthropic_api_key": "a",
		"openai_api_key":    "b",
	})

	if reg.Len() != 2 {
		t.Fatalf("Expected 2 secrets, got %d", reg.Len())
	}
	if v, _ := reg.Get("openai_api_key"); v != "b" {
		t.Errorf("Expected 'b', got '%s'", v)
	}
}

func TestStore_Overwrites(t *testing.T) {
	reg := NewRegistry()
	reg.Store("key", "old")
	reg.Store("key", "new")

	if v, _ := reg.Get("key"); v != "new" {
		t.Errorf("Expected 'new', got '%s'", v)
	}
}

func TestClear(t *testing.T) {
	reg := NewRegistry()
	reg.Store("key", "value")
	reg.Clear()

	if reg.Len() != 0 {
		t.Errorf("Expected empty registry after Clear, got %d entries", reg.Len())
	}
	// Clear is idempotent.
	reg.Clear()
	if reg.Len() != 0 {
		t.Error("Expected registry to remain empty")
	}
}
