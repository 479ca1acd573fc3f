package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestGetStringIntBoolDuration(t *testing.T) {
	v := viper.New()
	v.Set("name", "widgets")
	v.Set("count", 3)
	v.Set("enabled", true)
	v.Set("interval", "5s")
	c := New(v)

	if got := c.GetString("name"); got != "widgets" {
		t.Errorf("GetString() = %q, want %q", got, "widgets")
	}
	if got := c.GetInt("count"); got != 3 {
		t.Errorf("GetInt() = %d, want 3", got)
	}
	if got := c.GetBool("enabled"); !got {
		t.Error("GetBool() = false, want true")
	}
	if got := c.GetDuration("interval"); got != 5*time.Second {
		t.Errorf("GetDuration() = %v, want 5s", got)
	}
}

func TestIsSet(t *testing.T) {
	v := viper.New()
	v.Set("present", "x")
	c := New(v)

	if !c.IsSet("present") {
		t.Error("IsSet(present) = false, want true")
	}
	if c.IsSet("absent") {
		t.Error("IsSet(absent) = true, want false")
	}
}

func TestSetNotifiesMatchingPrefixListeners(t *testing.T) {
	c := New(nil)

	var gotKey string
	var gotValue any
	calls := 0
	c.RegisterListener("plugins.widgets", func(key string, newValue any) {
		calls++
		gotKey = key
		gotValue = newValue
	})
	c.RegisterListener("plugins.gadgets", func(key string, newValue any) {
		t.Error("listener for a different prefix must not be called")
	})

	c.Set("plugins.widgets.enabled", true)

	if calls != 1 {
		t.Fatalf("listener called %d times, want 1", calls)
	}
	if gotKey != "plugins.widgets.enabled" {
		t.Errorf("gotKey = %q", gotKey)
	}
	if gotValue != true {
		t.Errorf("gotValue = %v", gotValue)
	}
}

func TestSetNotifiesMultipleMatchingListeners(t *testing.T) {
	c := New(nil)

	var calls int
	c.RegisterListener("plugins", func(string, any) { calls++ })
	c.RegisterListener("plugins.widgets", func(string, any) { calls++ })

	c.Set("plugins.widgets.enabled", false)

	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestSubReturnsScopedConfig(t *testing.T) {
	v := viper.New()
	v.Set("plugins.widgets.interval", "10s")
	c := New(v)

	sub := c.Sub("plugins.widgets")
	if sub == nil {
		t.Fatal("Sub() returned nil")
	}
	if got := sub.GetDuration("interval"); got != 10*time.Second {
		t.Errorf("sub.GetDuration(interval) = %v, want 10s", got)
	}
}

func TestSubOfMissingKeyReturnsEmptyConfig(t *testing.T) {
	c := New(nil)

	sub := c.Sub("does.not.exist")
	if sub == nil {
		t.Fatal("Sub() returned nil")
	}
	if sub.IsSet("anything") {
		t.Error("expected empty config for a missing subtree")
	}
}

func TestUnmarshal(t *testing.T) {
	v := viper.New()
	v.Set("name", "widgets")
	v.Set("version", "1.0.0")
	c := New(v)

	var target struct {
		Name    string `mapstructure:"name"`
		Version string `mapstructure:"version"`
	}
	if err := c.Unmarshal(&target); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if target.Name != "widgets" || target.Version != "1.0.0" {
		t.Errorf("target = %+v", target)
	}
}

func TestNewWithNilViperIsUsable(t *testing.T) {
	c := New(nil)
	c.Set("a", 1)
	if got := c.GetInt("a"); got != 1 {
		t.Errorf("GetInt(a) = %d, want 1", got)
	}
}
