package config

import (
	"errors"
	"strings"
	"testing"
)

func TestClassifyConfigLoadError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "none", err: nil, want: "none"},
		{name: "validation", err: errors.New("validate config: DATABASE_URL is required"), want: "validation"},
		{name: "env parse", err: errors.New("parse LOCKOUT_WINDOW: invalid duration"), want: "parse"},
		{name: "policy read", err: errors.New("read SECURITY_POLICY_FILE: no such file"), want: "policy_file"},
		{name: "policy parse", err: errors.New("parse SECURITY_POLICY_FILE: yaml: line 2"), want: "policy_file"},
		{name: "other", err: errors.New("some other load error"), want: "load"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyConfigLoadError(tc.err); got != tc.want {
				t.Fatalf("classifyConfigLoadError()=%q want %q", got, tc.want)
			}
		})
	}
}

func TestNormalizeConfigProfile(t *testing.T) {
	cases := map[string]string{
		"  ProD  ":    "production",
		"development": "development",
		"local":       "development",
		"staging":     "staging",
		"ci":          "test",
		"   ":         "unknown",
		"qa-eu-west":  "other",
	}
	for in, want := range cases {
		if got := normalizeConfigProfile(in); got != want {
			t.Fatalf("normalizeConfigProfile(%q)=%q want %q", in, got, want)
		}
	}
}

func FuzzNormalizeConfigProfileBounded(f *testing.F) {
	f.Add("  ProD  ")
	f.Add("")
	f.Add("ðŸ”¥PRODðŸ”¥")
	f.Add(strings.Repeat("A", 4096))

	allowed := map[string]bool{"unknown": true, "development": true, "production": true, "staging": true, "test": true, "other": true}
	f.Fuzz(func(t *testing.T, raw string) {
		got := normalizeConfigProfile(raw)
		if !allowed[got] {
			t.Fatalf("profile %q normalized outside the fixed set: %q", raw, got)
		}
		if strings.TrimSpace(raw) == "" && got != "unknown" {
			t.Fatalf("expected unknown for blank input, got %q", got)
		}
	})
}
