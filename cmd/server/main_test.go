package main

import (
	"testing"

	"posmbe/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cases := map[string]config.Config{
		"short secret":    {AuthSecret: "short", AllowedOrigins: []string{"http://127.0.0.1:3000"}},
		"no origins":      {AuthSecret: "0123456789abcdef0123456789abcdef"},
		"wildcard origin": {AuthSecret: "0123456789abcdef0123456789abcdef", AllowedOrigins: []string{"*"}},
	}
	for name, cfg := range cases {
		if err := validateSecurityConfig(cfg); err == nil {
			t.Fatalf("%s: expected config to be rejected", name)
		}
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{
		AuthSecret:     "0123456789abcdef0123456789abcdef",
		AllowedOrigins: []string{"http://127.0.0.1:3000"},
	})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}
