package main

import "testing"

func TestOTLPTarget(t *testing.T) {
	cases := []struct {
		raw          string
		wantEndpoint string
		wantInsecure bool
	}{
		{raw: "", wantEndpoint: ""},
		{raw: "collector:4318", wantEndpoint: "collector:4318"},
		{raw: "http://localhost:4318", wantEndpoint: "localhost:4318", wantInsecure: true},
		{raw: "https://otlp.example.com/otlp", wantEndpoint: "otlp.example.com"},
	}
	for _, tc := range cases {
		endpoint, insecure := otlpTarget(tc.raw)
		if endpoint != tc.wantEndpoint || insecure != tc.wantInsecure {
			t.Fatalf("otlpTarget(%q) = %q, %v", tc.raw, endpoint, insecure)
		}
	}
}
