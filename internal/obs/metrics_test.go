package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                          "/",
		"/metrics":                  "/metrics",
		"/v1/cases/7":               "/v1/cases/:id",
		"/v1/cases/7/acknowledge":   "/v1/cases/:id/acknowledge",
		"/v1/cases/7/accept":        "/v1/cases/:id/accept",
		"/v1/cases/7/history":       "/v1/cases/:id/history",
		"/v1/cases/nearby":          "/v1/cases/nearby",
		"/v1/cases/7/unknown/extra": "/v1/cases/7/unknown/extra",
		"/v1/victims/0xabc/cases":   "/v1/victims/:id/cases",
		"/v1/stats":                 "/v1/stats",
		"/v1/stats?window=1h":       "/v1/stats",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
