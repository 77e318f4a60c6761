package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchPattern(t *testing.T) {
	cases := []struct {
		value   string
		pattern string
		want    bool
	}{
		{"anything.at.all", "*", true},
		{"api.example.com", "api.example.com", true},
		{"api.example.com", "api.example.org", false},
		{"api.example.com", "*.example.com", true},
		{"a.b.example.com", "*.example.com", true},
		// a leading "*." also admits the bare domain
		{"example.com", "*.example.com", true},
		{"notexample.com", "*.example.com", false},
		{"example.com.evil.io", "*.example.com", false},
		{"svc-7.internal", "re:svc-\\d+\\.internal", true},
		{"svc-x.internal", "re:svc-\\d+\\.internal", false},
		// regex patterns are anchored to the full value
		{"prefix.svc-7.internal", "re:svc-\\d+\\.internal", false},
		{"host", "re:[invalid", false},
		{"app-staging.example.com", "app-*.example.com", true},
		{"app.example.com", "app-*.example.com", false},
		{"", "*", false},
		{"host", "", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MatchPattern(tc.value, tc.pattern),
			"value=%q pattern=%q", tc.value, tc.pattern)
	}
}

func TestIsAllowed(t *testing.T) {
	allowed := []string{"localhost", "*.example.com", "re:10\\.0\\.\\d+\\.\\d+"}

	assert.True(t, IsAllowed("localhost", allowed))
	assert.True(t, IsAllowed("api.example.com", allowed))
	assert.True(t, IsAllowed("10.0.4.17", allowed))
	assert.False(t, IsAllowed("evil.io", allowed))
	assert.False(t, IsAllowed("localhost", nil))
}

func TestHostOnly(t *testing.T) {
	assert.Equal(t, "example.com", HostOnly("Example.com:8080"))
	assert.Equal(t, "example.com", HostOnly("example.com"))
	assert.Equal(t, "[::1]", HostOnly("[::1]:19680"))
	assert.Equal(t, "10.0.0.1", HostOnly("10.0.0.1:443"))
}
