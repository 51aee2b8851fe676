package voice

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderGreetingDocument(t *testing.T) {
	r := NewResponse().
		Gather(SpeechGather("/gather", 5, "", "Polly.Aditi", "Are you available?")).
		Say("Polly.Aditi", "I did not receive a response. Goodbye.").
		Hangup()

	b, err := r.Render()
	require.NoError(t, err)
	out := string(b)

	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, out, `<Response><Gather input="speech" action="/gather" method="POST" timeout="5"><Say voice="Polly.Aditi">Are you available?</Say></Gather>`)
	assert.Contains(t, out, `<Say voice="Polly.Aditi">I did not receive a response. Goodbye.</Say><Hangup></Hangup></Response>`)
	assert.NotContains(t, out, "speechTimeout")
	assert.True(t, r.HangsUp())
	assert.Equal(t, []string{"Are you available?", "I did not receive a response. Goodbye."}, r.Spoken())
}

func TestRenderEscapesText(t *testing.T) {
	r := NewResponse().Gather(SpeechGather("/gather", 10, "auto", "Polly.Aditi", `Tom & "Jerry" <ok>`))
	b, err := r.Render()
	require.NoError(t, err)
	out := string(b)
	assert.Contains(t, out, `speechTimeout="auto"`)
	assert.Contains(t, out, "Tom &amp; &#34;Jerry&#34; &lt;ok&gt;")
	assert.False(t, r.HangsUp())
}

func TestLowSignalFilter(t *testing.T) {
	f := NewLowSignalFilter(DefaultLowSignal)
	cases := []struct {
		text string
		want bool
	}{
		{"", true},
		{"   ", true},
		{"No speech detected", true},
		{"no speech detected.", true},
		{"I", true},
		{"i.", true},
		{"I  just", true},
		{"I just moved to Acme", false},
		{"Yes I'm available", false},
		{"Idris", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, f.IsLowSignal(tc.text), "text=%q", tc.text)
	}
}
