package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catflap/catflap/internal/errors"
	"github.com/catflap/catflap/internal/sink"
)

func TestParseSettings(t *testing.T) {
	content := "%!event match_group_done, obstruct\n" +
		"%!name status\n" +
		"%!filename status_%time:@H@M%.json\n" +
		"%!required site cat\n" +
		"%!rootpath %output_path%\n" +
		"%!topic catflap/%event%\n" +
		"%!nofile\n" +
		"%!noarchive false\n" +
		"body %state%\n" +
		"%!event ignored\n"

	s, body, err := ParseSettings(content)
	require.NoError(t, err)

	assert.Equal(t, []string{"match_group_done", "obstruct"}, s.Events)
	assert.Equal(t, "status", s.Name)
	assert.Equal(t, "status_%time:@H@M%.json", s.Filename)
	assert.Equal(t, []string{"site", "cat"}, s.Required)
	assert.Equal(t, "%output_path%", s.RootPath)
	assert.Equal(t, "catflap/%event%", s.Topic)
	assert.False(t, s.Nop)
	assert.True(t, s.Suppressed(sink.KindFile))
	assert.False(t, s.Suppressed(sink.KindArchive))
	assert.False(t, s.Suppressed(sink.KindBus))
	assert.Equal(t, "body %state%\n%!event ignored\n", body)
}

func TestParseSettingsWithoutHeader(t *testing.T) {
	s, body, err := ParseSettings("just a body\n")
	require.NoError(t, err)
	assert.Empty(t, s.Events)
	assert.Equal(t, "just a body\n", body)
	assert.True(t, s.MatchesEvent("anything"))
}

func TestParseSettingsWhitespace(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"commas", "%!event a,b,c\n", []string{"a", "b", "c"}},
		{"comma and space", "%!event a, b, c\n", []string{"a", "b", "c"}},
		{"spaces", "%!event   a b\tc  \n", []string{"a", "b", "c"}},
		{"carriage return", "%!event a,b\r\n", []string{"a", "b"}},
		{"no trailing newline", "%!event a", []string{"a"}},
		{"leading space", "%! event a\n", []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, err := ParseSettings(tt.content)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Events)
		})
	}
}

func TestParseSettingsErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown directive", "%!bla\nbody"},
		{"unknown directive with value", "%!colour red\nbody"},
		{"empty directive", "%!\nbody"},
		{"event without value", "%!event\nbody"},
		{"required without value", "%!required  ,\nbody"},
		{"name without value", "%!name\nbody"},
		{"bad flag", "%!nop maybe\nbody"},
		{"error after valid line", "%!event all\n%!nobus 2\nbody"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseSettings(tt.content)
			requireCode(t, err, errors.ErrLoad)
		})
	}
}

func TestMatchesEvent(t *testing.T) {
	tests := []struct {
		events []string
		event  string
		want   bool
	}{
		{nil, "match", true},
		{[]string{"*"}, "match", true},
		{[]string{"all"}, "match", true},
		{[]string{"match", "obstruct"}, "obstruct", true},
		{[]string{"match"}, "obstruct", false},
		{[]string{"match"}, "", false},
	}

	for _, tt := range tests {
		s := &Settings{Events: tt.events}
		assert.Equal(t, tt.want, s.MatchesEvent(tt.event), "%v / %q", tt.events, tt.event)
	}
}

func TestNopFlag(t *testing.T) {
	s, _, err := ParseSettings("%!nop\n")
	require.NoError(t, err)
	assert.True(t, s.Nop)

	s, _, err = ParseSettings("%!nop 0\n")
	require.NoError(t, err)
	assert.False(t, s.Nop)
}

func TestBusSuppressionAliases(t *testing.T) {
	for _, directive := range []string{"nobus", "nozmq"} {
		t.Run(directive, func(t *testing.T) {
			s, body, err := ParseSettings("%!" + directive + "\nbody")
			require.NoError(t, err)
			assert.Equal(t, "body", body)
			assert.True(t, s.Suppressed(sink.KindBus))
			assert.False(t, s.Suppressed(sink.KindFile))
		})
	}
}
