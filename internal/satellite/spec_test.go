package satellite

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpec(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantArgs []string
		wantInt  int
	}{
		{name: "with interval", in: "ls @ 5", wantArgs: []string{"ls"}, wantInt: 5},
		{name: "whitespace trimmed", in: "   pwd -P   @   10  ", wantArgs: []string{"pwd", "-P"}, wantInt: 10},
		{name: "bare command", in: "echo hi", wantArgs: []string{"echo", "hi"}, wantInt: 1},
		{name: "at without spaces is part of the command", in: "echo a@b", wantArgs: []string{"echo", "a@b"}, wantInt: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseSpec(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.wantArgs, cfg.Command.Args())
			assert.Equal(t, tt.wantInt, cfg.Interval)
			assert.Equal(t, tt.wantArgs[0], cfg.Name())
		})
	}
}

func TestParseSpec_Errors(t *testing.T) {
	for _, in := range []string{"ls @ abc", "ls @ 1.5", "ls @ 0", "ls @ -3", " @ 3", "ls @ "} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseSpec(in)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSpec)
			var se *SpecError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, in, se.Spec)
		})
	}
}

func TestParseList(t *testing.T) {
	cfgs, err := ParseList("ls @ 5, pwd @ 10")
	require.NoError(t, err)
	require.Len(t, cfgs, 2)
	assert.Equal(t, "ls", cfgs[0].Name())
	assert.Equal(t, 5, cfgs[0].Interval)
	assert.Equal(t, "pwd", cfgs[1].Name())
	assert.Equal(t, 10, cfgs[1].Interval)

	cfgs, err = ParseList("ls @ 5,pwd")
	require.NoError(t, err)
	require.Len(t, cfgs, 2)
	assert.Equal(t, 1, cfgs[1].Interval)

	cfgs, err = ParseList("ls, ,pwd,")
	require.NoError(t, err)
	assert.Len(t, cfgs, 2)

	cfgs, err = ParseList("")
	require.NoError(t, err)
	assert.Empty(t, cfgs)
}

func TestParseList_OneBadEntryFailsAll(t *testing.T) {
	cfgs, err := ParseList("ls @ 5, pwd @ abc")
	assert.ErrorIs(t, err, ErrInvalidSpec)
	assert.Nil(t, cfgs)
}

func TestConfig_TickAndName(t *testing.T) {
	cfg, err := ParseSpec("ls @ 2")
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Tick())
	cfg.Jitter = func() time.Duration { return 5 * time.Millisecond }
	assert.Equal(t, 5*time.Millisecond, cfg.Tick())

	named := cfg.WithName("lister")
	assert.Equal(t, "lister", named.Name())
	assert.Equal(t, "ls", cfg.Name())
}

func TestConfig_Validate(t *testing.T) {
	assert.ErrorIs(t, Config{}.Validate(), ErrInvalidSpec)
	cfg, err := ParseSpec("ls")
	require.NoError(t, err)
	cfg.Interval = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidSpec)
}
