package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MrEthical07/authcore"
)

func TestLogNotifierNeverLogsCode(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	n := NewLogNotifier(zap.New(core))

	require.NoError(t, n.SendCode(context.Background(), "user@example.com", "482913", authcore.PurposeLogin))
	require.Equal(t, 1, logs.Len())

	entry := logs.All()[0]
	for k, v := range entry.ContextMap() {
		assert.NotContains(t, strings.ToLower(k), "code")
		if s, ok := v.(string); ok {
			assert.NotContains(t, s, "482913")
			assert.NotContains(t, s, "user@example.com")
		}
	}
	assert.Equal(t, "u***@example.com", entry.ContextMap()["destination"])
}

func TestMask(t *testing.T) {
	assert.Equal(t, "u***@example.com", Mask("user@example.com"))
	assert.Equal(t, "***0100", Mask("+15550100"))
	assert.Equal(t, "***", Mask("123"))
}

func TestFuncAndFanout(t *testing.T) {
	var got []string
	record := Func(func(_ context.Context, destination, code string, purpose authcore.CodePurpose) error {
		got = append(got, string(purpose)+":"+destination+":"+code)
		return nil
	})
	failing := Func(func(context.Context, string, string, authcore.CodePurpose) error {
		return errors.New("smtp down")
	})

	err := Fanout{record, failing, record}.SendCode(context.Background(), "a@example.com", "1234", authcore.PurposePasswordReset)
	require.Error(t, err)
	assert.Equal(t, []string{"reset:a@example.com:1234"}, got)

	var nilFunc Func
	require.Error(t, nilFunc.SendCode(context.Background(), "a@example.com", "1234", authcore.PurposeLogin))
}
