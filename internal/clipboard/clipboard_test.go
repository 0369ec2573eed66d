// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package clipboard

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCopier_Copy(t *testing.T) {
	tests := []struct {
		name         string
		secure       bool
		nativeErr    error
		fallbackErr  error
		noFallback   bool
		wantMethod   string
		wantOK       bool
		wantNative   int
		wantFallback int
	}{
		{name: "native in secure context", secure: true, wantMethod: MethodNative, wantOK: true, wantNative: 1},
		{name: "native rejected falls back", secure: true, nativeErr: errors.New("no xclip"), wantMethod: MethodFallback, wantOK: true, wantNative: 1, wantFallback: 1},
		{name: "insecure skips native", secure: false, wantMethod: MethodFallback, wantOK: true, wantFallback: 1},
		{name: "both fail", secure: true, nativeErr: errors.New("no xclip"), fallbackErr: ErrUnavailable, wantMethod: MethodFallback, wantNative: 1, wantFallback: 1},
		{name: "no fallback", secure: false, noFallback: true, wantMethod: MethodNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var nativeCalls, fallbackCalls int
			c := &Copier{
				Native: func(string) error {
					nativeCalls++
					return tt.nativeErr
				},
				Secure: func() bool { return tt.secure },
				Fallback: func(string) error {
					fallbackCalls++
					return tt.fallbackErr
				},
			}
			if tt.noFallback {
				c.Fallback = nil
			}

			result := c.Copy("KEY")
			assert.Equal(t, tt.wantMethod, result.Method)
			assert.Equal(t, tt.wantOK, result.OK())
			assert.Equal(t, tt.wantNative, nativeCalls)
			assert.Equal(t, tt.wantFallback, fallbackCalls)
		})
	}
}

func TestResult_Notification(t *testing.T) {
	assert.Equal(t, "✅ License key copied to clipboard!", Result{Method: MethodNative}.Notification())
	assert.Equal(t, "❌ Copy failed. Please select and copy manually.", Result{Err: ErrUnavailable}.Notification())
}

func TestSecureContext(t *testing.T) {
	env := func(values map[string]string) func(string) string {
		return func(k string) string { return values[k] }
	}

	assert.True(t, SecureContext(false, env(nil)))
	assert.False(t, SecureContext(true, env(nil)))
	assert.False(t, SecureContext(false, env(map[string]string{"SSH_TTY": "/dev/pts/0"})))
	assert.False(t, SecureContext(false, env(map[string]string{"SSH_CONNECTION": "10.0.0.1 22 10.0.0.2 22"})))
}

func TestOSC52(t *testing.T) {
	var buf bytes.Buffer

	write := OSC52(&buf, func() bool { return true })
	assert.NoError(t, write("KEY"))
	assert.Equal(t, "\x1b]52;c;S0VZ\a", buf.String())

	buf.Reset()
	write = OSC52(&buf, func() bool { return false })
	assert.ErrorIs(t, write("KEY"), ErrUnavailable)
	assert.Empty(t, buf.String())
}
