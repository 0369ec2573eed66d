// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package terminal

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/keydesk/internal/admin"
	"github.com/autobrr/keydesk/internal/models"
)

func TestPrompter_Confirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{input: "y\n", want: true},
		{input: "YES\n", want: true},
		{input: "n\n", want: false},
		{input: "\n", want: false},
		{input: "sure\n", want: false},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			p := NewPrompter(nil, &out).WithInput(strings.NewReader(tt.input))

			ok, err := p.Confirm(t.Context(), admin.DeleteConfirmation)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, admin.DeleteConfirmation+" [y/N]: ", out.String())
		})
	}
}

func TestPrompter_ConfirmCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	p := NewPrompter(nil, &bytes.Buffer{}).WithInput(strings.NewReader("y\n"))
	_, err := p.Confirm(ctx, "?")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPrompter_LineWithoutNewline(t *testing.T) {
	p := NewPrompter(nil, &bytes.Buffer{}).WithInput(strings.NewReader("  Ann  "))
	name, err := p.Line("Name: ")
	require.NoError(t, err)
	assert.Equal(t, "Ann", name)

	_, err = p.Line("Again: ")
	assert.Error(t, err)
}

func TestPrompter_PasswordFromPipe(t *testing.T) {
	p := NewPrompter(nil, &bytes.Buffer{}).WithInput(strings.NewReader("hunter22\n"))
	pw, err := p.Password("Password: ")
	require.NoError(t, err)
	assert.Equal(t, "hunter22", pw)
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "[░░░░░░░░░░]   0%", ProgressBar(0, 10))
	assert.Equal(t, "[█████░░░░░]  50%", ProgressBar(50, 10))
	assert.Equal(t, "[██████████] 100%", ProgressBar(140, 10))
}

func TestLine_RenderAndFlash(t *testing.T) {
	var buf bytes.Buffer
	line := NewLine(&buf)

	line.Render(CountdownText(14 * time.Hour))
	assert.Equal(t, clearLine+"⏳ Next trial key available in 14:00:00", buf.String())

	buf.Reset()
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	line.Flash(ctx, "✅ License key copied to clipboard!", time.Hour)
	assert.Equal(t, clearLine+"✅ License key copied to clipboard!"+clearLine, buf.String())
}

func TestRenderKeyTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderKeyTable(&buf, admin.BuildTable(nil)))
	assert.Equal(t, "No license keys found\n", buf.String())

	buf.Reset()
	keys := []models.LicenseKey{{
		CustomerName:   "Acme",
		Key:            "AAAA-BBBB",
		KeyType:        "PREMIUM",
		CreatedAt:      models.NewTimestamp(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)),
		ExpiresAt:      models.NewTimestamp(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)),
		Activations:    1,
		MaxActivations: 2,
		Status:         models.KeyStatusActive,
		KeyHash:        "abc123",
	}}
	require.NoError(t, RenderKeyTable(&buf, admin.BuildTable(keys)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "CUSTOMER"))
	assert.Contains(t, lines[1], "AAAA-BBBB")
	assert.Contains(t, lines[1], "1/2")
	assert.Contains(t, lines[1], "01 April 2025")
}

func TestRenderVerify(t *testing.T) {
	var buf bytes.Buffer
	RenderVerify(&buf, admin.VerifyView{Title: "❌ Invalid License Key", Message: "License key not found"})
	assert.Equal(t, "❌ Invalid License Key\nLicense key not found\n", buf.String())
}
