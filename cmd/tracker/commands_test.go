package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rossigee/jobtracker/internal/storage"
	"github.com/rossigee/jobtracker/internal/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCLI struct {
	*cli
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newTestCLI(t *testing.T) *testCLI {
	t.Helper()
	store, err := storage.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close() // Ignore error in test
	})

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	return &testCLI{
		cli:    &cli{svc: tracker.NewService(store, nil), out: stdout, errOut: stderr},
		stdout: stdout,
		stderr: stderr,
	}
}

func (tc *testCLI) run(args ...string) int {
	tc.stdout.Reset()
	tc.stderr.Reset()
	return tc.execute(context.Background(), args)
}

func TestAddShowAndHistory(t *testing.T) {
	tc := newTestCLI(t)

	require.Equal(t, exitOK, tc.run("add", "-company", "Acme", "-role", "Engineer", "-link", "https://acme.example/jobs/1"))
	assert.Equal(t, "created application 1\n", tc.stdout.String())

	require.Equal(t, exitOK, tc.run("status", "-id", "1", "-status", "applied"))
	require.Equal(t, exitOK, tc.run("status", "-id", "1", "-status", "interview"))
	require.Equal(t, exitOK, tc.run("outreach", "-id", "1", "-channel", "email"))
	assert.Contains(t, tc.stdout.String(), "recorded initial outreach via email")

	require.Equal(t, exitOK, tc.run("show", "-id", "1"))
	out := tc.stdout.String()
	assert.Contains(t, out, "Acme")
	assert.Contains(t, out, "https://acme.example/jobs/1")
	assert.Contains(t, out, "interview")

	require.Equal(t, exitOK, tc.run("history", "-id", "1"))
	out = tc.stdout.String()
	assert.Less(t, strings.Index(out, "applied"), strings.Index(out, "interview"))
	assert.Contains(t, out, "email")
}

func TestList(t *testing.T) {
	tc := newTestCLI(t)
	require.Equal(t, exitOK, tc.run("add", "-company", "Acme", "-role", "Engineer"))
	require.Equal(t, exitOK, tc.run("add", "-company", "Globex", "-role", "SRE"))

	require.Equal(t, exitOK, tc.run("list", "-company", "globex"))
	out := tc.stdout.String()
	assert.Contains(t, out, "Globex")
	assert.NotContains(t, out, "Acme")

	require.Equal(t, exitOK, tc.run("list", "-limit", "1"))
	lines := strings.Split(strings.TrimSpace(tc.stdout.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "Acme")
}

func TestExitCodes(t *testing.T) {
	tc := newTestCLI(t)

	tests := []struct {
		name string
		args []string
		code int
		err  string
	}{
		{"unknown command", []string{"frobnicate"}, exitUsage, "unknown command"},
		{"missing id", []string{"show"}, exitUsage, "-id is required"},
		{"bad flag", []string{"list", "-limit", "many"}, exitUsage, "invalid value"},
		{"negative limit", []string{"list", "-limit", "-1"}, exitUsage, "must not be negative"},
		{"extra argument", []string{"delete", "-id", "1", "now"}, exitUsage, "unexpected argument"},
		{"validation", []string{"add", "-company", "Acme"}, exitFailure, "role: is required"},
		{"invalid outreach type", []string{"outreach", "-id", "1", "-channel", "email", "-type", "cold"}, exitFailure, "VALIDATION_ERROR"},
		{"not found", []string{"status", "-id", "999", "-status", "applied"}, exitFailure, "NOT_FOUND"},
		{"help", []string{"history", "-h"}, exitOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tc.run(tt.args...))
			assert.Contains(t, tc.stderr.String(), tt.err)
		})
	}
}

func TestDeleteRestrictedByHistory(t *testing.T) {
	tc := newTestCLI(t)
	require.Equal(t, exitOK, tc.run("add", "-company", "Acme", "-role", "Engineer"))
	require.Equal(t, exitOK, tc.run("add", "-company", "Initech", "-role", "Analyst"))
	require.Equal(t, exitOK, tc.run("status", "-id", "1", "-status", "applied"))

	assert.Equal(t, exitFailure, tc.run("delete", "-id", "1"))
	assert.Contains(t, tc.stderr.String(), "CONFLICT")

	assert.Equal(t, exitOK, tc.run("delete", "-id", "2"))
	assert.Equal(t, exitFailure, tc.run("show", "-id", "2"))
}

func TestPrintUsageListsCommands(t *testing.T) {
	var buf bytes.Buffer
	printUsage(&buf)
	for _, cmd := range commands {
		assert.Contains(t, buf.String(), cmd.name)
	}
}
