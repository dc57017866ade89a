package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studytrack/internal/middleware"
)

func TestRunTokenIssuesVerifiableToken(t *testing.T) {
	auth := middleware.NewJWTAuth("server-secret")
	userID := uuid.New()

	var out bytes.Buffer
	require.NoError(t, runToken(auth, []string{"-user", userID.String(), "-ttl", "1h"}, &out))

	got, err := auth.ParseToken(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestRunTokenRejectsBadInput(t *testing.T) {
	auth := middleware.NewJWTAuth("server-secret")

	for _, args := range [][]string{
		{},
		{"-user", "nobody"},
		{"-user", uuid.NewString(), "-ttl", "-5m"},
		{"-bogus"},
	} {
		var out bytes.Buffer
		assert.Error(t, runToken(auth, args, &out), strings.Join(args, " "))
	}
}
