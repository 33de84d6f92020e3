package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/better-wallet/agent-custody/internal/chain"
	"github.com/better-wallet/agent-custody/pkg/types"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestChainsCommand(t *testing.T) {
	out, err := run(t, "", "chains")
	require.NoError(t, err)
	for _, c := range chain.Table() {
		assert.Contains(t, out, c.ID)
	}
	assert.Contains(t, out, "ACCOUNT ABSTRACTION")

	out, err = run(t, "", "chains", "--json")
	require.NoError(t, err)
	var table []types.ChainConfig
	require.NoError(t, json.Unmarshal([]byte(out), &table))
	assert.Len(t, table, len(chain.Table()))
}

func TestGenSecretCommand(t *testing.T) {
	out, err := run(t, "", "gen-secret")
	require.NoError(t, err)

	secret, err := hex.DecodeString(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Len(t, secret, masterSecretSize)
}

func TestWrapSecretCommand_Local(t *testing.T) {
	secret := strings.Repeat("ab", masterSecretSize)

	out, err := run(t, "", "wrap-secret", "--provider", "local", "--secret", "0x"+secret)
	require.NoError(t, err)
	assert.Equal(t, secret, strings.TrimSpace(out))

	out, err = run(t, secret+"\n", "wrap-secret", "--provider", "local")
	require.NoError(t, err)
	assert.Equal(t, secret, strings.TrimSpace(out))
}

func TestWrapSecretCommand_Errors(t *testing.T) {
	tests := []struct {
		name  string
		stdin string
		args  []string
	}{
		{"short secret", "", []string{"wrap-secret", "--provider", "local", "--secret", "abcd"}},
		{"not hex", "", []string{"wrap-secret", "--provider", "local", "--secret", "zz"}},
		{"empty stdin", "", []string{"wrap-secret", "--provider", "local"}},
		{"unknown provider", "", []string{"wrap-secret", "--provider", "gcp", "--secret", strings.Repeat("ab", 32)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.stdin, tt.args...)
			assert.Error(t, err)
		})
	}
}
