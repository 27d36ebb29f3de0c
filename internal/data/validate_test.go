package data

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusinessInsertValidate(t *testing.T) {
	cases := []struct {
		name    string
		insert  BusinessInsert
		wantErr bool
	}{
		{"valid", BusinessInsert{DisplayName: "Acme Co", ShortCode: "174379"}, false},
		{"missing display name", BusinessInsert{ShortCode: "174379"}, true},
		{"missing short code", BusinessInsert{DisplayName: "Acme Co"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.insert.Validate()
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestBusinessOperatorInsertValidate(t *testing.T) {
	cases := []struct {
		name    string
		insert  BusinessOperatorInsert
		wantErr bool
	}{
		{"valid", BusinessOperatorInsert{BusinessID: 1, Name: "Jane", Email: "jane@example.com"}, false},
		{"missing name", BusinessOperatorInsert{BusinessID: 1, Email: "jane@example.com"}, true},
		{"missing email", BusinessOperatorInsert{BusinessID: 1, Name: "Jane"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.insert.Validate()
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestProjectInsertValidate(t *testing.T) {
	t.Run("rejects unknown simulation mode", func(t *testing.T) {
		insert := ProjectInsert{DisplayName: "Demo", SimulationMode: "not_a_mode"}
		require.Error(t, insert.Validate())
	})

	t.Run("rejects negative stk delay", func(t *testing.T) {
		insert := ProjectInsert{DisplayName: "Demo", SimulationMode: SimulationRealistic, StkDelayMs: -1}
		require.Error(t, insert.Validate())
	})

	t.Run("defaults safety window when unset", func(t *testing.T) {
		insert := ProjectInsert{DisplayName: "Demo", SimulationMode: SimulationRealistic}
		require.NoError(t, insert.Validate())
		assert.Equal(t, DefaultSafetyWindowMs, insert.SafetyWindowMs)
	})

	t.Run("keeps an explicit safety window", func(t *testing.T) {
		insert := ProjectInsert{DisplayName: "Demo", SimulationMode: SimulationRealistic, SafetyWindowMs: 5_000}
		require.NoError(t, insert.Validate())
		assert.Equal(t, 5_000, insert.SafetyWindowMs)
	})

	t.Run("rejects missing display name", func(t *testing.T) {
		insert := ProjectInsert{SimulationMode: SimulationRealistic}
		require.Error(t, insert.Validate())
	})
}

func TestGenerateAPIKeyTriple(t *testing.T) {
	consumerKey, consumerSecret, passkey, err := GenerateAPIKeyTriple()
	require.NoError(t, err)

	assert.Len(t, consumerKey, ConsumerKeySize)
	assert.Len(t, consumerSecret, ConsumerSecretSize)
	assert.Len(t, passkey, PasskeySize)

	for _, s := range []string{consumerKey, consumerSecret, passkey} {
		for _, ch := range s {
			assert.True(t, strings.ContainsRune(apiKeyAlphabet, ch))
		}
	}

	otherKey, _, _, err := GenerateAPIKeyTriple()
	require.NoError(t, err)
	assert.NotEqual(t, consumerKey, otherKey, "two generated triples should not collide")
}
