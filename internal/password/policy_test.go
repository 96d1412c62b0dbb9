package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPolicy_Validate(t *testing.T) {
	policy := NewPolicy("")

	tests := []struct {
		name      string
		password  string
		wantValid bool
		wantHas   []string
	}{
		{
			name:      "valid password",
			password:  "ValidPass123!",
			wantValid: true,
		},
		{
			name:     "too short",
			password: "short1!",
			wantHas:  []string{"must be at least 12 characters long", "must contain an uppercase letter"},
		},
		{
			name:     "no uppercase",
			password: "alllowercase123!",
			wantHas:  []string{"must contain an uppercase letter"},
		},
		{
			name:     "repeated character",
			password: "aaaaaaaaaaaa",
			wantHas: []string{
				"must contain an uppercase letter",
				"must contain a digit",
				"must contain a symbol (@$!%*?&)",
				"must not be a single repeated character",
			},
		},
		{
			name:     "forbidden sequence",
			password: "Abcdef123456!",
			wantHas:  []string{`must not contain the sequence "123456"`},
		},
		{
			name:     "contains password in any case",
			password: "MyPaSsWoRd99!x",
			wantHas:  []string{`must not contain the word "password"`},
		},
		{
			name:     "contains localized weak word",
			password: "MinhaSenha99!x",
			wantHas:  []string{`must not contain the word "senha"`},
		},
		{
			name:     "non-ASCII uppercase letters",
			password: "ÉÉÉÉxyzwq12!",
			wantHas:  []string{"must contain an uppercase letter"},
		},
		{
			name:     "non-ASCII lowercase letters",
			password: "XYZWQéééé12!",
			wantHas:  []string{"must contain a lowercase letter"},
		},
		{
			name:     "non-ASCII digits",
			password: "ValidPass٣٤!x",
			wantHas:  []string{"must contain a digit"},
		},
		{
			name:     "symbol outside the allowed set",
			password: "ValidPass123#",
			wantHas:  []string{"must contain a symbol (@$!%*?&)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := policy.Validate(tt.password)

			assert.Equal(t, tt.wantValid, result.Valid)
			if tt.wantValid {
				assert.Empty(t, result.Violations)
				return
			}
			for _, v := range tt.wantHas {
				assert.Contains(t, result.Violations, v)
			}
		})
	}
}

func TestPolicy_ReportsEveryViolationInOrder(t *testing.T) {
	result := NewPolicy("").Validate("")

	require.False(t, result.Valid)
	assert.Equal(t, []string{
		"must be at least 12 characters long",
		"must contain a lowercase letter",
		"must contain an uppercase letter",
		"must contain a digit",
		"must contain a symbol (@$!%*?&)",
	}, result.Violations)
}

func TestPolicy_CustomWeakWord(t *testing.T) {
	policy := NewPolicy("Passwort")

	result := policy.Validate("MeinPASSWORT1!")
	assert.False(t, result.Valid)
	assert.Contains(t, result.Violations, `must not contain the word "passwort"`)

	assert.True(t, policy.Validate("MinhaSenha99!x").Valid)
}

func TestBcrypt_HashAndCompare(t *testing.T) {
	hasher := NewBcrypt(bcrypt.MinCost)

	hash, err := hasher.Hash("StrongPass123!")
	require.NoError(t, err)
	assert.NotEqual(t, "StrongPass123!", hash)

	assert.NoError(t, hasher.Compare(hash, "StrongPass123!"))
	assert.ErrorIs(t, hasher.Compare(hash, "WrongPass123!"), ErrMismatch)
	assert.Error(t, hasher.Compare("not-a-hash", "StrongPass123!"))
}

func TestNewBcrypt_FallsBackToDefaultCost(t *testing.T) {
	assert.Equal(t, DefaultCost, NewBcrypt(0).cost)
	assert.Equal(t, DefaultCost, NewBcrypt(bcrypt.MaxCost+1).cost)
}
