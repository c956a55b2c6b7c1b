package main

import (
	"strings"
	"testing"

	"github.com/maheshrc27/post-dispatch/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestSealRoundTrips(t *testing.T) {
	sealed, err := seal(strings.NewReader("consumer-secret\n"), testKey)
	require.NoError(t, err)

	plain, err := utils.Decrypt(sealed, []byte(testKey))
	require.NoError(t, err)
	assert.Equal(t, "consumer-secret", plain)
}

func TestSealRejectsEmptyInputAndBadKey(t *testing.T) {
	_, err := seal(strings.NewReader("  \n"), testKey)
	assert.ErrorIs(t, err, errEmptyInput)

	_, err = seal(strings.NewReader("token"), "short")
	assert.Error(t, err)
}
