package cryptox

import (
	"strings"
	"testing"

	"github.com/dmitrijs2005/notekeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptFields_RoundTrip(t *testing.T) {
	key, err := GenerateContentKey()
	require.NoError(t, err)
	require.Len(t, key, ContentKeySize)

	cases := []Fields{
		{Header: "H", Text: "T"},
		{Header: "", Text: "", Tags: ""},
		{Header: "Привет", Text: "юникод ✓", Tags: "a,b"},
		{
			Header: strings.Repeat("h", MaxHeaderLen),
			Text:   strings.Repeat("t", MaxTextLen),
			Tags:   strings.Repeat("g", MaxTagsLen),
		},
	}
	for _, f := range cases {
		sealed, err := EncryptFields(key, f)
		require.NoError(t, err)

		got, err := DecryptFields(key, sealed)
		require.NoError(t, err)
		assert.Equal(t, f, *got)
	}
}

func TestEncryptFields_LimitsCheckedFirst(t *testing.T) {
	key, _ := GenerateContentKey()

	_, err := EncryptFields(key, Fields{Header: strings.Repeat("x", MaxHeaderLen+1)})
	assert.ErrorIs(t, err, common.ErrorInvalidArgument)

	_, err = EncryptFields(key, Fields{Text: strings.Repeat("x", MaxTextLen+1)})
	assert.ErrorIs(t, err, common.ErrorInvalidArgument)

	_, err = EncryptFields(key, Fields{Tags: strings.Repeat("x", MaxTagsLen+1)})
	assert.ErrorIs(t, err, common.ErrorInvalidArgument)

	// limits apply even when the key is unusable
	_, err = EncryptFields([]byte("short"), Fields{Header: strings.Repeat("x", MaxHeaderLen+1)})
	assert.ErrorIs(t, err, common.ErrorInvalidArgument)
}

func TestDecryptFields_WrongKeyFails(t *testing.T) {
	k1, _ := GenerateContentKey()
	k2, _ := GenerateContentKey()

	sealed, err := EncryptFields(k1, Fields{Header: "H", Text: "T"})
	require.NoError(t, err)

	_, err = DecryptFields(k2, sealed)
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestDecryptFields_SwappedColumnsFail(t *testing.T) {
	key, _ := GenerateContentKey()
	sealed, err := EncryptFields(key, Fields{Header: "H", Text: "T"})
	require.NoError(t, err)

	sealed.Header, sealed.Text = sealed.Text, sealed.Header
	_, err = DecryptFields(key, sealed)
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestDecryptFields_Truncated(t *testing.T) {
	key, _ := GenerateContentKey()
	_, err := DecryptFields(key, &SealedFields{Header: []byte{1, 2, 3}})
	assert.ErrorIs(t, err, ErrIntegrity)
}
