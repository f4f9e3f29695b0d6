package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptSecret(t *testing.T) {
	blob, err := EncryptSecret("the-admin-secret", "correct horse")
	require.NoError(t, err)

	got, err := DecryptSecret(blob, "correct horse")
	require.NoError(t, err)
	require.Equal(t, "the-admin-secret", got)
}

func TestDecryptSecret_WrongPassword(t *testing.T) {
	blob, err := EncryptSecret("the-admin-secret", "correct horse")
	require.NoError(t, err)

	_, err = DecryptSecret(blob, "battery staple")
	require.Error(t, err)
}

func TestEncryptSecret_EmptyInputs(t *testing.T) {
	_, err := EncryptSecret("", "pw")
	require.Error(t, err)

	_, err = EncryptSecret("secret", "")
	require.Error(t, err)
}

func TestEncryptSecret_UniqueSaltAndNonce(t *testing.T) {
	first, err := EncryptSecret("same secret", "same password")
	require.NoError(t, err)
	second, err := EncryptSecret("same secret", "same password")
	require.NoError(t, err)
	require.NotEqual(t, string(first), string(second))
}

func TestLoadSecret(t *testing.T) {
	// Raw secret wins over everything.
	got, err := LoadSecret(SecretConfig{RawSecret: "raw"})
	require.NoError(t, err)
	require.Equal(t, "raw", got)

	// Encrypted file path.
	blob, err := EncryptSecret("from-file", "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "secret.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err = LoadSecret(SecretConfig{EncryptedSecretPath: path, SecretPassword: "pw"})
	require.NoError(t, err)
	require.Equal(t, "from-file", got)

	// Nothing configured.
	_, err = LoadSecret(SecretConfig{})
	require.Error(t, err)
}
