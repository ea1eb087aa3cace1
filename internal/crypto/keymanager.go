package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 600000
	saltSize         = 16
	keySize          = 32
)

// EncryptedKeyFile is the on-disk format produced by EncryptKey.
type EncryptedKeyFile struct {
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
	Iterations int    `json:"iterations"`
}

// EncryptKey encrypts a hex private key with a password and writes the result
// to path as JSON. The key is derived via PBKDF2-SHA256 and the private key
// sealed with AES-256-GCM.
func EncryptKey(privateKeyHex, password, path string) error {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("crypto: generate salt: %w", err)
	}

	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("crypto: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("crypto: create gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("crypto: generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(privateKeyHex), nil)

	file := EncryptedKeyFile{
		Salt:       hex.EncodeToString(salt),
		Nonce:      hex.EncodeToString(nonce),
		Ciphertext: hex.EncodeToString(ciphertext),
		Iterations: pbkdf2Iterations,
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("crypto: marshal key file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("crypto: write key file: %w", err)
	}
	return nil
}

// DecryptKey reads an encrypted key file and returns the hex private key.
func DecryptKey(path, password string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("crypto: read key file: %w", err)
	}

	var file EncryptedKeyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return "", fmt.Errorf("crypto: parse key file: %w", err)
	}

	salt, err := hex.DecodeString(file.Salt)
	if err != nil {
		return "", fmt.Errorf("crypto: decode salt: %w", err)
	}
	nonce, err := hex.DecodeString(file.Nonce)
	if err != nil {
		return "", fmt.Errorf("crypto: decode nonce: %w", err)
	}
	ciphertext, err := hex.DecodeString(file.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("crypto: decode ciphertext: %w", err)
	}

	iterations := file.Iterations
	if iterations == 0 {
		iterations = pbkdf2Iterations
	}
	key := pbkdf2.Key([]byte(password), salt, iterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("crypto: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("crypto: create gcm: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: decrypt key (wrong password?): %w", err)
	}
	return string(plaintext), nil
}

// LoadKey resolves a wallet private key from either a raw hex key or an
// encrypted key file plus password. A raw key takes precedence.
func LoadKey(rawHex, encryptedPath, password string) (string, error) {
	if rawHex != "" {
		return rawHex, nil
	}
	if encryptedPath == "" {
		return "", fmt.Errorf("crypto: no private key configured")
	}
	if password == "" {
		return "", fmt.Errorf("crypto: key password required for encrypted key file")
	}
	return DecryptKey(encryptedPath, password)
}
