package fieldcrypt

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/healthcare_records/internal/apperr"
)

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := New(bytes.Repeat([]byte{7}, KeySize))
	require.NoError(t, err)
	return c
}

func TestCipher_RoundTrip(t *testing.T) {
	t.Parallel()

	c := newTestCipher(t)
	for _, pt := range []string{"a", "John Doe", "Hypertension, stage 2", strings.Repeat("ж", 300)} {
		env, err := c.Encrypt(pt)
		require.NoError(t, err)
		assert.NotEqual(t, pt, env)
		assert.True(t, IsEnvelope(env))

		res, err := c.Decrypt(env)
		require.NoError(t, err)
		assert.Equal(t, Decrypted, res.Kind)
		assert.Equal(t, pt, res.Value)
	}
}

func TestCipher_EnvelopeLayout(t *testing.T) {
	t.Parallel()

	c := newTestCipher(t)
	env, err := c.Encrypt("abc")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(env)
	require.NoError(t, err)
	assert.Len(t, raw, SaltSize+IVSize+TagSize+3)
}

func TestCipher_EncryptIsIdempotent(t *testing.T) {
	t.Parallel()

	c := newTestCipher(t)
	env, err := c.Encrypt("Jane Roe")
	require.NoError(t, err)

	again, err := c.Encrypt(env)
	require.NoError(t, err)
	assert.Equal(t, env, again)
}

func TestCipher_FreshIVPerCall(t *testing.T) {
	t.Parallel()

	c := newTestCipher(t)
	a, err := c.Encrypt("same")
	require.NoError(t, err)
	b, err := c.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCipher_Empty(t *testing.T) {
	t.Parallel()

	c := newTestCipher(t)
	env, err := c.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, env)

	res, err := c.Decrypt("")
	require.NoError(t, err)
	assert.Empty(t, res.Value)
}

func TestCipher_LegacyPlaintext(t *testing.T) {
	t.Parallel()

	c := newTestCipher(t)
	res, err := c.Decrypt("Amoxicillin 500mg")
	require.NoError(t, err)
	assert.Equal(t, LegacyPlaintext, res.Kind)
	assert.Equal(t, "Amoxicillin 500mg", res.Value)
}

func TestCipher_TamperedEnvelope(t *testing.T) {
	t.Parallel()

	c := newTestCipher(t)
	env, err := c.Encrypt("secret condition")
	require.NoError(t, err)

	tests := map[string]int{
		"salt":       0,
		"iv":         SaltSize,
		"tag":        SaltSize + IVSize,
		"ciphertext": SaltSize + IVSize + TagSize,
	}
	for name, pos := range tests {
		raw, _ := base64.StdEncoding.DecodeString(env)
		raw[pos] ^= 0xff
		_, err := c.Decrypt(base64.StdEncoding.EncodeToString(raw))
		require.ErrorIs(t, err, apperr.ErrDecryption, name)
	}

	other, err := New(bytes.Repeat([]byte{9}, KeySize))
	require.NoError(t, err)
	_, err = other.Decrypt(env)
	require.ErrorIs(t, err, apperr.ErrDecryption)
}

func TestIsEnvelope(t *testing.T) {
	t.Parallel()

	short := base64.StdEncoding.EncodeToString(make([]byte, SaltSize+IVSize+TagSize-1))
	full := base64.StdEncoding.EncodeToString(make([]byte, SaltSize+IVSize+TagSize))

	assert.False(t, IsEnvelope(""))
	assert.False(t, IsEnvelope("plain text"))
	assert.False(t, IsEnvelope(short))
	assert.True(t, IsEnvelope(full))
	assert.False(t, IsEnvelope(strings.Repeat("!", 200)))
}

func TestLoadKey(t *testing.T) {
	t.Parallel()

	raw := bytes.Repeat([]byte{0xab}, KeySize)

	tests := []struct {
		name       string
		secret     string
		production bool
		wantSource KeySource
		wantErr    error
	}{
		{name: "hex", secret: hex.EncodeToString(raw), wantSource: SourceHex},
		{name: "base64", secret: base64.StdEncoding.EncodeToString(raw), wantSource: SourceBase64},
		{name: "hex in production", secret: hex.EncodeToString(raw), production: true, wantSource: SourceHex},
		{name: "passphrase", secret: "correct horse battery staple", wantSource: SourcePassphrase},
		{name: "missing in dev", secret: "", wantSource: SourceDevDefault},
		{name: "missing in production", secret: "", production: true, wantErr: ErrKeyRequired},
		{name: "passphrase in production", secret: "correct horse", production: true, wantErr: ErrRawKeyOnly},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			key, src, err := LoadKey(tt.secret, tt.production)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, key)
				return
			}
			require.NoError(t, err)
			assert.Len(t, key, KeySize)
			assert.Equal(t, tt.wantSource, src)
		})
	}

	a, _, _ := LoadKey("same passphrase", false)
	b, _, _ := LoadKey("same passphrase", false)
	assert.Equal(t, a, b)
}

type note struct {
	ID    uint `gorm:"primaryKey"`
	Title string
	Body  string `gorm:"type:text"`
}

func newPluginDB(t *testing.T) (*gorm.DB, *Cipher) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	c := newTestCipher(t)
	require.NoError(t, db.Use(NewPlugin(c).Register(note{}, "Body")))
	require.NoError(t, db.AutoMigrate(&note{}))
	return db, c
}

func TestPlugin_SealsAndOpens(t *testing.T) {
	t.Parallel()

	db, c := newPluginDB(t)

	n := note{Title: "visible", Body: "private"}
	require.NoError(t, db.Create(&n).Error)
	assert.Equal(t, "private", n.Body)

	var stored string
	require.NoError(t, db.Raw("SELECT body FROM notes WHERE id = ?", n.ID).Scan(&stored).Error)
	assert.True(t, IsEnvelope(stored))
	res, err := c.Decrypt(stored)
	require.NoError(t, err)
	assert.Equal(t, "private", res.Value)

	var title string
	require.NoError(t, db.Raw("SELECT title FROM notes WHERE id = ?", n.ID).Scan(&title).Error)
	assert.Equal(t, "visible", title)

	var got note
	require.NoError(t, db.First(&got, n.ID).Error)
	assert.Equal(t, "private", got.Body)

	got.Body = "updated"
	require.NoError(t, db.Save(&got).Error)
	require.NoError(t, db.Raw("SELECT body FROM notes WHERE id = ?", n.ID).Scan(&stored).Error)
	assert.True(t, IsEnvelope(stored))

	require.NoError(t, db.Model(&got).Updates(map[string]any{"body": "via map"}).Error)
	require.NoError(t, db.Raw("SELECT body FROM notes WHERE id = ?", n.ID).Scan(&stored).Error)
	assert.True(t, IsEnvelope(stored))

	var all []note
	require.NoError(t, db.Find(&all).Error)
	require.Len(t, all, 1)
	assert.Equal(t, "via map", all[0].Body)
}

func TestPlugin_LegacyRowsReadVerbatim(t *testing.T) {
	t.Parallel()

	db, _ := newPluginDB(t)
	require.NoError(t, db.Exec("INSERT INTO notes (title, body) VALUES (?, ?)", "old", "stored before encryption").Error)

	var got note
	require.NoError(t, db.Where("title = ?", "old").First(&got).Error)
	assert.Equal(t, "stored before encryption", got.Body)
}

func TestPlugin_SkipsNonModelDestinations(t *testing.T) {
	t.Parallel()

	db, _ := newPluginDB(t)
	for _, b := range []string{"first", "second"} {
		require.NoError(t, db.Create(&note{Title: b, Body: b}).Error)
	}

	var ids []uint
	require.NoError(t, db.Model(&note{}).Pluck("id", &ids).Error)
	assert.Len(t, ids, 2)

	var bodies []string
	require.NoError(t, db.Model(&note{}).Order("id").Pluck("body", &bodies).Error)
	require.Len(t, bodies, 2)
	assert.True(t, IsEnvelope(bodies[0]), "pluck returns stored values")

	var n int64
	require.NoError(t, db.Model(&note{}).Count(&n).Error)
	assert.Equal(t, int64(2), n)

	var titles []struct{ Title string }
	require.NoError(t, db.Model(&note{}).Select("title").Find(&titles).Error)
	assert.Len(t, titles, 2)
}
