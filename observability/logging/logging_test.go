package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupEmitsRenamedKeys(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := Setup("bridged", "test", WithWriter(&buf))
	defer closer.Close()

	logger.Info("invocation", MaskField("signature", "abcd"), MaskField("action", "withdraw"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "invocation", line["message"])
	require.Equal(t, "INFO", line["severity"])
	require.Equal(t, "bridged", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, RedactedValue, line["signature"])
	require.Equal(t, "withdraw", line["action"])
	require.Contains(t, line, "timestamp")
}

func TestSetupLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := Setup("bridged", "", WithWriter(&buf), WithLevel("warn"))
	defer closer.Close()

	logger.Info("quiet")
	require.Zero(t, buf.Len())
	logger.Warn("loud")
	require.Contains(t, buf.String(), "loud")
}

func TestSetupMirrorsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridged.log")
	var buf bytes.Buffer
	logger, closer := Setup("bridged", "", WithWriter(&buf), WithFile(path, 1, 1))
	logger.Info("persisted")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "persisted")
}

func TestMaskValue(t *testing.T) {
	require.Equal(t, "", MaskValue(""))
	require.Equal(t, RedactedValue, MaskValue("secret"))
	require.True(t, IsAllowlisted(" Severity "))
	require.Contains(t, RedactionAllowlist(), "player")
}

func TestMaskFieldBridgeKeys(t *testing.T) {
	require.Equal(t, "100ushido", MaskField("coins", "100ushido").Value.String())
	require.Equal(t, "1700000000:abc", MaskField("Nonce", "1700000000:abc").Value.String())
	require.Equal(t, RedactedValue, MaskField("authorization", "Bearer eyJ").Value.String())
	require.Equal(t, RedactedValue, MaskField("keystore", "/keys/oracle.json").Value.String())
	require.Equal(t, RedactedValue, MaskField("unlisted", "value").Value.String())
	// An unsigned envelope logs an empty signature rather than a placeholder.
	require.Equal(t, "", MaskField("signature", "").Value.String())
	require.False(t, IsAllowlisted("signature"))
}
