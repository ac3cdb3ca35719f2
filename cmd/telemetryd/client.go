package main

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/abe-bb/sensor-telemetry/controlplane/auth"
	"github.com/abe-bb/sensor-telemetry/registry"
)

var registerSensorCmd = &cobra.Command{
	Use:   "register-sensor",
	Short: "Register a sensor identity against a running control plane",
	RunE:  runClientMutation("/register_sensor"),
}

var deregisterSensorCmd = &cobra.Command{
	Use:   "deregister-sensor",
	Short: "Deregister a sensor identity from a running control plane",
	RunE:  runClientMutation("/deregister_sensor"),
}

func init() {
	for _, c := range []*cobra.Command{registerSensorCmd, deregisterSensorCmd} {
		c.Flags().String("control-plane-url", "http://127.0.0.1:3000", "Base URL of the control plane")
		c.Flags().String("username", "", "Operator username (required)")
		c.Flags().String("private-key", "", "Path to the operator's PEM-encoded RSA private key (required)")
		c.Flags().String("sensor-name", "", "Sensor name (required)")
		c.Flags().StringSlice("fields", nil, "Comma-separated field names")
		c.Flags().StringSlice("field-types", nil, "Comma-separated field types: Float or Integer")
		c.Flags().String("key", "", "Hex-encoded 16-byte symmetric key (required)")
		c.Flags().String("iv", "", "Hex-encoded 8-byte IV (required)")
		c.Flags().Uint32("interval", 10, "Key-rotation interval, in frames")
		c.Flags().Bool("direction-bit", false, "Direction bit recorded with the sensor identity")
		_ = c.MarkFlagRequired("username")
		_ = c.MarkFlagRequired("private-key")
		_ = c.MarkFlagRequired("sensor-name")
		_ = c.MarkFlagRequired("key")
		_ = c.MarkFlagRequired("iv")
	}
}

func runClientMutation(path string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		baseURL := strings.TrimRight(viper.GetString("control-plane-url"), "/")
		username := viper.GetString("username")
		privKeyPath := viper.GetString("private-key")

		rec, err := recordFromFlags()
		if err != nil {
			return err
		}
		body, err := json.Marshal(rec)
		if err != nil {
			return err
		}

		priv, err := loadPrivateKey(privKeyPath)
		if err != nil {
			return err
		}

		client := &http.Client{}

		challenge, err := fetchChallenge(client, baseURL, username)
		if err != nil {
			return err
		}

		keyHeader, err := wrappedKeyHeader(client, baseURL)
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, baseURL+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set(auth.HeaderUser, username)
		req.Header.Set(auth.HeaderSignature, base64.StdEncoding.EncodeToString(sign(priv, body)))
		req.Header.Set(auth.HeaderKey, keyHeader)
		req.Header.Set(auth.HeaderChallenge, base64.StdEncoding.EncodeToString(sign(priv, challenge)))

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		respBody, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: %s: %s", path, resp.Status, strings.TrimSpace(string(respBody)))
		}
		logger.Info("request succeeded", "path", path, "sensor", rec.Name)
		return nil
	}
}

func recordFromFlags() (registry.SensorRecord, error) {
	keyHex := viper.GetString("key")
	ivHex := viper.GetString("iv")

	keyBytes, err := hex.DecodeString(keyHex)
	if err != nil || len(keyBytes) != 16 {
		return registry.SensorRecord{}, fmt.Errorf("--key must be 32 hex characters (16 bytes)")
	}
	ivBytes, err := hex.DecodeString(ivHex)
	if err != nil || len(ivBytes) != 8 {
		return registry.SensorRecord{}, fmt.Errorf("--iv must be 16 hex characters (8 bytes)")
	}

	fields := viper.GetStringSlice("fields")
	fieldTypeStrs := viper.GetStringSlice("field-types")
	fieldTypes := make([]registry.FieldType, len(fieldTypeStrs))
	for i, s := range fieldTypeStrs {
		fieldTypes[i] = registry.FieldType(s)
	}

	rec := registry.SensorRecord{
		Name:         viper.GetString("sensor-name"),
		Fields:       fields,
		FieldTypes:   fieldTypes,
		Interval:     viper.GetUint32("interval"),
		DirectionBit: viper.GetBool("direction-bit"),
	}
	copy(rec.Key[:], keyBytes)
	copy(rec.IV[:], ivBytes)
	return rec, nil
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", path)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	generic, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	key, ok := generic.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key in %s is not RSA", path)
	}
	return key, nil
}

func sign(priv *rsa.PrivateKey, message []byte) []byte {
	digest := sha256.Sum256(message)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	if err != nil {
		panic(err) // RSA signing with a valid key only fails on malformed input sizes
	}
	return sig
}

func fetchChallenge(client *http.Client, baseURL, username string) ([]byte, error) {
	resp, err := client.Get(baseURL + "/challenge/" + username)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching challenge: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// wrappedKeyHeader fetches the server's public key and RSA-OAEP wraps a
// fresh random symmetric key with it, matching the reserved "key" header
// semantics without the control plane needing to consume it.
func wrappedKeyHeader(client *http.Client, baseURL string) (string, error) {
	resp, err := client.Get(baseURL + "/server_public_key")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return "", fmt.Errorf("server_public_key response is not PEM")
	}
	pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("parsing server public key: %w", err)
	}

	var symmetricKey [16]byte
	if _, err := rand.Read(symmetricKey[:]); err != nil {
		return "", err
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, symmetricKey[:], nil)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(wrapped), nil
}
