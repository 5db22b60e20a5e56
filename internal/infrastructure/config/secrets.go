package config

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// secretPayload is the JSON document stored in AWS Secrets Manager.
// Every field is optional; present fields overwrite the loaded config.
type secretPayload struct {
	JWTSecret      string `json:"jwt_secret"`
	MQTTUsername   string `json:"mqtt_username"`
	MQTTPassword   string `json:"mqtt_password"`
	MQTTRootCA     string `json:"mqtt_root_ca"`
	MQTTClientCert string `json:"mqtt_cert"`
	MQTTClientKey  string `json:"mqtt_private_key"`
}

// ApplySecrets fetches the configured secret from AWS Secrets Manager and
// overlays its values onto c. Certificate material is normalised into PEM
// form here, once, so downstream consumers always see valid PEM.
//
// No-op when the overlay is disabled.
func (c *Config) ApplySecrets(ctx context.Context) error {
	if !c.Secrets.Enabled {
		return nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.Secrets.Region))
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}

	client := secretsmanager.NewFromConfig(awsCfg)
	name := c.Secrets.SecretName
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &name,
	})
	if err != nil {
		return fmt.Errorf("fetching secret %q: %w", name, err)
	}
	if out.SecretString == nil {
		return fmt.Errorf("secret %q has no string payload", name)
	}

	var payload secretPayload
	if err := json.Unmarshal([]byte(*out.SecretString), &payload); err != nil {
		return fmt.Errorf("parsing secret %q: %w", name, err)
	}

	c.overlaySecrets(payload)
	return nil
}

func (c *Config) overlaySecrets(p secretPayload) {
	if p.JWTSecret != "" {
		c.Security.JWT.Secret = p.JWTSecret
	}
	if p.MQTTUsername != "" {
		c.MQTT.Auth.Username = p.MQTTUsername
	}
	if p.MQTTPassword != "" {
		c.MQTT.Auth.Password = p.MQTTPassword
	}
	if p.MQTTRootCA != "" {
		c.MQTT.TLS.RootCA = NormalizePEM(p.MQTTRootCA)
		c.MQTT.TLS.Enabled = true
	}
	if p.MQTTClientCert != "" {
		c.MQTT.TLS.ClientCert = NormalizePEM(p.MQTTClientCert)
		c.MQTT.TLS.Enabled = true
	}
	if p.MQTTClientKey != "" {
		c.MQTT.TLS.ClientKey = NormalizePEM(p.MQTTClientKey)
		c.MQTT.TLS.Enabled = true
	}
}

// NormalizePEM reconstructs line breaks in PEM material that arrived as a
// single line with spaces in place of newlines. Secrets Manager's JSON
// editor flattens pasted certificates this way. Material that already
// contains newlines is returned unchanged.
func NormalizePEM(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.Contains(s, "\n") {
		return s
	}

	var b strings.Builder
	rest := s
	for {
		begin := strings.Index(rest, "-----BEGIN ")
		if begin < 0 {
			break
		}
		// Header runs to the closing "-----" after the label.
		afterLabel := strings.Index(rest[begin+len("-----BEGIN "):], "-----")
		if afterLabel < 0 {
			break
		}
		headerEnd := begin + len("-----BEGIN ") + afterLabel + len("-----")
		header := rest[begin:headerEnd]

		endMarker := strings.Index(rest[headerEnd:], "-----END ")
		if endMarker < 0 {
			break
		}
		body := strings.TrimSpace(rest[headerEnd : headerEnd+endMarker])

		footStart := headerEnd + endMarker
		footLabel := strings.Index(rest[footStart+len("-----END "):], "-----")
		if footLabel < 0 {
			break
		}
		footerEnd := footStart + len("-----END ") + footLabel + len("-----")
		footer := rest[footStart:footerEnd]

		b.WriteString(header)
		b.WriteString("\n")
		b.WriteString(strings.ReplaceAll(body, " ", "\n"))
		b.WriteString("\n")
		b.WriteString(footer)
		b.WriteString("\n")

		rest = rest[footerEnd:]
	}

	if b.Len() == 0 {
		return s
	}
	return b.String()
}
