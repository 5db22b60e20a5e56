// Package config handles loading and validating Bulbnet configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Overlaying secrets from AWS Secrets Manager
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (passwords, tokens) should come from the environment
//     or the secret-store overlay, never from the YAML file
//   - The config file should have restricted permissions (0600)
//   - JWT secrets must be at least 32 characters
//
// Performance Characteristics:
//   - Configuration is loaded once at startup
//   - The secret store is fetched once; no runtime overhead after load
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.ApplySecrets(ctx); err != nil {
//	    log.Fatal(err)
//	}
package config
