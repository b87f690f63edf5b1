// Package config handles loading and validating device server configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Optional .env file support for local development
//   - Overriding with AIGROW_* environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - Broker certificates are referenced by path, never embedded
//   - Database DSNs and tokens should be set via environment variables
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
