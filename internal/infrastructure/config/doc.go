// Package config handles loading and validating the WESMUN core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - An optional .env file for local development
//   - Overriding with WESMUN_* environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - Sensitive values (emergency admin password, ticket secret, broker
//     credentials) should be set via environment variables
//   - Production mode forces the Secure flag on the session cookie
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml", true)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Auth.AllowedDomain)
package config
