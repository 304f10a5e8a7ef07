// Package config handles loading and validating farm gateway configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with FARMGW_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Secrets (MQTT password, JWT secret, InfluxDB token, Redis password) should be
// supplied through the environment rather than committed in the YAML file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Gateway.Name)
package config
