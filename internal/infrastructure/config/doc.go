// Package config loads and validates StableLink Core configuration.
//
// Configuration comes from a YAML file (configs/config.yaml by default),
// with environment variable overrides for deployment-specific and secret
// values (STABLECORE_* variables).
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Broker.Host)
//
// Validation is strict: a missing JWT secret or an unknown timezone fails
// startup rather than degrading at runtime.
package config
