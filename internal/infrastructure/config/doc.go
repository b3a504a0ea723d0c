// Package config handles loading and validating the command-line switch
// bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (CMDSWITCH_*)
//   - Validation of required fields and switch options
//   - Per-switch defaults and the friendly_name alias
//
// Security Considerations:
//   - Switch commands run through a shell with the bridge's privileges.
//     The config file should be owned by the service user with mode 0600.
//   - Broker passwords and tokens should be set via environment variables.
//
// Usage:
//
//	cfg, err := config.Load("configs/cmdswitch.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, key := range cfg.SwitchKeys() {
//	    fmt.Println(key, cfg.Switches[key].Name)
//	}
package config
