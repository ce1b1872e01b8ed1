// Package config loads config.yaml for the DTU ingest service.
//
// Values are layered: built-in defaults, then the YAML file, then DTU_*
// environment variables (see envVars for the full list). Credentials such
// as DTU_CACHE_PASSWORD, DTU_MQTT_PASSWORD and DTU_INFLUXDB_TOKEN are
// meant to arrive through the environment, typically from a .env file
// loaded by the binary. A malformed numeric or boolean variable fails
// Load instead of being ignored.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
package config
