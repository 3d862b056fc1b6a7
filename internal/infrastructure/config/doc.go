// Package config loads config.yaml for the couchcontrol service.
//
// Values are layered: built-in defaults, then the YAML file (unknown keys
// are an error), then COUCHCONTROL_* environment variables. Validate
// collects every problem into one error so a bad file is fixed in one pass.
//
// Keep the JWT secret, broker password and object store keys out of the
// file; COUCHCONTROL_JWT_SECRET, COUCHCONTROL_MQTT_PASSWORD and
// COUCHCONTROL_MINIO_SECRET_KEY exist for that.
package config
