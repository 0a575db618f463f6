/*
Package config loads the monitoringcenter daemon configuration.

Sources are applied in increasing order of precedence:

  - compiled-in defaults (NewDefault)
  - a YAML file (LoadFromFile)
  - MONITORINGCENTER_* environment variables (LoadFromEnv)
  - command line flags, applied by the binary

A minimal file:

	naming:
	  application_name: checkout
	  datacenter_name: eu-west
	  postfix_policy: ADD_COMPOSITE_TYPES
	graphite:
	  enabled: true
	  address: graphite.internal:2003
	  interval: 30s
	http:
	  enabled: true
	  address: :8080

Validate delegates the naming and graphite rules to monitoring.Config and
adds the daemon-only checks for logging and the HTTP listener.
*/
package config
