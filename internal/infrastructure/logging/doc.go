// Package logging builds the service's log/slog logger.
//
// Entries are JSON by default (text with logging.format: text) and carry
// service and version. Attributes whose key contains password, token or
// secret are written as [redacted]. Subsystems log through
// Component(name) children so entries can be filtered by component.
//
//	logging:
//	  level: info        # debug, info, warn, error
//	  format: json
//	  output: stdout     # or stderr
//	  file:
//	    path: /var/log/dtu-ingest.log   # lumberjack-rotated copy
//	    max_size: 100                    # megabytes
//	    max_backups: 5
//
//	log := logging.New(cfg.Logging, version)
//	defer log.Close()
//	mqttLog := log.Component("mqtt")
package logging
