// Package config loads the envelope configuration file.
//
// The file holds named profiles, each with a base URL, default headers,
// transfer option overrides (by mnemonic, e.g. MAXREDIRS), TLS settings and
// {{variable}} values:
//
//	default_profile: restful
//	log_level: info
//	profiles:
//	  restful:
//	    base_url: https://api.restful-api.dev
//	    headers: ["Content-Type: application/json"]
//	    options: {MAXREDIRS: 5, TIMEOUT_MS: 10000}
//	  secure:
//	    base_url: https://{{host}}
//	    variables: {host: api.example.com}
//	    tls: {enabled: true, ca: ~/certs/ca.pem, key: ~/certs/client.key, cert: ~/certs/client.crt}
//
// YAML, JSON and TOML are accepted; the format follows the file extension.
package config
