package config

// DefaultConfigYAML returns a commented YAML file for hookwarden init.
func DefaultConfigYAML() string {
	return `# hookwarden configuration
# Generated by: hookwarden init
#
# Environment variables (HOOKWARDEN_LEVEL, HOOKWARDEN_HTTP_ADDR,
# HOOKWARDEN_AUDIT_FILE, HOOKWARDEN_AUDIT_DB, HOOKWARDEN_WEBHOOK_URL, ...)
# override values below. A .env file in the working directory is loaded first.

# Protection level: off | watch | guard | shield
#   off     no validation, no seed
#   watch   score and alert, never block
#   guard   block leaks, destructive commands, system paths, injection
#   shield  block every detected issue
level: guard

# Per-level overrides. A level listed here replaces the built-in definition.
# levels:
#   guard:
#     block: [data_leak, destructive_command, system_path, prompt_injection, detector_error, invalid_input]
#     alert:
#       high_threat_input: true
#       action_blocked: true
#       prompt_injection: true
#       session_anomaly: true
#     seed: standard        # none | standard | strict
#     fail_closed: true     # block when the detector errors

detector:
  # YAML rule file (rules: [{pattern, category, severity, threat, description}]).
  # Empty uses the built-in rules.
  rules: ""

tools:
  # Trusted tools skip validation entirely. * matches any run of characters.
  trusted: []
  # Dangerous tools always block unless the level is off.
  dangerous:
    - sudo
    - shell_exec_root

escape:
  # Tools trusted for every session at startup.
  global_trust: []

session:
  max_sessions: 10000
  timeout: 1h
  window_size: 10

anomaly:
  min_messages_for_rate_check: 5
  high_threat_threshold: 4
  high_threat_rate_threshold: 0.3
  high_block_rate_threshold: 0.5
  escalation_threshold: 2
  recent_threat_window_size: 10

audit:
  max_entries: 10000
  entry_ttl: 24h
  # Hash-chained JSONL log, verify with: hookwarden audit verify <file>
  file: ""
  # SQLite database for queries across restarts.
  db: ""

alerts:
  enabled: true
  rate_limit_window: 1m
  rate_limit_max: 10
  history_size: 100
  retry_count: 3
  retry_initial_interval: 500ms
  request_timeout: 5s
  workers: 4
  queue_size: 256
  webhooks: []
  # webhooks:
  #   - url: https://hooks.slack.com/services/T000/B000/XXX
  #     format: slack          # generic | slack | pagerduty
  #     min_severity: high
  #     rate_per_second: 1

server:
  http_addr: 127.0.0.1:7420
  grpc_addr: 127.0.0.1:7421
  shutdown_timeout: 10s

sweep_interval: 1m
log_level: info
`
}
