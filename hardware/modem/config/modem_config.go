// Separate package for hardware/modem related config structure.
// Ugly workaround to import cycles.
package modem_config

type Config struct { //nolint:maligned
	Device           string `hcl:"device"`
	Baud             int    `hcl:"baud"`
	LogDebug         bool   `hcl:"log_debug"`
	MaxAttempts      int    `hcl:"max_attempts"`
	AttemptTimeoutMs int    `hcl:"attempt_timeout_ms"`
	BackoffBaseMs    int    `hcl:"backoff_base_ms"`
	BackoffJitterMs  int    `hcl:"backoff_jitter_ms"`
	AckToken         string `hcl:"ack_token"`
	Unconfirmed      bool   `hcl:"unconfirmed"` // AT+DTRX confirm=0
	Trials           int    `hcl:"trials"`
	Join             Join   `hcl:"join"`
}

type Join struct {
	Enable      bool   `hcl:"enable"`
	Region      string `hcl:"region"`
	DevEUI      string `hcl:"dev_eui"`
	AppEUI      string `hcl:"app_eui"`
	AppKey      string `hcl:"app_key"`
	TimeoutMs   int    `hcl:"timeout_ms"`
	Trials      int    `hcl:"trials"`
	IntervalSec int    `hcl:"interval_sec"`
}
