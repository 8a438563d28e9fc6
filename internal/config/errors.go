package config

import "errors"

// ErrConfig marks fatal configuration problems (bad config file, missing
// credentials, missing calendar). Callers that see it should report once
// and exit non-zero rather than retry.
var ErrConfig = errors.New("configuration error")
