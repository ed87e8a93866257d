package utils

import (
	"log"
	"time"
)

type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitialWait: 500 * time.Millisecond,
		MaxWait:     5 * time.Second,
		Multiplier:  2.0,
	}
}

// RetryWithBackoff runs operation until it succeeds or attempts are
// exhausted, sleeping with exponential backoff between tries.
func RetryWithBackoff(operation func() error, config RetryConfig) error {
	wait := config.InitialWait
	var err error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err = operation()
		if err == nil {
			return nil
		}

		if attempt == config.MaxAttempts {
			break
		}

		log.Printf("⏳ Attempt %d/%d failed: %v (retrying in %v)", attempt, config.MaxAttempts, err, wait)
		time.Sleep(wait)

		wait = time.Duration(float64(wait) * config.Multiplier)
		if wait > config.MaxWait {
			wait = config.MaxWait
		}
	}

	return err
}
