package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/crawlpoint/connector/pkg/schedule"
)

var validate = validator.New()

// Validate checks the configuration for missing required fields and
// invalid values. Struct tags cover the mechanical checks; cross-field
// rules live here.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(verrs))
			for _, ve := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", ve.Namespace(), ve.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return err
	}

	if cfg.Server.Secure {
		if cfg.Server.TLSCert == "" || cfg.Server.TLSKey == "" {
			return fmt.Errorf("invalid configuration: server.secure requires server.tls_cert and server.tls_key")
		}
		if len(cfg.Trust.AllowedNames) == 0 && len(cfg.Trust.SkipCertNames) == 0 {
			return fmt.Errorf("invalid configuration: server.secure requires trust.allowed_names")
		}
	}

	if _, err := ParseScheduleSpec(cfg.Adaptor.FullListingSchedule); err != nil {
		return fmt.Errorf("invalid configuration: adaptor.full_listing_schedule: %w", err)
	}

	if cfg.Feed.S3.Enabled && cfg.Feed.S3.Bucket == "" {
		return fmt.Errorf("invalid configuration: feed.s3.enabled requires feed.s3.bucket")
	}

	return nil
}

// ParseScheduleSpec parses the textual schedule forms accepted in the
// configuration: "daily=HH:MM" and "every=<duration>". Cron expressions
// are parsed upstream; the scheduler itself consumes only the resulting
// Schedule.
func ParseScheduleSpec(spec string) (schedule.Schedule, error) {
	form, arg, ok := strings.Cut(spec, "=")
	if !ok {
		return nil, fmt.Errorf("schedule %q: want daily=HH:MM or every=<duration>", spec)
	}
	switch form {
	case "daily":
		hh, mm, ok := strings.Cut(arg, ":")
		if !ok {
			return nil, fmt.Errorf("schedule %q: want daily=HH:MM", spec)
		}
		hour, err := strconv.Atoi(hh)
		if err != nil || hour < 0 || hour > 23 {
			return nil, fmt.Errorf("schedule %q: bad hour", spec)
		}
		minute, err := strconv.Atoi(mm)
		if err != nil || minute < 0 || minute > 59 {
			return nil, fmt.Errorf("schedule %q: bad minute", spec)
		}
		return schedule.Daily(hour, minute), nil
	case "every":
		d, err := time.ParseDuration(arg)
		if err != nil {
			return nil, fmt.Errorf("schedule %q: %w", spec, err)
		}
		if d < time.Minute {
			return nil, fmt.Errorf("schedule %q: period below one minute", spec)
		}
		return schedule.Every(d), nil
	default:
		return nil, fmt.Errorf("schedule %q: unknown form %q", spec, form)
	}
}
