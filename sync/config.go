package sync

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/config"
)

// DefaultRequestRange is the number of calendar days covered by a single
// report query when the config does not override it.
const DefaultRequestRange = 7

type Config struct {
	// StartDate is the earliest report date to request, inclusive.
	StartDate string
	// EndDate optionally caps the report range. Empty means "today" (UTC).
	EndDate string
	// PropertyID identifies the GA4 property reports are run against.
	PropertyID string
	// AccountID is carried onto every emitted record but never queried.
	AccountID string
	// RequestRange is the span in days of each report query.
	// Zero falls back to DefaultRequestRange.
	RequestRange int
	OAuth        OAuthSettings
}

// OAuthSettings holds the refresh credentials consumed by the API client's
// token provider. Token refresh itself happens outside this package.
type OAuthSettings struct {
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
	RefreshToken string `yaml:"refreshToken"`
}

func (c Config) Validate() error {
	if c.StartDate == "" {
		return fmt.Errorf("config is missing required key 'startDate'")
	}
	if _, err := time.Parse(DateFormat, c.StartDate); err != nil {
		return fmt.Errorf("config 'startDate' is not a valid date %w", err)
	}
	if c.EndDate != "" {
		if _, err := time.Parse(DateFormat, c.EndDate); err != nil {
			return fmt.Errorf("config 'endDate' is not a valid date %w", err)
		}
	}
	if c.PropertyID == "" {
		return fmt.Errorf("config is missing required key 'propertyId'")
	}
	if c.RequestRange < 0 {
		return fmt.Errorf("config 'requestRange' must be positive")
	}
	return nil
}

// RequestRangeOrDefault returns the configured request range,
// falling back to DefaultRequestRange when unset.
func (c Config) RequestRangeOrDefault() int {
	if c.RequestRange == 0 {
		return DefaultRequestRange
	}
	return c.RequestRange
}

type ConfigUnmarshaler interface {
	Unmarshal(compev CompositeEnvVar, sources ...io.Reader) (Config, error)
}

// CompositeEnvVar resolves child keys from a composite environment variable.
type CompositeEnvVar interface {
	LookupEnv(child string) (string, bool)
}

// JSONCompositeEnvVar resolves child keys from a single env var whose value
// is a flat JSON object, so OAuth secrets can live in one variable.
type JSONCompositeEnvVar struct {
	Parent string
}

func (c JSONCompositeEnvVar) LookupEnv(child string) (string, bool) {
	if c.Parent != "" {
		s := os.Getenv(c.Parent)
		if s != "" {
			m := make(map[string]string)
			err := json.Unmarshal([]byte(s), &m)
			if err == nil {
				v, exists := m[child]
				return v, exists
			}
		}
	}
	return "", false
}

type YAMLConfigUnmarshaler struct {
}

func (u YAMLConfigUnmarshaler) Unmarshal(compev CompositeEnvVar, sources ...io.Reader) (Config, error) {
	var result Config
	var options []config.YAMLOption
	for _, s := range sources {
		options = append(options, config.Source(s))
	}
	options = append(options, config.Expand(compev.LookupEnv))
	yaml, err := config.NewYAML(options...)
	if err != nil {
		return result, fmt.Errorf("failed to read yaml config %w", err)
	}
	readError := func(key string, cause error) error {
		return fmt.Errorf("failed to read '%s' from yaml config %w", key, cause)
	}
	key := "startDate"
	result.StartDate = yaml.Get(key).String()
	key = "endDate"
	if yaml.Get(key).HasValue() {
		result.EndDate = yaml.Get(key).String()
	}
	key = "propertyId"
	result.PropertyID = yaml.Get(key).String()
	key = "accountId"
	if yaml.Get(key).HasValue() {
		result.AccountID = yaml.Get(key).String()
	}
	key = "requestRange"
	if yaml.Get(key).HasValue() {
		err = yaml.Get(key).Populate(&result.RequestRange)
		if err != nil {
			return result, readError(key, err)
		}
	}
	key = "oauth"
	if yaml.Get(key).HasValue() {
		err = yaml.Get(key).Populate(&result.OAuth)
		if err != nil {
			return result, readError(key, err)
		}
	}

	if err = result.Validate(); err != nil {
		return result, err
	}

	return result, nil
}
