package tap

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

type Config struct {
	ApiKey            string  `json:"api_key" jsonschema:"description=The token to authenticate against the API service"`
	ApiUrl            string  `json:"api_url" jsonschema:"description=The url for the API service"`
	PageSize          int     `json:"page_size,omitempty" jsonschema:"description=The page size for each request"`
	UserAgent         string  `json:"user_agent,omitempty" jsonschema:"description=Overrides the randomized browser user agent"`
	RequestsPerSecond float64 `json:"requests_per_second,omitempty" jsonschema:"description=Client-side request rate limit"`
}

func (c Config) Validate() error {
	if c.ApiKey == "" {
		return fmt.Errorf("config is missing api_key")
	}
	if c.ApiUrl == "" {
		return fmt.Errorf("config is missing api_url")
	}
	return nil
}

// ConfigSchema renders the settings schema shown by the about command.
func ConfigSchema() (json.RawMessage, error) {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := reflector.Reflect(&Config{})
	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal config schema: %w", err)
	}
	return out, nil
}
