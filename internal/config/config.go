package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/the-muppet/nice-rack/internal/core"
)

type Config struct {
	App struct {
		Env string
	} `mapstructure:"app"`

	Storage struct {
		Driver     string // "postgres" or "memory"
		DSN        string
		MaxRetries int `mapstructure:"max_retries"`
	} `mapstructure:"storage"`

	Geometry core.Geometry `mapstructure:"geometry"`

	Metrics struct {
		Enabled bool
		Addr    string
	} `mapstructure:"metrics"`
}

// Load reads the YAML config at path (optional) with RACK_* env overrides and
// defaults for every geometry constant.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := c.Geometry.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "prod")
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.max_retries", core.DefaultMaxRetries)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9091")

	geo := core.DefaultGeometry()
	v.SetDefault("geometry.max_rows_per_box", geo.MaxRowsPerBox)
	v.SetDefault("geometry.max_sections_per_row", geo.MaxSectionsPerRow)
	v.SetDefault("geometry.max_cards_per_section", geo.MaxCardsPerSection)
	v.SetDefault("geometry.max_quantity_per_section", geo.MaxQuantityPerSection)
	v.SetDefault("geometry.max_quantity_per_card", geo.MaxQuantityPerCard)
	v.SetDefault("geometry.boxes_per_column", geo.BoxesPerColumn)
	v.SetDefault("geometry.columns_per_shelf", geo.ColumnsPerShelf)
	v.SetDefault("geometry.shelves_per_rack", geo.ShelvesPerRack)
}
