// Package config loads the FTL's init-time parameters via
// github.com/spf13/viper: defaults are set first, then an optional
// config file and HCFTL_-prefixed environment variables may override
// them. Nothing in this package is consulted again after Load
// returns.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the device geometry, NAND timing constants, GC
// thresholds, and hot/cold split percentage, plus the reporting
// interval and ring capacity the ambient stack needs.
type Config struct {
	SecSz     int `mapstructure:"secsz"`
	SecsPerPg int `mapstructure:"secs_per_pg"`
	PgsPerBlk int `mapstructure:"pgs_per_blk"`
	BlksPerPl int `mapstructure:"blks_per_pl"`
	PlsPerLun int `mapstructure:"pls_per_lun"`
	LunsPerCh int `mapstructure:"luns_per_ch"`
	NChs      int `mapstructure:"nchs"`

	PgRdLatNs   uint64 `mapstructure:"pg_rd_lat"`
	PgWrLatNs   uint64 `mapstructure:"pg_wr_lat"`
	BlkErLatNs  uint64 `mapstructure:"blk_er_lat"`
	ChXferLatNs uint64 `mapstructure:"ch_xfer_lat"`

	GCThresPcent     int `mapstructure:"gc_thres_pcent"`
	GCThresPcentHigh int `mapstructure:"gc_thres_pcent_high"`

	HotSharePct int `mapstructure:"hot_share_pct"`

	ReportIntervalWrites uint64 `mapstructure:"report_interval_writes"`
	RingCapacity         int    `mapstructure:"ring_capacity"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("secsz", 512)
	v.SetDefault("secs_per_pg", 8)
	v.SetDefault("pgs_per_blk", 256)
	v.SetDefault("blks_per_pl", 256)
	v.SetDefault("pls_per_lun", 1)
	v.SetDefault("luns_per_ch", 8)
	v.SetDefault("nchs", 8)

	v.SetDefault("pg_rd_lat", 40000)
	v.SetDefault("pg_wr_lat", 200000)
	v.SetDefault("blk_er_lat", 2000000)
	v.SetDefault("ch_xfer_lat", 1000)

	v.SetDefault("gc_thres_pcent", 25)
	v.SetDefault("gc_thres_pcent_high", 37)

	v.SetDefault("hot_share_pct", 20)

	v.SetDefault("report_interval_writes", 16384)
	v.SetDefault("ring_capacity", 1024)
}

// Load reads configuration from configFile (if non-empty), then from
// HCFTL_-prefixed environment variables, layered over the defaults
// above, and returns the resolved Config.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("hcftl")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", configFile, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects a configuration that would produce a degenerate
// geometry or out-of-range GC thresholds before any core component
// sees it.
func (c *Config) Validate() error {
	positive := map[string]int{
		"secsz": c.SecSz, "secs_per_pg": c.SecsPerPg, "pgs_per_blk": c.PgsPerBlk,
		"blks_per_pl": c.BlksPerPl, "pls_per_lun": c.PlsPerLun,
		"luns_per_ch": c.LunsPerCh, "nchs": c.NChs,
	}
	for name, v := range positive {
		if v <= 0 {
			return fmt.Errorf("config: %s must be positive, got %d", name, v)
		}
	}
	if c.GCThresPcent < 0 || c.GCThresPcent > 100 {
		return fmt.Errorf("config: gc_thres_pcent out of range [0,100]: %d", c.GCThresPcent)
	}
	if c.GCThresPcentHigh < 0 || c.GCThresPcentHigh > 100 {
		return fmt.Errorf("config: gc_thres_pcent_high out of range [0,100]: %d", c.GCThresPcentHigh)
	}
	if c.GCThresPcentHigh < c.GCThresPcent {
		return fmt.Errorf("config: gc_thres_pcent_high (%d) must be >= gc_thres_pcent (%d)", c.GCThresPcentHigh, c.GCThresPcent)
	}
	if c.HotSharePct < 0 || c.HotSharePct > 100 {
		return fmt.Errorf("config: hot_share_pct out of range [0,100]: %d", c.HotSharePct)
	}
	return nil
}
