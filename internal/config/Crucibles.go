/*

Crucible definitions can be overridden by a TOML file named by CRUCIBLE_CONFIG_FILE.

	[fees]
	wrap = "0.015"
	unwrap = "0.015"

	[lending]
	quote_symbol = "USDC"
	initial_liquidity = "1000000"
	interest_rate_annual = "0.05"

	[[crucible]]
	id = "fogo-crucible"
	target_rate = "1.0448"
	apr = "0.18"
	initial_supply = "6450000"
	base = { symbol = "FOGO", name = "Fogo" }
	wrapped = { symbol = "cFOGO", name = "Fogo Crucible" }

Sections that are left out keep their defaults. Fee keys left out of [fees] keep theirs too.

*/

package config

import (
	"fmt"
	"sort"
	"strings"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"

	"github.com/forgelabs/crucible/internal/fees"
	"github.com/forgelabs/crucible/internal/fixedpoint"
	"github.com/forgelabs/crucible/internal/lending"
	"github.com/forgelabs/crucible/internal/types"
)

// EngineConfig is everything the registry is built from, apart from prices.
type EngineConfig struct {
	Crucibles []types.CrucibleConfig
	Fees      fees.Schedule
	Lending   lending.Config
}

type crucibleFile struct {
	Fees     *feesSection      `toml:"fees"`
	Lending  *lendingSection   `toml:"lending"`
	Crucible []crucibleSection `toml:"crucible"`
}

type feesSection struct {
	Wrap            string `toml:"wrap"`
	Unwrap          string `toml:"unwrap"`
	LeveragedOpen   string `toml:"leveraged_open"`
	LeveragedClose  string `toml:"leveraged_close"`
	YieldOnInterest string `toml:"yield_on_interest"`
	Liquidation     string `toml:"liquidation"`
	YieldShare      string `toml:"yield_share"`
}

type lendingSection struct {
	QuoteSymbol        string `toml:"quote_symbol"`
	InitialLiquidity   string `toml:"initial_liquidity"`
	InterestRateAnnual string `toml:"interest_rate_annual"`
}

type crucibleSection struct {
	ID            string      `toml:"id"`
	Base          types.Token `toml:"base"`
	Wrapped       types.Token `toml:"wrapped"`
	TargetRate    string      `toml:"target_rate"`
	APR           string      `toml:"apr"`
	InitialSupply string      `toml:"initial_supply"`
}

// DefaultEngineConfig returns copies of the built-in parameters.
func DefaultEngineConfig() EngineConfig {
	crucibles := make([]types.CrucibleConfig, len(DefaultCrucibles))
	copy(crucibles, DefaultCrucibles)
	return EngineConfig{Crucibles: crucibles, Fees: DefaultFeeSchedule, Lending: DefaultLendingPool}
}

// LoadEngineConfig returns the defaults when path is empty, otherwise the file layered over them.
func LoadEngineConfig(path string) (EngineConfig, error) {
	cfg := DefaultEngineConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw crucibleFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return EngineConfig{}, errorsmod.Wrapf(types.ErrInvalidConfig, "decode %s: %s", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return EngineConfig{}, errorsmod.Wrapf(types.ErrInvalidConfig, "%s: unknown keys %s", path, strings.Join(keys, ", "))
	}

	if err := raw.apply(&cfg); err != nil {
		return EngineConfig{}, errorsmod.Wrapf(err, "%s", path)
	}

	log.Info().
		Str("file", path).
		Int("crucibles", len(cfg.Crucibles)).
		Msg("Loaded crucible configuration file")
	return cfg, nil
}

func (f crucibleFile) apply(cfg *EngineConfig) error {
	if f.Fees != nil {
		schedule, err := f.Fees.schedule(cfg.Fees)
		if err != nil {
			return err
		}
		cfg.Fees = schedule
	}
	if f.Lending != nil {
		lc, err := f.Lending.config(cfg.Lending)
		if err != nil {
			return err
		}
		cfg.Lending = lc
	}
	if len(f.Crucible) > 0 {
		crucibles := make([]types.CrucibleConfig, 0, len(f.Crucible))
		for i, c := range f.Crucible {
			cc, err := c.config()
			if err != nil {
				return errorsmod.Wrapf(err, "crucible #%d", i+1)
			}
			crucibles = append(crucibles, cc)
		}
		cfg.Crucibles = crucibles
	}
	return cfg.Fees.Validate()
}

func (s feesSection) schedule(base fees.Schedule) (fees.Schedule, error) {
	out := base
	fields := []struct {
		name string
		raw  string
		dst  *math.LegacyDec
	}{
		{"wrap", s.Wrap, &out.Wrap},
		{"unwrap", s.Unwrap, &out.Unwrap},
		{"leveraged_open", s.LeveragedOpen, &out.LeveragedOpen},
		{"leveraged_close", s.LeveragedClose, &out.LeveragedClose},
		{"yield_on_interest", s.YieldOnInterest, &out.YieldOnInterest},
		{"liquidation", s.Liquidation, &out.Liquidation},
		{"yield_share", s.YieldShare, &out.YieldShare},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.raw) == "" {
			continue
		}
		d, err := parseDec(f.name, f.raw)
		if err != nil {
			return fees.Schedule{}, err
		}
		*f.dst = d
	}
	return out, nil
}

func (s lendingSection) config(base lending.Config) (lending.Config, error) {
	out := base
	if s.QuoteSymbol != "" {
		out.QuoteSymbol = s.QuoteSymbol
	}
	if s.InitialLiquidity != "" {
		amt, err := fixedpoint.ParseAmount(s.InitialLiquidity)
		if err != nil {
			return lending.Config{}, errorsmod.Wrap(types.ErrInvalidConfig, "initial_liquidity: "+err.Error())
		}
		out.InitialLiquidity = amt
	}
	if s.InterestRateAnnual != "" {
		d, err := parseDec("interest_rate_annual", s.InterestRateAnnual)
		if err != nil {
			return lending.Config{}, err
		}
		out.InterestRateAnnual = d
	}
	return out, nil
}

func (s crucibleSection) config() (types.CrucibleConfig, error) {
	if s.ID == "" {
		return types.CrucibleConfig{}, errorsmod.Wrap(types.ErrInvalidConfig, "id is required")
	}
	cc := types.CrucibleConfig{
		ID:            types.CrucibleID(s.ID),
		BaseToken:     s.Base,
		WrappedToken:  s.Wrapped,
		TargetRate:    DefaultTargetRate,
		InitialSupply: math.ZeroInt(),
	}
	if s.TargetRate != "" {
		d, err := parseDec("target_rate", s.TargetRate)
		if err != nil {
			return types.CrucibleConfig{}, err
		}
		cc.TargetRate = d
	}
	if s.APR == "" {
		return types.CrucibleConfig{}, errorsmod.Wrapf(types.ErrInvalidConfig, "%s: apr is required", s.ID)
	}
	apr, err := parseDec("apr", s.APR)
	if err != nil {
		return types.CrucibleConfig{}, err
	}
	cc.APR = apr
	if s.InitialSupply != "" {
		supply, err := fixedpoint.ParseAmount(s.InitialSupply)
		if err != nil {
			return types.CrucibleConfig{}, errorsmod.Wrapf(types.ErrInvalidConfig, "%s: initial_supply: %s", s.ID, err)
		}
		cc.InitialSupply = supply
	}
	return cc, nil
}

func parseDec(name, raw string) (math.LegacyDec, error) {
	d, err := math.LegacyNewDecFromStr(strings.TrimSpace(raw))
	if err != nil {
		return math.LegacyDec{}, errorsmod.Wrap(types.ErrInvalidConfig, fmt.Sprintf("%s: %q is not a decimal", name, raw))
	}
	return d, nil
}
