package repository

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/heatscore/internal/domain/gate"
)

// LoadSeedFile reads heat setups from a YAML file with a top-level "heats"
// list. Plain judge passcodes are replaced by their bcrypt hash.
func LoadSeedFile(path string) ([]HeatSetup, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrSeedFile, path, err)
	}
	var heats []HeatSetup
	if err := k.UnmarshalWithConf("heats", &heats, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSeedFile, path, err)
	}
	for i := range heats {
		h := &heats[i]
		if h.RoundHeatID <= 0 || h.RoundID <= 0 || h.EventID <= 0 {
			return nil, fmt.Errorf("%w: heat %d needs event_id, round_id and round_heat_id", ErrSeedFile, i)
		}
		for j := range h.Judges {
			jd := &h.Judges[j]
			if jd.Passcode == "" || jd.PasscodeHash != "" {
				continue
			}
			hash, err := gate.HashPasscode(jd.Passcode)
			if err != nil {
				return nil, fmt.Errorf("%w: judge %d: %w", ErrSeedFile, jd.PersonnelID, err)
			}
			jd.PasscodeHash, jd.Passcode = hash, ""
		}
	}
	return heats, nil
}
