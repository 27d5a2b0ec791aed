package region

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"leadflow_backend/internal/leads/domain"
)

type seedFile struct {
	AreaCodes []domain.AreaCodeRecord `yaml:"area_codes"`
}

// LoadSeedFile reads an area code seed file from disk.
func LoadSeedFile(path string) ([]domain.AreaCodeRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseSeed(f)
}

// ParseSeed decodes and validates a YAML area code document.
func ParseSeed(r io.Reader) ([]domain.AreaCodeRecord, error) {
	var doc seedFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode area code seed: %w", err)
	}

	seen := make(map[int]struct{}, len(doc.AreaCodes))
	for _, rec := range doc.AreaCodes {
		if rec.AreaCode < minAreaCode || rec.AreaCode > maxAreaCode {
			return nil, fmt.Errorf("area code %d out of range", rec.AreaCode)
		}
		if rec.StateName == "" || rec.Region == "" {
			return nil, fmt.Errorf("area code %d: state_name and region are required", rec.AreaCode)
		}
		if _, dup := seen[rec.AreaCode]; dup {
			return nil, fmt.Errorf("area code %d listed twice", rec.AreaCode)
		}
		seen[rec.AreaCode] = struct{}{}
	}
	return doc.AreaCodes, nil
}
