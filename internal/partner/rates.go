// Package partner resolves sponsoring-partner token rewards for merged pull
// requests that close tagged issues.
package partner

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// RateRule maps issue tags to token amounts for one sponsoring partner.
// Rules are loaded at startup from YAML files and fingerprinted for staleness
// detection.
type RateRule struct {
	PartnerID   string
	TagRates    map[string]decimal.Decimal
	DefaultRate decimal.Decimal
	Fingerprint string // SHA-256 of the raw YAML file; computed at load time
}

// rawRule is the on-disk YAML shape. Rates are decimal strings so amounts
// like "2.5" survive config round trips.
type rawRule struct {
	PartnerID   string            `yaml:"partner_id"`
	TagRates    map[string]string `yaml:"tag_rates"`
	DefaultRate string            `yaml:"default_rate"`
}

// RateRepository looks up the rate rule for a partner.
type RateRepository interface {
	// Get returns the rule for the given partner id, or an error if none is
	// configured.
	Get(ctx context.Context, partnerID string) (*RateRule, error)
}

// FileSystemRateRepository loads partner rate rules from *.yaml files in a
// directory. Each file contains exactly one partner's rule at the top level.
// Rules are loaded once at startup and cached in memory.
type FileSystemRateRepository struct {
	dir   string
	rules map[string]RateRule // keyed by PartnerID
}

// NewFileSystemRateRepository creates a new repository and eagerly loads all
// rules from dir. Returns an error if any rule file is malformed or invalid.
func NewFileSystemRateRepository(dir string) (*FileSystemRateRepository, error) {
	repo := &FileSystemRateRepository{
		dir:   dir,
		rules: make(map[string]RateRule),
	}
	if err := repo.load(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *FileSystemRateRepository) load() error {
	info, err := os.Stat(r.dir)
	if os.IsNotExist(err) {
		return nil // no rules directory — valid (zero partners configured)
	}
	if err != nil {
		return fmt.Errorf("partner rate dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("partner rate path %q is not a directory", r.dir)
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("reading partner rate dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(r.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading rate file %s: %w", path, err)
		}

		var raw rawRule
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("parsing rate file %s: %w", path, err)
		}
		if raw.PartnerID == "" {
			continue // skip empty / comment-only files
		}

		rule := RateRule{
			PartnerID:   raw.PartnerID,
			TagRates:    make(map[string]decimal.Decimal, len(raw.TagRates)),
			Fingerprint: fmt.Sprintf("%x", sha256.Sum256(data)),
		}

		for tag, rate := range raw.TagRates {
			v, err := decimal.NewFromString(rate)
			if err != nil {
				return fmt.Errorf("partner %q: invalid rate %q for tag %q: %w", raw.PartnerID, rate, tag, err)
			}
			if v.IsNegative() {
				return fmt.Errorf("partner %q: rate for tag %q must not be negative", raw.PartnerID, tag)
			}
			rule.TagRates[tag] = v
		}

		if raw.DefaultRate != "" {
			v, err := decimal.NewFromString(raw.DefaultRate)
			if err != nil {
				return fmt.Errorf("partner %q: invalid default_rate %q: %w", raw.PartnerID, raw.DefaultRate, err)
			}
			if v.IsNegative() {
				return fmt.Errorf("partner %q: default_rate must not be negative", raw.PartnerID)
			}
			rule.DefaultRate = v
		}

		if _, exists := r.rules[raw.PartnerID]; exists {
			return fmt.Errorf("partner %q: duplicate rate rule (check multiple YAML files)", raw.PartnerID)
		}

		r.rules[raw.PartnerID] = rule
	}
	return nil
}

// Get returns the rule for the given partner id, or an error if not found.
func (r *FileSystemRateRepository) Get(_ context.Context, partnerID string) (*RateRule, error) {
	rule, ok := r.rules[partnerID]
	if !ok {
		return nil, fmt.Errorf("partner rate rule %q not found", partnerID)
	}
	return &rule, nil
}

// Amount converts an issue's tag set into a token amount. Tags without a
// configured rate fall back to the default rate. A zero total means no
// reward.
func (rule *RateRule) Amount(tags []string) decimal.Decimal {
	total := decimal.Zero
	for _, tag := range tags {
		if rate, ok := rule.TagRates[tag]; ok {
			total = total.Add(rate)
			continue
		}
		total = total.Add(rule.DefaultRate)
	}
	return total
}
