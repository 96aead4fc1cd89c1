// Copyright 2025 DynamicEC2Scaler Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-logr/logr"

	"github.com/darindeters/DynamicEC2Scaler/pkg/aws"
)

// ErrPricingNotFound is returned when no filter variant yields a price.
type ErrPricingNotFound struct {
	InstanceType     string
	Profile          Profile
	Region           string
	AttemptedFilters []string
}

func (e *ErrPricingNotFound) Error() string {
	attempted := strings.Join(e.AttemptedFilters, "; ")
	if attempted == "" {
		attempted = "(none)"
	}
	return fmt.Sprintf("no pricing information found for %s (%+v) in %s using filters: %s",
		e.InstanceType, e.Profile, e.Region, attempted)
}

type cacheKey struct {
	instanceType    string
	operatingSystem string
	preInstalledSw  string
	licenseModel    string
}

// Resolver looks up on-demand hourly rates and caches them for the
// lifetime of the process.
type Resolver struct {
	client aws.PricingClient
	region string
	log    logr.Logger

	mu    sync.Mutex
	cache map[cacheKey]float64
}

// NewResolver builds a Resolver for a region. The region determines the
// catalog location filter for all lookups.
func NewResolver(client aws.PricingClient, region string, log logr.Logger) *Resolver {
	return &Resolver{
		client: client,
		region: region,
		log:    log.WithName("pricing"),
		cache:  make(map[cacheKey]float64),
	}
}

// HourlyRate resolves the on-demand hourly USD rate for an instance type
// under the given catalog profile. Results are cached under the requested
// profile, so later lookups hit the cache even when the price came from a
// relaxed filter variant. Unsupported regions resolve to 0.0 rather than
// an error, keeping savings estimation best effort.
func (r *Resolver) HourlyRate(ctx context.Context, instanceType string, profile Profile) (float64, error) {
	key := cacheKey{instanceType, profile.OperatingSystem, profile.PreInstalledSw, profile.LicenseModel}

	r.mu.Lock()
	cached, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	location := LocationForRegion(r.region)
	if r.region == "" || location == "" {
		r.log.Info("pricing lookup skipped, region has no catalog location; defaulting hourly rate to 0.0",
			"region", r.region)
		return 0.0, nil
	}

	var attempted []string
	for _, filters := range filterVariants(instanceType, location, profile) {
		attempted = append(attempted, formatFilters(filters))
		price, found, err := r.lookup(ctx, filters)
		if err != nil {
			return 0, err
		}
		if !found {
			continue
		}
		r.mu.Lock()
		r.cache[key] = price
		r.mu.Unlock()
		return price, nil
	}

	return 0, &ErrPricingNotFound{
		InstanceType:     instanceType,
		Profile:          profile,
		Region:           r.region,
		AttemptedFilters: attempted,
	}
}

// lookup runs one GetProducts query and extracts the first on-demand
// price dimension from the first product returned.
func (r *Resolver) lookup(ctx context.Context, filters []aws.PricingFilter) (float64, bool, error) {
	priceList, err := r.client.GetProducts(ctx, filters, 1)
	if err != nil {
		return 0, false, fmt.Errorf("querying pricing API: %w", err)
	}
	if len(priceList) == 0 {
		return 0, false, nil
	}

	var product struct {
		Terms struct {
			OnDemand map[string]struct {
				PriceDimensions map[string]struct {
					PricePerUnit map[string]string `json:"pricePerUnit"`
				} `json:"priceDimensions"`
			} `json:"OnDemand"`
		} `json:"terms"`
	}
	if err := json.Unmarshal([]byte(priceList[0]), &product); err != nil {
		return 0, false, fmt.Errorf("parsing pricing API product: %w", err)
	}

	for _, term := range product.Terms.OnDemand {
		for _, dimension := range term.PriceDimensions {
			raw, ok := dimension.PricePerUnit["USD"]
			if !ok {
				raw = "0"
			}
			price, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return 0, false, fmt.Errorf("parsing USD price %q: %w", raw, err)
			}
			return price, true, nil
		}
	}
	return 0, false, nil
}

// filterVariants builds the ordered fallback list of filter sets: the
// exact profile first, then progressively relaxed license and
// pre-installed software constraints. Duplicate variants are dropped
// while preserving order.
func filterVariants(instanceType, location string, profile Profile) [][]aws.PricingFilter {
	base := baseFilters(instanceType, location, profile)
	variants := [][]aws.PricingFilter{base}

	if profile.LicenseModel != "" {
		if profile.LicenseModel == "License Included" {
			variants = append(variants, updateFilter(base, "licenseModel", "No License required"))
		}
		variants = append(variants, removeFilter(base, "licenseModel"))
	}
	if profile.PreInstalledSw != "" {
		variants = append(variants, removeFilter(base, "preInstalledSw"))
	}
	if profile.LicenseModel != "" && profile.PreInstalledSw != "" {
		variants = append(variants, removeFilter(removeFilter(base, "licenseModel"), "preInstalledSw"))
	}

	var unique [][]aws.PricingFilter
	seen := make(map[string]bool)
	for _, candidate := range variants {
		signature := filterSignature(candidate)
		if seen[signature] {
			continue
		}
		seen[signature] = true
		unique = append(unique, candidate)
	}
	return unique
}

func baseFilters(instanceType, location string, profile Profile) []aws.PricingFilter {
	filters := []aws.PricingFilter{
		{Field: "instanceType", Value: instanceType},
		{Field: "location", Value: location},
	}
	for _, attr := range []struct {
		field string
		value string
	}{
		{"operatingSystem", profile.OperatingSystem},
		{"preInstalledSw", profile.PreInstalledSw},
		{"licenseModel", profile.LicenseModel},
	} {
		if attr.value != "" {
			filters = append(filters, aws.PricingFilter{Field: attr.field, Value: attr.value})
		}
	}
	filters = append(filters,
		aws.PricingFilter{Field: "tenancy", Value: "Shared"},
		aws.PricingFilter{Field: "capacitystatus", Value: "Used"},
	)
	return filters
}

func removeFilter(filters []aws.PricingFilter, field string) []aws.PricingFilter {
	var out []aws.PricingFilter
	for _, f := range filters {
		if f.Field != field {
			out = append(out, f)
		}
	}
	return out
}

func updateFilter(filters []aws.PricingFilter, field, value string) []aws.PricingFilter {
	out := make([]aws.PricingFilter, len(filters))
	for i, f := range filters {
		if f.Field == field {
			f.Value = value
		}
		out[i] = f
	}
	return out
}

func filterSignature(filters []aws.PricingFilter) string {
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		parts = append(parts, f.Field+"="+f.Value)
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

func formatFilters(filters []aws.PricingFilter) string {
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		if f.Field != "" && f.Value != "" {
			parts = append(parts, f.Field+"="+f.Value)
		}
	}
	return strings.Join(parts, ", ")
}
