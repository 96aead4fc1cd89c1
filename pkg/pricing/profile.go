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

// Package pricing resolves on-demand hourly rates for EC2 instance types
// from the AWS Price List API, deriving the catalog attributes from the
// instance's platform metadata.
package pricing

import (
	"fmt"
	"strings"

	"github.com/darindeters/DynamicEC2Scaler/pkg/aws"
)

// Profile holds the Price List catalog attributes used to identify an
// instance's software configuration.
type Profile struct {
	OperatingSystem string
	PreInstalledSw  string
	LicenseModel    string
}

// DefaultProfileSource marks a profile that came from configured defaults
// rather than instance platform metadata.
const DefaultProfileSource = "default"

type platformRule struct {
	match   string
	profile Profile
}

// platformRules maps platform description fragments to catalog profiles.
// Order matters: more specific fragments come first so that "windows with
// sql server enterprise" is not swallowed by the plain "windows" rule.
var platformRules = []platformRule{
	{"windows with sql server enterprise", Profile{"Windows", "SQL Server Enterprise", "License Included"}},
	{"windows with sql server standard", Profile{"Windows", "SQL Server Standard", "License Included"}},
	{"windows with sql server web", Profile{"Windows", "SQL Server Web", "License Included"}},
	{"windows", Profile{"Windows", "NA", "License Included"}},
	{"bring your own license", Profile{"Windows", "NA", "Bring your own license"}},
	{"byol", Profile{"Windows", "NA", "Bring your own license"}},
	{"red hat enterprise linux", Profile{"RHEL", "NA", "No License required"}},
	{"rhel", Profile{"RHEL", "NA", "No License required"}},
	{"suse", Profile{"SUSE", "NA", "No License required"}},
	{"linux", Profile{"Linux", "NA", "No License required"}},
}

// DeriveProfile inspects the instance's platform descriptors and returns
// the matching catalog profile plus a source label describing which
// descriptor matched. PlatformDetails is the richest descriptor and is
// checked first; when nothing matches, the configured default profile is
// returned with source "default".
func DeriveProfile(inst aws.Instance, defaultProfile Profile) (Profile, string) {
	candidates := []string{inst.PlatformDetails, inst.Platform, inst.UsageOperation}
	for _, text := range candidates {
		normalized := strings.ToLower(strings.TrimSpace(text))
		if normalized == "" {
			continue
		}
		for _, rule := range platformRules {
			if strings.Contains(normalized, rule.match) {
				return rule.profile, fmt.Sprintf("platform:%s", text)
			}
		}
	}
	return defaultProfile, DefaultProfileSource
}
