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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/darindeters/DynamicEC2Scaler/pkg/aws"
)

func TestDeriveProfile(t *testing.T) {
	fallback := Profile{
		OperatingSystem: "Linux",
		PreInstalledSw:  "NA",
		LicenseModel:    "No License required",
	}

	tests := []struct {
		name       string
		inst       aws.Instance
		want       Profile
		wantSource string
	}{
		{
			name:       "sql server enterprise beats plain windows",
			inst:       aws.Instance{PlatformDetails: "Windows with SQL Server Enterprise"},
			want:       Profile{"Windows", "SQL Server Enterprise", "License Included"},
			wantSource: "platform:Windows with SQL Server Enterprise",
		},
		{
			name:       "plain windows",
			inst:       aws.Instance{PlatformDetails: "Windows"},
			want:       Profile{"Windows", "NA", "License Included"},
			wantSource: "platform:Windows",
		},
		{
			name:       "byol abbreviation",
			inst:       aws.Instance{PlatformDetails: "Windows BYOL"},
			want:       Profile{"Windows", "NA", "Bring your own license"},
			wantSource: "platform:Windows BYOL",
		},
		{
			name:       "rhel long form",
			inst:       aws.Instance{PlatformDetails: "Red Hat Enterprise Linux"},
			want:       Profile{"RHEL", "NA", "No License required"},
			wantSource: "platform:Red Hat Enterprise Linux",
		},
		{
			name:       "falls through to platform field",
			inst:       aws.Instance{Platform: "windows"},
			want:       Profile{"Windows", "NA", "License Included"},
			wantSource: "platform:windows",
		},
		{
			name:       "falls through to usage operation",
			inst:       aws.Instance{UsageOperation: "RunInstances:0010 (SUSE Linux)"},
			want:       Profile{"SUSE", "NA", "No License required"},
			wantSource: "platform:RunInstances:0010 (SUSE Linux)",
		},
		{
			name:       "linux/unix platform details",
			inst:       aws.Instance{PlatformDetails: "Linux/UNIX"},
			want:       Profile{"Linux", "NA", "No License required"},
			wantSource: "platform:Linux/UNIX",
		},
		{
			name:       "no platform metadata uses defaults",
			inst:       aws.Instance{},
			want:       fallback,
			wantSource: "default",
		},
		{
			name:       "unrecognized text uses defaults",
			inst:       aws.Instance{PlatformDetails: "Solaris"},
			want:       fallback,
			wantSource: "default",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, source := DeriveProfile(tc.inst, fallback)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.wantSource, source)
		})
	}
}

func TestLocationForRegion(t *testing.T) {
	assert.Equal(t, "US East (N. Virginia)", LocationForRegion("us-east-1"))
	assert.Equal(t, "EU (Frankfurt)", LocationForRegion("eu-central-1"))
	assert.Empty(t, LocationForRegion("xx-unknown-1"))
}
