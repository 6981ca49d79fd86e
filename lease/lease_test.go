// Copyright 2026 OpenLease Software
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

package lease

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTermsValidate(t *testing.T) {
	now := time.Now()
	testDefs := []struct {
		name        string
		start       time.Time
		end         time.Time
		expectedErr error
	}{
		{"start before end", now, now.Add(time.Hour), nil},
		{"start equals end", now, now, ErrBadTiming},
		{"start after end", now.Add(time.Hour), now, ErrBadTiming},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			terms := Terms{
				StartTime: testDef.start,
				EndTime:   testDef.end,
			}
			err := terms.Validate()
			if testDef.expectedErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, testDef.expectedErr)
			}
		})
	}
}
