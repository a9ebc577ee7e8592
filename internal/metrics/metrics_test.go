/*
Copyright 2024 The Spotalis Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordReconcileIncrementsCounter(t *testing.T) {
	r := NewRecorder()
	r.RecordReconcile("default", "small", "success", 10*time.Millisecond)

	got := testutil.ToFloat64(reconcilesTotal.WithLabelValues("default", "small", "success"))
	assert.GreaterOrEqual(t, got, float64(1))
}

func TestRecordWatchReconnectIncrementsCounter(t *testing.T) {
	RecordWatchReconnect("expired")
	got := testutil.ToFloat64(watchReconnectsTotal.WithLabelValues("expired"))
	assert.GreaterOrEqual(t, got, float64(1))
}
