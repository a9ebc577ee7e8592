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

package controller

import (
	luxorv1 "github.com/luxor-io/peering-operator/api/luxor/v1"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	reasonConverged = "Converged"
	reasonError     = "ReconcileError"
)

// setReadyCondition updates the Ready condition in place, matching the
// status.Conditions supplement described in SPEC_FULL.md §3.
func setReadyCondition(ps *luxorv1.PeeringServer, phase string, causeErr error) {
	condition := metav1.Condition{
		Type:               luxorv1.ConditionReady,
		ObservedGeneration: ps.Generation,
	}

	if phase == luxorv1.PhaseRunning {
		condition.Status = metav1.ConditionTrue
		condition.Reason = reasonConverged
		condition.Message = "owned objects match spec"
	} else {
		condition.Status = metav1.ConditionFalse
		condition.Reason = reasonError
		if causeErr != nil {
			condition.Message = causeErr.Error()
		} else {
			condition.Message = "reconcile failed"
		}
	}

	meta.SetStatusCondition(&ps.Status.Conditions, condition)
}
