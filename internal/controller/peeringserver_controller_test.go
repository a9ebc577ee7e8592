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
	"context"
	"testing"

	luxorv1 "github.com/luxor-io/peering-operator/api/luxor/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
)

func newTestScheme(t *testing.T) *runtime.Scheme {
	scheme := runtime.NewScheme()
	require.NoError(t, corev1.AddToScheme(scheme))
	require.NoError(t, appsv1.AddToScheme(scheme))
	require.NoError(t, luxorv1.AddToScheme(scheme))
	return scheme
}

func newTestReconciler(t *testing.T, objs ...runtime.Object) (*PeeringServerReconciler, *fake.ClientBuilder) {
	scheme := newTestScheme(t)
	builder := fake.NewClientBuilder().WithScheme(scheme).WithStatusSubresource(&luxorv1.PeeringServer{})
	for _, o := range objs {
		builder = builder.WithRuntimeObjects(o)
	}
	c := builder.Build()
	return NewPeeringServerReconciler(c, scheme), builder
}

func testPeeringServer(name, namespace string) *luxorv1.PeeringServer {
	return &luxorv1.PeeringServer{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace, Generation: 1},
		Spec: luxorv1.PeeringServerSpec{
			Replicas:           2,
			PingIntervalMillis: 1000,
		},
	}
}

func TestReconcileCreatesOwnedObjects(t *testing.T) {
	ps := testPeeringServer("small", "default")
	r, _ := newTestReconciler(t, ps)
	ctx := context.Background()

	req := ctrl.Request{NamespacedName: types.NamespacedName{Name: "small", Namespace: "default"}}
	_, err := r.Reconcile(ctx, req)
	require.NoError(t, err)

	var cm corev1.ConfigMap
	require.NoError(t, r.Get(ctx, types.NamespacedName{Name: "small-config", Namespace: "default"}, &cm))

	var svc corev1.Service
	require.NoError(t, r.Get(ctx, types.NamespacedName{Name: "small-headless", Namespace: "default"}, &svc))
	assert.Equal(t, "None", svc.Spec.ClusterIP)

	var sts appsv1.StatefulSet
	require.NoError(t, r.Get(ctx, types.NamespacedName{Name: "small", Namespace: "default"}, &sts))
	assert.Equal(t, "small-headless", sts.Spec.ServiceName)

	var updated luxorv1.PeeringServer
	require.NoError(t, r.Get(ctx, req.NamespacedName, &updated))
	assert.Equal(t, luxorv1.PhaseRunning, updated.Status.Phase)
	assert.EqualValues(t, 1, updated.Status.ObservedGeneration)
}

func TestReconcileNotFoundIsNoop(t *testing.T) {
	r, _ := newTestReconciler(t)
	req := ctrl.Request{NamespacedName: types.NamespacedName{Name: "missing", Namespace: "default"}}
	result, err := r.Reconcile(context.Background(), req)
	assert.NoError(t, err)
	assert.Equal(t, ctrl.Result{}, result)
}

func TestReconcileInvalidSpecMarksFailedWithoutError(t *testing.T) {
	ps := testPeeringServer("bad", "default")
	ps.Spec.Replicas = -1
	r, _ := newTestReconciler(t, ps)
	ctx := context.Background()

	req := ctrl.Request{NamespacedName: types.NamespacedName{Name: "bad", Namespace: "default"}}
	_, err := r.Reconcile(ctx, req)
	require.NoError(t, err)

	var updated luxorv1.PeeringServer
	require.NoError(t, r.Get(ctx, req.NamespacedName, &updated))
	assert.Equal(t, luxorv1.PhaseFailed, updated.Status.Phase)

	cond := findCondition(updated.Status.Conditions, luxorv1.ConditionReady)
	require.NotNil(t, cond)
	assert.Equal(t, metav1.ConditionFalse, cond.Status)
}

func TestReconcilePreservesServiceClusterIP(t *testing.T) {
	ps := testPeeringServer("small", "default")
	r, _ := newTestReconciler(t, ps)
	ctx := context.Background()
	req := ctrl.Request{NamespacedName: types.NamespacedName{Name: "small", Namespace: "default"}}

	_, err := r.Reconcile(ctx, req)
	require.NoError(t, err)

	var svc corev1.Service
	require.NoError(t, r.Get(ctx, types.NamespacedName{Name: "small-headless", Namespace: "default"}, &svc))
	// Simulate a server-assigned value that differs from desired ("None").
	svc.Spec.ClusterIP = "10.96.0.10"
	require.NoError(t, r.Update(ctx, &svc))

	// Bump generation to force a second pass and assert clusterIP is carried forward.
	var updatedPS luxorv1.PeeringServer
	require.NoError(t, r.Get(ctx, req.NamespacedName, &updatedPS))
	updatedPS.Generation = 2
	require.NoError(t, r.Update(ctx, &updatedPS))

	_, err = r.Reconcile(ctx, req)
	require.NoError(t, err)

	var svcAfter corev1.Service
	require.NoError(t, r.Get(ctx, types.NamespacedName{Name: "small-headless", Namespace: "default"}, &svcAfter))
	assert.Equal(t, "10.96.0.10", svcAfter.Spec.ClusterIP)
}

func TestReconcileStatefulSetSkipsUpdateOnImmutableFieldDivergence(t *testing.T) {
	ps := testPeeringServer("small", "default")
	r, _ := newTestReconciler(t, ps)
	ctx := context.Background()
	req := ctrl.Request{NamespacedName: types.NamespacedName{Name: "small", Namespace: "default"}}

	_, err := r.Reconcile(ctx, req)
	require.NoError(t, err)

	var sts appsv1.StatefulSet
	require.NoError(t, r.Get(ctx, types.NamespacedName{Name: "small", Namespace: "default"}, &sts))
	sts.Spec.ServiceName = "hand-edited-headless"
	require.NoError(t, r.Update(ctx, &sts))

	_, err = r.Reconcile(ctx, req)
	require.NoError(t, err)

	var after appsv1.StatefulSet
	require.NoError(t, r.Get(ctx, types.NamespacedName{Name: "small", Namespace: "default"}, &after))
	assert.Equal(t, "hand-edited-headless", after.Spec.ServiceName)
}

func findCondition(conditions []metav1.Condition, condType string) *metav1.Condition {
	for i := range conditions {
		if conditions[i].Type == condType {
			return &conditions[i]
		}
	}
	return nil
}
