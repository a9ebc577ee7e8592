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

package integration_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	luxorv1 "github.com/luxor-io/peering-operator/api/luxor/v1"
	"github.com/luxor-io/peering-operator/internal/controller"
	"github.com/luxor-io/peering-operator/internal/watch"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

var peeringServerGVR = schema.GroupVersionResource{
	Group:    luxorv1.GroupVersion.Group,
	Version:  luxorv1.GroupVersion.Version,
	Resource: "peeringservers",
}

func unstructuredPeeringServer(namespace, name string, replicas int32, pingIntervalMillis int64) *unstructured.Unstructured {
	return &unstructured.Unstructured{
		Object: map[string]interface{}{
			"apiVersion": luxorv1.GroupVersion.String(),
			"kind":       "PeeringServer",
			"metadata": map[string]interface{}{
				"name":       name,
				"namespace":  namespace,
				"generation": int64(1),
			},
			"spec": map[string]interface{}{
				"replicas":     int64(replicas),
				"pingInterval": pingIntervalMillis,
			},
		},
	}
}

var _ = Describe("Watch Engine dispatching into the Reconciler", func() {
	var scheme *runtime.Scheme

	BeforeEach(func() {
		scheme = runtime.NewScheme()
		Expect(corev1.AddToScheme(scheme)).To(Succeed())
		Expect(appsv1.AddToScheme(scheme)).To(Succeed())
		Expect(luxorv1.AddToScheme(scheme)).To(Succeed())
	})

	It("converges an owned ConfigMap, Service, and StatefulSet and patches status to Running", func() {
		fakeClient := fake.NewClientBuilder().
			WithScheme(scheme).
			WithStatusSubresource(&luxorv1.PeeringServer{}).
			WithRuntimeObjects(&luxorv1.PeeringServer{
				ObjectMeta: metav1.ObjectMeta{Name: "mesh", Namespace: "default", Generation: 1},
				Spec: luxorv1.PeeringServerSpec{
					Replicas:           3,
					PingIntervalMillis: 2000,
				},
			}).
			Build()

		reconciler := controller.NewPeeringServerReconciler(fakeClient, scheme)

		gvrToKind := map[schema.GroupVersionResource]string{
			peeringServerGVR: "PeeringServerList",
		}
		dynClient := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(), gvrToKind,
			unstructuredPeeringServer("default", "mesh", 3, 2000))

		engine := watch.New(dynClient, "default", reconciler, log.Log)

		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		defer cancel()
		_ = engine.Run(ctx)

		var sts appsv1.StatefulSet
		Expect(fakeClient.Get(context.Background(), types.NamespacedName{Name: "mesh", Namespace: "default"}, &sts)).To(Succeed())
		Expect(*sts.Spec.Replicas).To(Equal(int32(3)))

		var svc corev1.Service
		Expect(fakeClient.Get(context.Background(), types.NamespacedName{Name: "mesh-headless", Namespace: "default"}, &svc)).To(Succeed())
		Expect(svc.Spec.ClusterIP).To(Equal(corev1.ClusterIPNone))

		var cm corev1.ConfigMap
		Expect(fakeClient.Get(context.Background(), types.NamespacedName{Name: "mesh-config", Namespace: "default"}, &cm)).To(Succeed())

		var ps luxorv1.PeeringServer
		Expect(fakeClient.Get(context.Background(), types.NamespacedName{Name: "mesh", Namespace: "default"}, &ps)).To(Succeed())
		Expect(ps.Status.Phase).To(Equal(luxorv1.PhaseRunning))
	})

	It("marks phase Failed without retrying when the spec fails validation", func() {
		fakeClient := fake.NewClientBuilder().
			WithScheme(scheme).
			WithStatusSubresource(&luxorv1.PeeringServer{}).
			WithRuntimeObjects(&luxorv1.PeeringServer{
				ObjectMeta: metav1.ObjectMeta{Name: "bad", Namespace: "default", Generation: 1},
				Spec: luxorv1.PeeringServerSpec{
					Replicas:           2,
					PingIntervalMillis: 0,
				},
			}).
			Build()

		reconciler := controller.NewPeeringServerReconciler(fakeClient, scheme)

		gvrToKind := map[schema.GroupVersionResource]string{
			peeringServerGVR: "PeeringServerList",
		}
		dynClient := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(), gvrToKind,
			unstructuredPeeringServer("default", "bad", 2, 0))

		engine := watch.New(dynClient, "default", reconciler, log.Log)

		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		defer cancel()
		_ = engine.Run(ctx)

		var ps luxorv1.PeeringServer
		Expect(fakeClient.Get(context.Background(), types.NamespacedName{Name: "bad", Namespace: "default"}, &ps)).To(Succeed())
		Expect(ps.Status.Phase).To(Equal(luxorv1.PhaseFailed))

		var sts appsv1.StatefulSet
		Expect(fakeClient.Get(context.Background(), types.NamespacedName{Name: "bad", Namespace: "default"}, &sts)).NotTo(Succeed())
	})
})
