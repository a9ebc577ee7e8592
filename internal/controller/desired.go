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
	"encoding/json"
	"fmt"
	"strconv"

	luxorv1 "github.com/luxor-io/peering-operator/api/luxor/v1"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
)

const (
	managedByLabel = "managed-by"
	managedByValue = "peering-operator"
	appLabel       = "app"

	configMountPath  = "/etc/peering"
	configMapKey     = "config.json"
	containerPortKey = "http"

	defaultRequestCPU    = "100m"
	defaultRequestMemory = "128Mi"
	defaultLimitCPU      = "200m"
	defaultLimitMemory   = "256Mi"
)

// Peer is one element of the wire-format peer list published in the ConfigMap.
type Peer struct {
	Host string `json:"host"`
	Port int32  `json:"port"`
}

// serverConfig mirrors the JSON document the managed server parses from
// CONFIG_PATH. Field names and shape are part of the external contract (§6).
type serverConfig struct {
	Peers        []Peer `json:"peers"`
	PingInterval int64  `json:"pingInterval"`
}

// ValidationError signals that a PeeringServer's spec fails a §3 constraint.
// Kept distinct from transient errors so the Reconciler can decide phase Failed
// without retrying until the user edits the resource.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Message)
}

// applyDefaults returns a copy of spec with §3 defaults filled in. It never
// mutates the caller's spec.
func applyDefaults(spec luxorv1.PeeringServerSpec) luxorv1.PeeringServerSpec {
	out := *spec.DeepCopy()

	if out.Port == 0 {
		out.Port = luxorv1.DefaultPort
	}
	if out.Image == "" {
		out.Image = luxorv1.DefaultImage
	}
	if out.Resources.Requests == nil {
		out.Resources.Requests = corev1.ResourceList{}
	}
	if _, ok := out.Resources.Requests[corev1.ResourceCPU]; !ok {
		out.Resources.Requests[corev1.ResourceCPU] = resource.MustParse(defaultRequestCPU)
	}
	if _, ok := out.Resources.Requests[corev1.ResourceMemory]; !ok {
		out.Resources.Requests[corev1.ResourceMemory] = resource.MustParse(defaultRequestMemory)
	}
	if out.Resources.Limits == nil {
		out.Resources.Limits = corev1.ResourceList{}
	}
	if _, ok := out.Resources.Limits[corev1.ResourceCPU]; !ok {
		out.Resources.Limits[corev1.ResourceCPU] = resource.MustParse(defaultLimitCPU)
	}
	if _, ok := out.Resources.Limits[corev1.ResourceMemory]; !ok {
		out.Resources.Limits[corev1.ResourceMemory] = resource.MustParse(defaultLimitMemory)
	}

	return out
}

// validateSpec rejects the two constraints §3 names. Defaulting must run first
// so a zero Port/Image never trips validation.
func validateSpec(spec luxorv1.PeeringServerSpec) error {
	if spec.Replicas < 0 {
		return &ValidationError{Field: "replicas", Message: "must be non-negative"}
	}
	if spec.PingIntervalMillis <= 0 {
		return &ValidationError{Field: "pingInterval", Message: "must be positive"}
	}
	return nil
}

// selectorLabels returns the label set used both to select pods and to tag
// every owned object, per §3 and §4.A.
func selectorLabels(name string) map[string]string {
	return map[string]string{appLabel: name}
}

// ownedObjectLabels returns selectorLabels plus the managed-by marker applied
// to all three owned objects.
func ownedObjectLabels(name string) map[string]string {
	labels := selectorLabels(name)
	labels[managedByLabel] = managedByValue
	return labels
}

// peerList enumerates ordinals [0, replicas) with the deterministic DNS
// template from §3/§6. The pod's own ordinal is included intentionally — see
// DESIGN.md's Open Question decision on self-in-peer-list.
func peerList(namespace, name string, replicas int32, port int32) []Peer {
	peers := make([]Peer, 0, replicas)
	for i := int32(0); i < replicas; i++ {
		host := fmt.Sprintf("%s-%d.%s-headless.%s.svc.cluster.local", name, i, name, namespace)
		peers = append(peers, Peer{Host: host, Port: port})
	}
	return peers
}

// desiredConfigMap materializes the ConfigMap as a pure function of ps (§4.A
// step 3). ownerRef is attached by the caller once the owner reference is
// known, keeping this function free of client dependencies for testability.
func desiredConfigMap(ps *luxorv1.PeeringServer, spec luxorv1.PeeringServerSpec) (*corev1.ConfigMap, error) {
	peers := peerList(ps.Namespace, ps.Name, spec.Replicas, spec.Port)
	cfg := serverConfig{Peers: peers, PingInterval: spec.PingIntervalMillis}

	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config.json: %w", err)
	}

	return &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      ps.Name + "-config",
			Namespace: ps.Namespace,
			Labels:    ownedObjectLabels(ps.Name),
		},
		Data: map[string]string{
			configMapKey: string(data),
		},
	}, nil
}

// desiredService materializes the headless Service as a pure function of ps
// (§4.A step 3, §3). clusterIP is set to None here for creation; on update
// the caller replaces it with the live value per the field-preservation rule
// (§4.A, I5).
func desiredService(ps *luxorv1.PeeringServer, spec luxorv1.PeeringServerSpec) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      ps.Name + "-headless",
			Namespace: ps.Namespace,
			Labels:    ownedObjectLabels(ps.Name),
		},
		Spec: corev1.ServiceSpec{
			ClusterIP: corev1.ClusterIPNone,
			Selector:  selectorLabels(ps.Name),
			Ports: []corev1.ServicePort{
				{
					Name:       containerPortKey,
					Port:       spec.Port,
					TargetPort: intstr.FromString(containerPortKey),
					Protocol:   corev1.ProtocolTCP,
				},
			},
		},
	}
}

// desiredStatefulSet materializes the StatefulSet as a pure function of ps
// (§4.A step 3, §3).
func desiredStatefulSet(ps *luxorv1.PeeringServer, spec luxorv1.PeeringServerSpec) *appsv1.StatefulSet {
	labels := ownedObjectLabels(ps.Name)
	replicas := spec.Replicas
	probe := &corev1.Probe{
		ProbeHandler: corev1.ProbeHandler{
			HTTPGet: &corev1.HTTPGetAction{
				Path: "/health",
				Port: intstr.FromString(containerPortKey),
			},
		},
	}

	return &appsv1.StatefulSet{
		ObjectMeta: metav1.ObjectMeta{
			Name:      ps.Name,
			Namespace: ps.Namespace,
			Labels:    labels,
		},
		Spec: appsv1.StatefulSetSpec{
			ServiceName: ps.Name + "-headless",
			Replicas:    &replicas,
			Selector: &metav1.LabelSelector{
				MatchLabels: selectorLabels(ps.Name),
			},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: labels,
				},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{
						{
							Name:  "peering-server",
							Image: spec.Image,
							Ports: []corev1.ContainerPort{
								{
									Name:          containerPortKey,
									ContainerPort: spec.Port,
									Protocol:      corev1.ProtocolTCP,
								},
							},
							Env: []corev1.EnvVar{
								{Name: "PORT", Value: strconv.Itoa(int(spec.Port))},
								{Name: "CONFIG_PATH", Value: configMountPath + "/" + configMapKey},
							},
							Resources: corev1.ResourceRequirements{
								Requests: spec.Resources.Requests,
								Limits:   spec.Resources.Limits,
							},
							VolumeMounts: []corev1.VolumeMount{
								{
									Name:      "config",
									MountPath: configMountPath,
									ReadOnly:  true,
								},
							},
							LivenessProbe:  probe,
							ReadinessProbe: probe,
						},
					},
					Volumes: []corev1.Volume{
						{
							Name: "config",
							VolumeSource: corev1.VolumeSource{
								ConfigMap: &corev1.ConfigMapVolumeSource{
									LocalObjectReference: corev1.LocalObjectReference{
										Name: ps.Name + "-config",
									},
								},
							},
						},
					},
				},
			},
		},
	}
}
